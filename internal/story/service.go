// Package story implements the four LLM-backed text flows: story
// generation, scene-prompt generation, sound-effect suggestion and
// placement-guide generation. All four share the one parameterized
// gateway chat operation; only the prompts differ.
package story

import (
	"context"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/nicekate/storylab/internal/core"
	"github.com/nicekate/storylab/internal/gateway"
)

// Count bounds for scene prompts and sound-effect suggestions. Requests
// outside the range are clamped, not rejected.
const (
	MinItemCount = 1
	MaxItemCount = 30
)

// Token budgets per flow.
const (
	storyMaxTokens       = 1000
	scenePromptMaxTokens = 4000
	suggestionMaxTokens  = 1000
	placementMaxTokens   = 2000
)

const storyPromptZh = `根据主题"%s"写一个短故事。要求：
1. 用简体中文写作
2. 不要使用特殊字符、星号或markdown格式
3. 故事要有趣且富有想象力
4. 保持在200-300字之间
5. 分成3-4个自然段落
6. 使用简单明了的语言
7. 避免使用括号、方括号或任何可能影响文本转语音的符号`

const storyPromptEn = `Write a short story based on the topic "%s". Requirements:
1. Write the story in English using only regular letters and basic punctuation
2. Do not use any special characters, asterisks, or markdown formatting
3. Make it interesting and imaginative
4. Keep it between 200-300 words
5. Divide it into 3-4 natural paragraphs
6. Use simple and clear language
7. Avoid using parentheses, brackets, or any symbols that might interfere with text-to-speech`

const scenePromptSystem = `你是一个专业的儿童绘本插画师和AI绘画提示词专家。
请为这段文字生成%d个不同场景的绘图提示词。

重要提示：
- 不要在提示词中使用角色名字，而是用具体的外观特征来描述角色

要求：
1. 角色形象和风格的严格一致性：用具体的视觉特征描述角色，主角的外观特征在所有场景中必须保持一致
2. 场景连续性：场景之间要有清晰的故事发展脉络
3. 艺术风格的统一：所有场景使用相同的绘画风格、色彩方案和光影效果
4. 适合儿童绘本的表现方式：画面富有童趣，构图简单清晰

每个场景的英文提示词分段描述 Character、Scene、Lighting、Composition、Style、Additional 要素。

输出格式为 JSON 数组：
[
  {
    "description": "场景描述",
    "prompt": "Character:\n[角色具体特征描述]\n\nScene:\n[场景描述]\n\nLighting:\n[光影描述]\n\nComposition:\n[构图描述]\n\nStyle:\n[风格描述]\n\nAdditional:\n[补充细节]",
    "text_snippet": "对应的文本片段",
    "importance": "场景重要性评分（1-5）"
  }
]`

const suggestionPrompt = `Analyze the story and suggest exactly %d detailed sound effects. For each effect, provide a rich description in English (max 70 words) that captures the mood, intensity, and timing. Include:

1. Environmental Ambience: background atmosphere, weather, location-specific sounds
2. Character Actions: movement, interaction, emotional expressions
3. Scene Transitions: mood-setting sounds, dramatic effects
4. For each sound effect: describe the sound quality, specify when it occurs, keep each description under 70 words, use natural English without special characters

Story:
%s

List each sound effect on a new line, starting with a descriptive title followed by a colon and the detailed description.`

const placementPrompt = `Analyze this story and suggest where to place the sound effects. Requirements:

故事：
%s

音效：
%s

Please create a detailed placement guide that includes:
1. The specific moment or sentence where each sound effect should be placed
2. A brief explanation in Chinese for why this placement enhances the story
3. Format each suggestion as:
   音效: [English sound effect]
   位置: [relevant story text]
   说明: [Chinese explanation]

Keep explanations concise and focus on how each sound effect enhances the storytelling.`

// Service drives the LLM flows through the gateway chat client.
type Service struct {
	chat *gateway.ChatClient
	log  *logger.Logger
}

// NewService creates a story service over the given chat client.
func NewService(chat *gateway.ChatClient, log *logger.Logger) *Service {
	return &Service{
		chat: chat,
		log:  log,
	}
}

// ClampItemCount clamps a requested item count into [MinItemCount,
// MaxItemCount] before any gateway call is issued.
func ClampItemCount(count int) int {
	if count < MinItemCount {
		return MinItemCount
	}

	if count > MaxItemCount {
		return MaxItemCount
	}

	return count
}

// GenerateStory writes a short story for topic in the requested language
// and normalizes it for text-to-speech.
func (s *Service) GenerateStory(ctx context.Context, topic, language string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", fmt.Errorf("%w: topic cannot be empty", core.ErrInvalidInput)
	}

	prompt := fmt.Sprintf(storyPromptEn, topic)
	if language == "zh" {
		prompt = fmt.Sprintf(storyPromptZh, topic)
	}

	completion, err := s.chat.SuggestText(ctx, "", prompt, storyMaxTokens)
	if err != nil {
		return "", fmt.Errorf("story generation failed: %w", err)
	}

	story := gateway.NormalizeStory(completion)
	s.log.Info("Generated story for topic %q (%d chars)", topic, len(story))

	return story, nil
}

// ScenePrompts generates count illustration prompts for text. The count
// is clamped server-side before the gateway call.
func (s *Service) ScenePrompts(ctx context.Context, text string, count int) ([]gateway.ScenePrompt, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", core.ErrInvalidInput)
	}

	clamped := ClampItemCount(count)
	systemPrompt := fmt.Sprintf(scenePromptSystem, clamped)

	completion, err := s.chat.SuggestText(ctx, systemPrompt, text, scenePromptMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("scene prompt generation failed: %w", err)
	}

	prompts, err := gateway.ParseScenePrompts(completion)
	if err != nil {
		s.log.Error("Failed to parse scene prompts: %v", err)

		return nil, err
	}

	s.log.Info("Generated %d scene prompts", len(prompts))

	return prompts, nil
}

// SuggestSoundEffects suggests count sound-effect descriptions for a
// story. The count is clamped server-side before the gateway call.
func (s *Service) SuggestSoundEffects(ctx context.Context, text string, count int) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", core.ErrInvalidInput)
	}

	clamped := ClampItemCount(count)
	prompt := fmt.Sprintf(suggestionPrompt, clamped, text)

	completion, err := s.chat.SuggestText(ctx, "", prompt, suggestionMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("sound-effect suggestion failed: %w", err)
	}

	suggestions := gateway.NormalizeSuggestionLines(completion, clamped)
	s.log.Info("Generated %d sound-effect suggestions", len(suggestions))

	return suggestions, nil
}

// PlacementGuide produces a free-text guide correlating sound effects to
// story moments.
func (s *Service) PlacementGuide(ctx context.Context, storyText string, effects []string) (string, error) {
	if strings.TrimSpace(storyText) == "" {
		return "", fmt.Errorf("%w: story cannot be empty", core.ErrInvalidInput)
	}

	if len(effects) == 0 {
		return "", fmt.Errorf("%w: sound effect list cannot be empty", core.ErrInvalidInput)
	}

	prompt := fmt.Sprintf(placementPrompt, storyText, strings.Join(effects, "\n"))

	guide, err := s.chat.SuggestText(ctx, "", prompt, placementMaxTokens)
	if err != nil {
		return "", fmt.Errorf("placement guide generation failed: %w", err)
	}

	return guide, nil
}
