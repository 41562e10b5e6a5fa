package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/nicekate/storylab/internal/core"
)

// Best-effort normalization of free-text model output. These heuristics
// are a known lossy boundary: they coerce the common completion shapes
// into structured data and will mis-parse pathological outputs.
var (
	storyMarkupPattern    = regexp.MustCompile(`[*\[\](){}]`)
	whitespaceRunPattern  = regexp.MustCompile(`\s+`)
	listMarkerPattern     = regexp.MustCompile(`^\d+\.\s*|^[-*]\s*`)
	codeFencePattern      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	paragraphBreakPattern = regexp.MustCompile(`\n+`)
)

// ScenePrompt is one illustration prompt extracted from a completion.
type ScenePrompt struct {
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	TextSnippet string `json:"text_snippet"`
}

// NormalizeStory strips markdown and bracket characters that interfere
// with text-to-speech, and collapses whitespace runs.
func NormalizeStory(raw string) string {
	cleaned := storyMarkupPattern.ReplaceAllString(raw, "")
	cleaned = whitespaceRunPattern.ReplaceAllString(cleaned, " ")

	return strings.TrimSpace(cleaned)
}

// NormalizeSuggestionLines splits a completion into one suggestion per
// line, stripping leading enumeration and list markers, and caps the
// result at limit entries.
func NormalizeSuggestionLines(raw string, limit int) []string {
	lines := strings.Split(raw, "\n")
	suggestions := make([]string, 0, len(lines))

	for _, line := range lines {
		cleaned := strings.TrimSpace(line)
		cleaned = listMarkerPattern.ReplaceAllString(cleaned, "")
		cleaned = strings.TrimSpace(cleaned)

		if cleaned == "" {
			continue
		}

		suggestions = append(suggestions, cleaned)
		if len(suggestions) == limit {
			break
		}
	}

	return suggestions
}

// ParseScenePrompts parses a completion into scene prompts. Fenced
// ```json blocks are tolerated; any provider-side importance score is
// dropped from the result.
func ParseScenePrompts(raw string) ([]ScenePrompt, error) {
	payload := strings.TrimSpace(raw)

	if matches := codeFencePattern.FindStringSubmatch(payload); len(matches) == 2 {
		payload = matches[1]
	}

	var prompts []ScenePrompt

	err := json.Unmarshal([]byte(payload), &prompts)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: completion is not a scene prompt array: %w",
			core.ErrParse,
			err,
		)
	}

	if len(prompts) == 0 {
		return nil, fmt.Errorf("%w: completion contains no scene prompts", core.ErrParse)
	}

	return prompts, nil
}

// SplitParagraphs splits narration input into non-empty trimmed
// paragraphs, one per blank-line-separated block.
func SplitParagraphs(text string) []string {
	blocks := paragraphBreakPattern.Split(text, -1)
	paragraphs := make([]string, 0, len(blocks))

	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return paragraphs
}
