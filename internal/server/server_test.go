// Package server_test drives the HTTP surface end to end against mock
// collaborators and a real filesystem store.
package server_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicekate/storylab/internal/artifact"
	"github.com/nicekate/storylab/internal/config"
	"github.com/nicekate/storylab/internal/core"
	"github.com/nicekate/storylab/internal/gateway"
	"github.com/nicekate/storylab/internal/narration"
	"github.com/nicekate/storylab/internal/server"
)

var errMockStory = errors.New("mock story error")

// mockStoryService returns canned responses for the LLM flows.
type mockStoryService struct {
	story       string
	prompts     []gateway.ScenePrompt
	suggestions []string
	guide       string
	shouldFail  bool
	lastCount   int
}

func (m *mockStoryService) GenerateStory(_ context.Context, _, _ string) (string, error) {
	if m.shouldFail {
		return "", fmt.Errorf("story generation failed: %w", errMockStory)
	}

	return m.story, nil
}

func (m *mockStoryService) ScenePrompts(_ context.Context, _ string, count int) ([]gateway.ScenePrompt, error) {
	m.lastCount = count

	if m.shouldFail {
		return nil, fmt.Errorf("scene prompt generation failed: %w", errMockStory)
	}

	return m.prompts, nil
}

func (m *mockStoryService) SuggestSoundEffects(_ context.Context, _ string, count int) ([]string, error) {
	m.lastCount = count

	if m.shouldFail {
		return nil, fmt.Errorf("sound-effect suggestion failed: %w", errMockStory)
	}

	return m.suggestions, nil
}

func (m *mockStoryService) PlacementGuide(_ context.Context, _ string, _ []string) (string, error) {
	if m.shouldFail {
		return "", fmt.Errorf("placement guide generation failed: %w", errMockStory)
	}

	return m.guide, nil
}

// mockNarrationService returns a fixed narration.
type mockNarrationService struct {
	audio      []byte
	shouldFail bool
}

func (m *mockNarrationService) Generate(_ context.Context, text, language, voice string) (narration.Narration, error) {
	if m.shouldFail {
		return narration.Narration{}, fmt.Errorf("narration synthesis failed: %w", errMockStory)
	}

	return narration.Narration{
		Audio:     m.audio,
		FileName:  "narration.wav",
		Timestamp: "2025-03-14T09:26:53Z",
		Text:      text,
		Voice:     voice,
		Language:  language,
		Provider:  narration.ProviderKokoro,
	}, nil
}

// mockEffectClient fails on the item texts listed in failOn.
type mockEffectClient struct {
	audio  []byte
	failOn map[string]bool
	calls  int
}

func (m *mockEffectClient) GenerateSoundEffect(
	_ context.Context,
	text string,
	_, _ *float64,
) ([]byte, error) {
	m.calls++

	if m.failOn[text] {
		return nil, fmt.Errorf("%w: provider rejected %q", core.ErrUpstream, text)
	}

	return m.audio, nil
}

// mockNotifier records persisted artifact announcements.
type mockNotifier struct {
	records []core.GenerationResult
}

func (m *mockNotifier) ArtifactPersisted(_ context.Context, record core.GenerationResult) {
	m.records = append(m.records, record)
}

type fixture struct {
	mux       *http.ServeMux
	publicDir string
	story     *mockStoryService
	narration *mockNarrationService
	effects   *mockEffectClient
	notifier  *mockNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	publicDir := t.TempDir()

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	cfg := &config.Config{}
	cfg.Server.PublicDir = publicDir
	cfg.ApplyDefaults()

	storyService := &mockStoryService{
		story:       "A rabbit ran far away.",
		prompts:     []gateway.ScenePrompt{{Description: "a forest", Prompt: "watercolor", TextSnippet: "trees"}},
		suggestions: []string{"Rain", "Thunder"},
		guide:       "音效: Rain",
	}
	narrationService := &mockNarrationService{audio: []byte("narration-audio")}
	effectClient := &mockEffectClient{audio: []byte("effect-audio"), failOn: map[string]bool{}}
	notifier := &mockNotifier{}

	store := artifact.New(publicDir, testLogger)

	srv := server.New(
		cfg,
		testLogger,
		store,
		notifier,
		storyService,
		narrationService,
		effectClient,
		server.WithBatchDelay(time.Millisecond),
	)

	return &fixture{
		mux:       srv.Routes(),
		publicDir: publicDir,
		story:     storyService,
		narration: narrationService,
		effects:   effectClient,
		notifier:  notifier,
	}
}

func (f *fixture) postJSON(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, request)

	return recorder
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()

	request := httptest.NewRequest(http.MethodGet, path, nil)
	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, request)

	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()

	err := json.Unmarshal(recorder.Body.Bytes(), target)
	require.NoError(t, err)
}

func errorMessage(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}

	decodeBody(t, recorder, &body)

	return body.Error
}

func TestHandleStory_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/story", map[string]string{"topic": "rabbits"})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Story string `json:"story"`
	}

	decodeBody(t, recorder, &body)
	assert.Equal(t, "A rabbit ran far away.", body.Story)
}

func TestHandleStory_EmptyTopic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/story", map[string]string{"topic": "  "})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Topic cannot be empty", errorMessage(t, recorder))
}

func TestHandleStory_EmptyTopicZh(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/story", map[string]string{"topic": "", "language": "zh"})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "主题不能为空", errorMessage(t, recorder))
}

func TestHandleStory_UpstreamFailureIs500(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.story.shouldFail = true

	recorder := f.postJSON(t, "/api/story", map[string]string{"topic": "rabbits"})
	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.NotEmpty(t, errorMessage(t, recorder))
}

func TestHandleStory_RejectsGet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.get(t, "/api/story")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestHandleScenePrompts_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/generate-prompts", map[string]any{"text": "a story", "count": 4})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Prompts []gateway.ScenePrompt `json:"prompts"`
	}

	decodeBody(t, recorder, &body)
	require.Len(t, body.Prompts, 1)
	assert.Equal(t, "a forest", body.Prompts[0].Description)
	assert.Equal(t, 4, f.story.lastCount)
}

func TestHandleGenerateNarration_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/generate", map[string]string{
		"text":     "Once upon a time",
		"language": "en",
		"voice":    "af_nicole",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Output   string `json:"output"`
		FileName string `json:"fileName"`
		Type     string `json:"type"`
	}

	decodeBody(t, recorder, &body)
	assert.Equal(t, hex.EncodeToString([]byte("narration-audio")), body.Output)
	assert.Equal(t, "narration.wav", body.FileName)
	assert.Equal(t, narration.ProviderKokoro, body.Type)
}

func TestHandleGenerateNarration_EmptyText(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/generate", map[string]string{"text": ""})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Text is required", errorMessage(t, recorder))
}

func TestHandleGenerateNarration_EmptyTextZh(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/generate", map[string]string{"text": "", "language": "zh"})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "文本不能为空", errorMessage(t, recorder))
}

func TestHandleSaveNarration_PersistsFileAndHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var form bytes.Buffer

	writer := multipart.NewWriter(&form)

	part, err := writer.CreateFormFile("file", "clip.wav")
	require.NoError(t, err)

	_, err = part.Write([]byte("uploaded-audio"))
	require.NoError(t, err)

	metadata := map[string]string{
		"text":     "Once upon a time",
		"voice":    "af_nicole",
		"fileName": "clip.wav",
		"language": "en",
		"type":     narration.ProviderKokoro,
	}
	metadataJSON, err := json.Marshal(metadata)
	require.NoError(t, err)

	require.NoError(t, writer.WriteField("metadata", string(metadataJSON)))
	require.NoError(t, writer.Close())

	request := httptest.NewRequest(http.MethodPost, "/api/save-audio", &form)
	request.Header.Set("Content-Type", writer.FormDataContentType())

	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	saved, err := os.ReadFile(filepath.Join(f.publicDir, "output", "clip.wav"))
	require.NoError(t, err)
	assert.Equal(t, []byte("uploaded-audio"), saved)

	historyRecorder := f.get(t, "/api/history")
	require.Equal(t, http.StatusOK, historyRecorder.Code)

	var history []core.GenerationResult

	decodeBody(t, historyRecorder, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "Once upon a time", history[0].SourceText)
	assert.Equal(t, "clip.wav", history[0].FileName)
	assert.NotEmpty(t, history[0].ID)
	assert.NotEmpty(t, history[0].CreatedAt)

	require.Len(t, f.notifier.records, 1)
	assert.Equal(t, "clip.wav", f.notifier.records[0].FileName)
}

func TestHandleSaveNarration_MissingMetadata(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var form bytes.Buffer

	writer := multipart.NewWriter(&form)

	part, err := writer.CreateFormFile("file", "clip.wav")
	require.NoError(t, err)

	_, err = part.Write([]byte("audio"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	request := httptest.NewRequest(http.MethodPost, "/api/save-audio", &form)
	request.Header.Set("Content-Type", writer.FormDataContentType())

	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Missing file or metadata", errorMessage(t, recorder))
}

func TestHandleSoundEffect_PersistsAndResponds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/sound-effects", map[string]any{
		"text":             "Heavy rain",
		"duration_seconds": 4.5,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Success  bool   `json:"success"`
		FileName string `json:"fileName"`
		FilePath string `json:"filePath"`
		Text     string `json:"text"`
	}

	decodeBody(t, recorder, &body)
	assert.True(t, body.Success)
	assert.Equal(t, "Heavy rain", body.Text)
	assert.True(t, strings.HasPrefix(body.FilePath, "/sound-effects/"), body.FilePath)
	assert.True(t, strings.HasPrefix(body.FileName, "sfx-"), body.FileName)

	saved, err := os.ReadFile(filepath.Join(f.publicDir, "sound-effects", body.FileName))
	require.NoError(t, err)
	assert.Equal(t, []byte("effect-audio"), saved)

	require.Len(t, f.notifier.records, 1)
}

func TestHandleSoundEffectBatch_PartialFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.effects.failOn["Thunder"] = true

	recorder := f.postJSON(t, "/api/sound-effects/batch", map[string]any{
		"effects": []string{"Rain", "Thunder", "Wind"},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Success bool `json:"success"`
		Results []struct {
			Text string `json:"text"`
		} `json:"results"`
		Errors []struct {
			Text  string `json:"text"`
			Error string `json:"error"`
		} `json:"errors"`
	}

	decodeBody(t, recorder, &body)
	assert.True(t, body.Success)

	require.Len(t, body.Results, 2)
	assert.Equal(t, "Rain", body.Results[0].Text)
	assert.Equal(t, "Wind", body.Results[1].Text)

	require.Len(t, body.Errors, 1)
	assert.Equal(t, "Thunder", body.Errors[0].Text)
	assert.NotEmpty(t, body.Errors[0].Error)

	// Every item reached the provider despite the failure in the middle.
	assert.Equal(t, 3, f.effects.calls)
}

func TestHandleSoundEffectBatch_EmptyList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/sound-effects/batch", map[string]any{"effects": []string{}})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleSoundEffectHistory_NewestFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	first := f.postJSON(t, "/api/sound-effects", map[string]any{"text": "Rain"})
	require.Equal(t, http.StatusOK, first.Code)

	second := f.postJSON(t, "/api/sound-effects", map[string]any{"text": "Thunder"})
	require.Equal(t, http.StatusOK, second.Code)

	recorder := f.get(t, "/api/sound-effects/history")
	require.Equal(t, http.StatusOK, recorder.Code)

	var history []core.GenerationResult

	decodeBody(t, recorder, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "Thunder", history[0].SourceText)
	assert.Equal(t, "Rain", history[1].SourceText)
}

func TestHandleSaveSoundEffect_DecodesAndSaves(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/sound-effects/save", map[string]string{
		"audio":    base64.StdEncoding.EncodeToString([]byte("saved-audio")),
		"fileName": "../evil/saved.mp3",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Success  bool   `json:"success"`
		FilePath string `json:"filePath"`
	}

	decodeBody(t, recorder, &body)
	assert.True(t, body.Success)
	assert.Equal(t, "/sound-effects/saved.mp3", body.FilePath)

	saved, err := os.ReadFile(filepath.Join(f.publicDir, "sound-effects", "saved.mp3"))
	require.NoError(t, err)
	assert.Equal(t, []byte("saved-audio"), saved)

	// Client-driven saves leave the history log untouched.
	historyRecorder := f.get(t, "/api/sound-effects/history")

	var history []core.GenerationResult

	decodeBody(t, historyRecorder, &history)
	assert.Empty(t, history)
}

func TestHandleSaveSoundEffect_InvalidBase64(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/sound-effects/save", map[string]string{
		"audio":    "not-base64!!!",
		"fileName": "x.mp3",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Audio data is not valid base64", errorMessage(t, recorder))
}

func TestHandleSoundEffectSuggestions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/sound-effects/suggestions", map[string]any{
		"text":  "a stormy story",
		"count": 5,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		SoundEffects []string `json:"soundEffects"`
	}

	decodeBody(t, recorder, &body)
	assert.Equal(t, []string{"Rain", "Thunder"}, body.SoundEffects)
	assert.Equal(t, 5, f.story.lastCount)
}

func TestHandlePlacementGuide(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/sound-effects/placement", map[string]any{
		"story":        "a stormy story",
		"soundEffects": []string{"Rain"},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		PlacementGuide string `json:"placementGuide"`
	}

	decodeBody(t, recorder, &body)
	assert.Equal(t, "音效: Rain", body.PlacementGuide)
}

func TestHandlePlacementGuide_RequiresEffects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	recorder := f.postJSON(t, "/api/sound-effects/placement", map[string]any{
		"story":        "a story",
		"soundEffects": []string{},
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestInvalidJSONBodyIs400(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	request := httptest.NewRequest(http.MethodPost, "/api/story", strings.NewReader("{not json"))
	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "Invalid request body", errorMessage(t, recorder))
}
