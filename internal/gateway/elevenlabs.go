package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nicekate/storylab/internal/core"
)

const (
	apiSoundGeneration = "/v1/sound-generation"
	headerAPIKey       = "xi-api-key"
)

// DefaultPromptInfluence is applied when the caller leaves the knob unset.
const DefaultPromptInfluence = 0.3

// ElevenLabsClient calls the sound-effect generation provider.
type ElevenLabsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type soundEffectRequest struct {
	Text            string   `json:"text"`
	DurationSeconds *float64 `json:"duration_seconds"`
	PromptInfluence float64  `json:"prompt_influence"`
}

type soundEffectError struct {
	Detail string `json:"detail"`
}

// NewElevenLabsClient creates a client for the sound-effect provider.
func NewElevenLabsClient(baseURL, apiKey string) *ElevenLabsClient {
	return &ElevenLabsClient{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// GenerateSoundEffect generates one sound effect from a text description
// and returns the raw audio bytes. durationSeconds may be nil to let the
// provider choose; promptInfluence may be nil to use the default.
func (c *ElevenLabsClient) GenerateSoundEffect(
	ctx context.Context,
	text string,
	durationSeconds, promptInfluence *float64,
) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", core.ErrInvalidInput)
	}

	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: ELEVENLABS_API_KEY", core.ErrMissingConfiguration)
	}

	influence := DefaultPromptInfluence
	if promptInfluence != nil {
		influence = *promptInfluence
	}

	requestBody, err := json.Marshal(soundEffectRequest{
		Text:            text,
		DurationSeconds: durationSeconds,
		PromptInfluence: influence,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sound-effect request: %w", err)
	}

	url := c.baseURL + apiSoundGeneration

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sound-effect request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: sound-effect request to %s failed: %w",
			core.ErrUpstream,
			c.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sound-effect audio: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: received empty sound-effect audio", core.ErrInvalidResponse)
	}

	return audioData, nil
}

// parseErrorResponse attempts to decode the provider's structured error
// detail, falling back to the raw body so diagnostics are preserved.
func (c *ElevenLabsClient) parseErrorResponse(resp *http.Response) error {
	var providerErr soundEffectError

	err := json.NewDecoder(resp.Body).Decode(&providerErr)
	if err == nil && providerErr.Detail != "" {
		return fmt.Errorf(
			"%w: sound-effect provider returned %s: %s",
			core.ErrUpstream,
			resp.Status,
			providerErr.Detail,
		)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		"%w: sound-effect provider returned %s: %s",
		core.ErrUpstream,
		resp.Status,
		string(body),
	)
}
