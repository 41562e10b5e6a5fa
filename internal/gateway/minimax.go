package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nicekate/storylab/internal/core"
)

const apiTextToAudio = "/v1/t2a_v2"

// Voice rendering defaults for the synchronous narration provider.
const (
	minimaxSpeed   = 1
	minimaxVolume  = 1
	minimaxPitch   = 0
	minimaxEmotion = "neutral"
	minimaxChannel = 1
)

// MiniMaxClient calls the synchronous zh narration provider. The provider
// accepts a (text, voice, sample rate, format) tuple and returns encoded
// audio in the same response.
type MiniMaxClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	groupID    string
	model      string
	sampleRate int
	bitrate    int
	format     string
}

type minimaxVoiceSetting struct {
	VoiceID string `json:"voice_id"`
	Speed   int    `json:"speed"`
	Volume  int    `json:"vol"`
	Pitch   int    `json:"pitch"`
	Emotion string `json:"emotion"`
}

type minimaxAudioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
	Channel    int    `json:"channel"`
}

type minimaxRequest struct {
	Model        string              `json:"model"`
	Text         string              `json:"text"`
	Stream       bool                `json:"stream"`
	VoiceSetting minimaxVoiceSetting `json:"voice_setting"`
	AudioSetting minimaxAudioSetting `json:"audio_setting"`
}

type minimaxResponse struct {
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
	Data struct {
		Audio string `json:"audio"`
	} `json:"data"`
}

// NewMiniMaxClient creates a client for the synchronous narration provider.
func NewMiniMaxClient(
	baseURL, apiKey, groupID, model string,
	sampleRate, bitrate int,
	format string,
) *MiniMaxClient {
	return &MiniMaxClient{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		groupID:    groupID,
		model:      model,
		sampleRate: sampleRate,
		bitrate:    bitrate,
		format:     format,
	}
}

// Synthesize generates narration audio for text using the given voice and
// returns the decoded audio bytes.
func (c *MiniMaxClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", core.ErrInvalidInput)
	}

	if c.apiKey == "" || c.groupID == "" {
		return nil, fmt.Errorf(
			"%w: MINIMAX_API_KEY or MINIMAX_GROUP_ID",
			core.ErrMissingConfiguration,
		)
	}

	requestBody, err := json.Marshal(minimaxRequest{
		Model:  c.model,
		Text:   text,
		Stream: false,
		VoiceSetting: minimaxVoiceSetting{
			VoiceID: voiceID,
			Speed:   minimaxSpeed,
			Volume:  minimaxVolume,
			Pitch:   minimaxPitch,
			Emotion: minimaxEmotion,
		},
		AudioSetting: minimaxAudioSetting{
			SampleRate: c.sampleRate,
			Bitrate:    c.bitrate,
			Format:     c.format,
			Channel:    minimaxChannel,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal narration request: %w", err)
	}

	url := fmt.Sprintf("%s%s?GroupId=%s", c.baseURL, apiTextToAudio, c.groupID)

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create narration request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAuthorization, "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: narration request to %s failed: %w", core.ErrUpstream, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf(
			"%w: narration provider returned %s: %s",
			core.ErrUpstream,
			resp.Status,
			string(body),
		)
	}

	var payload minimaxResponse

	err = json.NewDecoder(resp.Body).Decode(&payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode narration response: %w", core.ErrInvalidResponse, err)
	}

	if payload.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf(
			"%w: narration provider rejected the request: %s",
			core.ErrUpstream,
			payload.BaseResp.StatusMsg,
		)
	}

	if payload.Data.Audio == "" {
		return nil, fmt.Errorf("%w: narration response carries no audio field", core.ErrInvalidResponse)
	}

	return decodeAudioField(payload.Data.Audio)
}

// decodeAudioField decodes the provider's encoded audio payload. The
// provider documents hex encoding; base64 is accepted as a fallback since
// both shapes have been observed in the wild.
func decodeAudioField(encoded string) ([]byte, error) {
	audio, hexErr := hex.DecodeString(encoded)
	if hexErr == nil {
		return audio, nil
	}

	audio, b64Err := base64.StdEncoding.DecodeString(encoded)
	if b64Err == nil {
		return audio, nil
	}

	return nil, fmt.Errorf(
		"%w: audio field is neither hex nor base64: %w",
		core.ErrInvalidResponse,
		b64Err,
	)
}
