// Package narration routes narration requests to the provider for the
// requested language: a synchronous provider for zh, an asynchronous
// job-polling provider for everything else.
package narration

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/nicekate/storylab/internal/artifact"
	"github.com/nicekate/storylab/internal/core"
)

// Provider type tags recorded in history metadata.
const (
	ProviderMiniMax = "minimax"
	ProviderKokoro  = "kokoro"
)

const narrationFileExt = ".wav"

// SpeechClient generates audio for text with a given voice. Both the
// synchronous and the polling provider clients satisfy it.
type SpeechClient interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Narration is one finished narration generation, ready to be encoded for
// the wire or persisted.
type Narration struct {
	Audio     []byte
	FileName  string
	Timestamp string
	Text      string
	Voice     string
	Language  string
	Provider  string
}

// Synthesizer picks a provider per language and names the result file.
type Synthesizer struct {
	zhClient SpeechClient
	enClient SpeechClient
	log      *logger.Logger
	now      func() time.Time
}

// NewSynthesizer creates a Synthesizer over the two provider clients.
func NewSynthesizer(zhClient, enClient SpeechClient, log *logger.Logger) *Synthesizer {
	return &Synthesizer{
		zhClient: zhClient,
		enClient: enClient,
		log:      log,
		now:      time.Now,
	}
}

// Generate produces narration audio for text in the requested language.
func (s *Synthesizer) Generate(ctx context.Context, text, language, voice string) (Narration, error) {
	if strings.TrimSpace(text) == "" {
		return Narration{}, fmt.Errorf("%w: text cannot be empty", core.ErrInvalidInput)
	}

	client := s.enClient
	provider := ProviderKokoro

	if language == "zh" {
		client = s.zhClient
		provider = ProviderMiniMax
	}

	audio, err := client.Synthesize(ctx, text, voice)
	if err != nil {
		return Narration{}, fmt.Errorf("narration synthesis failed: %w", err)
	}

	now := s.now().UTC()
	timestamp := now.Format(time.RFC3339)

	result := Narration{
		Audio:     audio,
		FileName:  artifact.BuildFileName("", text, narrationFileExt, now),
		Timestamp: timestamp,
		Text:      text,
		Voice:     voice,
		Language:  language,
		Provider:  provider,
	}

	s.log.Info("Generated narration %s (%d bytes, provider %s)", result.FileName, len(audio), provider)

	return result, nil
}

// EncodedOutput encodes the audio for the JSON response. The zh path
// carries base64, every other path carries hex; consumers depend on this
// split and it must be preserved.
func (n Narration) EncodedOutput() string {
	if n.Language == "zh" {
		return base64.StdEncoding.EncodeToString(n.Audio)
	}

	return hex.EncodeToString(n.Audio)
}
