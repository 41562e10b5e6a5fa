// Package server exposes the storylab HTTP surface: JSON endpoints for
// the generation flows, artifact upload, history reads, and static
// serving of the generated media.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/book-expert/logger"

	"github.com/nicekate/storylab/internal/config"
	"github.com/nicekate/storylab/internal/core"
	"github.com/nicekate/storylab/internal/gateway"
	"github.com/nicekate/storylab/internal/narration"
)

// maxJSONBody bounds every JSON request body.
const maxJSONBody = 1 << 20

// maxUploadBytes bounds multipart uploads on the save-audio path.
const maxUploadBytes = 32 << 20

// soundEffectBatchDelay is the fixed wait between consecutive provider
// calls in the sound-effect batch flow, respecting upstream throughput
// limits. The narration flow has no such delay.
const soundEffectBatchDelay = time.Second

// ArtifactStore is the persistence surface the handlers need. The
// SaveBinary path writes a file without a history record, for the
// client-driven save endpoint.
type ArtifactStore interface {
	core.ArtifactStore
	SaveBinary(ctx context.Context, category core.Category, fileName string, data []byte) (string, error)
}

// StoryService is the LLM flow surface the handlers need.
type StoryService interface {
	GenerateStory(ctx context.Context, topic, language string) (string, error)
	ScenePrompts(ctx context.Context, text string, count int) ([]gateway.ScenePrompt, error)
	SuggestSoundEffects(ctx context.Context, text string, count int) ([]string, error)
	PlacementGuide(ctx context.Context, storyText string, effects []string) (string, error)
}

// NarrationService generates narration audio for one text.
type NarrationService interface {
	Generate(ctx context.Context, text, language, voice string) (narration.Narration, error)
}

// EffectClient generates one sound effect from a description.
type EffectClient interface {
	GenerateSoundEffect(ctx context.Context, text string, durationSeconds, promptInfluence *float64) ([]byte, error)
}

// Server wires the handlers to their collaborators.
type Server struct {
	cfg        *config.Config
	log        *logger.Logger
	store      ArtifactStore
	notifier   core.Notifier
	story      StoryService
	narration  NarrationService
	effects    EffectClient
	batchDelay time.Duration
	now        func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithBatchDelay overrides the inter-item delay of the sound-effect
// batch flow. Intended for tests.
func WithBatchDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.batchDelay = delay
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a Server.
func New(
	cfg *config.Config,
	log *logger.Logger,
	store ArtifactStore,
	notifier core.Notifier,
	storyService StoryService,
	narrationService NarrationService,
	effects EffectClient,
	opts ...Option,
) *Server {
	server := &Server{
		cfg:        cfg,
		log:        log,
		store:      store,
		notifier:   notifier,
		story:      storyService,
		narration:  narrationService,
		effects:    effects,
		batchDelay: soundEffectBatchDelay,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(server)
	}

	return server
}

// Routes builds the full HTTP mux, including static serving of the
// generated artifact directories.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/story", s.handleStory)
	mux.HandleFunc("/api/generate-prompts", s.handleScenePrompts)
	mux.HandleFunc("/api/generate", s.handleGenerateNarration)
	mux.HandleFunc("/api/save-audio", s.handleSaveNarration)
	mux.HandleFunc("/api/history", s.handleNarrationHistory)
	mux.HandleFunc("/api/sound-effects", s.handleSoundEffect)
	mux.HandleFunc("/api/sound-effects/batch", s.handleSoundEffectBatch)
	mux.HandleFunc("/api/sound-effects/save", s.handleSaveSoundEffect)
	mux.HandleFunc("/api/sound-effects/history", s.handleSoundEffectHistory)
	mux.HandleFunc("/api/sound-effects/suggestions", s.handleSoundEffectSuggestions)
	mux.HandleFunc("/api/sound-effects/placement", s.handlePlacementGuide)

	publicFS := http.FileServer(http.Dir(s.cfg.Server.PublicDir))
	mux.Handle("/", publicFS)

	return mux
}

// errorResponse is the uniform error body of every endpoint.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		s.log.Error("Failed to encode response: %v", err)
	}
}

// writeInputError reports a request validation failure with an explicit
// user-facing message.
func (s *Server) writeInputError(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

// writeError maps a component error onto the HTTP status taxonomy:
// invalid input is the caller's fault, everything else is a server-side
// failure. The full error chain is logged; the message is surfaced as-is.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("%s %s failed: %v", r.Method, r.URL.Path, err)

	status := http.StatusInternalServerError
	if errors.Is(err, core.ErrInvalidInput) {
		status = http.StatusBadRequest
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeJSON decodes a bounded JSON request body.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(target)
	if err != nil {
		s.writeInputError(w, "Invalid request body")

		return false
	}

	return true
}

// requirePost rejects every method except POST.
func (s *Server) requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})

		return false
	}

	return true
}

// requireGet rejects every method except GET.
func (s *Server) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})

		return false
	}

	return true
}
