// Package core defines the domain types and interfaces shared by the
// storylab components.
package core

import "context"

// Category identifies which artifact collection a generated file belongs to.
// Each category owns its own storage directory and history log.
type Category string

const (
	// CategoryNarration holds narrated story audio, oldest record first.
	CategoryNarration Category = "narration-audio"
	// CategorySoundEffect holds generated sound effects, newest record first.
	CategorySoundEffect Category = "sound-effect"
)

// WorkItem is one unit of batch work: a paragraph of text or a suggested
// sound-effect description. Immutable once enqueued.
type WorkItem struct {
	Content string
	Index   int
}

// GenerationResult is the durable record of one successful generation.
// It is created exactly once per processed WorkItem and never mutated.
// The JSON shape is the on-disk history record format.
type GenerationResult struct {
	ID         string   `json:"id"`
	SourceText string   `json:"text"`
	FileName   string   `json:"fileName"`
	FilePath   string   `json:"filePath"`
	Category   Category `json:"type"`
	CreatedAt  string   `json:"createdAt"`

	// Provider metadata, present only where the provider supplies it.
	Voice           string   `json:"voice,omitempty"`
	Language        string   `json:"language,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	PromptInfluence *float64 `json:"prompt_influence,omitempty"`
}

// Failure records one WorkItem that could not be processed.
type Failure struct {
	Item         WorkItem `json:"-"`
	Text         string   `json:"text"`
	ErrorMessage string   `json:"error"`
}

// BatchProgress is the transient state of an in-flight batch. Completed
// counts attempts, not successes, and only ever increases.
type BatchProgress struct {
	Total     int
	Completed int
	Failures  []Failure
}

// ArtifactStore persists a binary artifact plus a history record for a
// category, as a single logical unit from the caller's perspective.
type ArtifactStore interface {
	Persist(ctx context.Context, category Category, data []byte, record GenerationResult) error
	ReadHistory(ctx context.Context, category Category) ([]GenerationResult, error)
}

// Notifier announces persisted artifacts to interested consumers.
// Implementations must never fail the calling request.
type Notifier interface {
	ArtifactPersisted(ctx context.Context, record GenerationResult)
}
