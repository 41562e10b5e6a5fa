// Package notify publishes artifact lifecycle events over NATS so other
// services can react to finished generations. Publishing is strictly
// best-effort: a failed publish is logged and never fails the request
// that produced the artifact.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/nicekate/storylab/internal/core"
)

// ArtifactPersistedEvent announces one persisted generation artifact.
type ArtifactPersistedEvent struct {
	Header    events.EventHeader `json:"header"`
	Category  core.Category      `json:"category"`
	FileName  string             `json:"fileName"`
	FilePath  string             `json:"filePath"`
	Text      string             `json:"text"`
	CreatedAt string             `json:"createdAt"`
}

// NatsNotifier publishes ArtifactPersistedEvents to per-category subjects.
type NatsNotifier struct {
	conn               *nats.Conn
	narrationSubject   string
	soundEffectSubject string
	log                *logger.Logger
}

// New connects to NATS and returns a notifier publishing to the two
// category subjects.
func New(url, narrationSubject, soundEffectSubject string, log *logger.Logger) (*NatsNotifier, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &NatsNotifier{
		conn:               conn,
		narrationSubject:   narrationSubject,
		soundEffectSubject: soundEffectSubject,
		log:                log,
	}, nil
}

// ArtifactPersisted publishes the event for a persisted record.
func (n *NatsNotifier) ArtifactPersisted(_ context.Context, record core.GenerationResult) {
	subject := n.narrationSubject
	if record.Category == core.CategorySoundEffect {
		subject = n.soundEffectSubject
	}

	if subject == "" {
		return
	}

	event := ArtifactPersistedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now().UTC(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		Category:  record.Category,
		FileName:  record.FileName,
		FilePath:  record.FilePath,
		Text:      record.SourceText,
		CreatedAt: record.CreatedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.log.Error("Failed to marshal artifact event for %s: %v", record.FileName, err)

		return
	}

	err = n.conn.Publish(subject, data)
	if err != nil {
		n.log.Error("Failed to publish artifact event for %s: %v", record.FileName, err)

		return
	}
}

// Close drains the underlying connection.
func (n *NatsNotifier) Close() {
	n.conn.Close()
}

// Nop is a Notifier that does nothing, used when NATS is not configured.
type Nop struct{}

// ArtifactPersisted implements core.Notifier.
func (Nop) ArtifactPersisted(_ context.Context, _ core.GenerationResult) {}
