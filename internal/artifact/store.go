// Package artifact persists generated media files together with an
// append-only JSON history log per category. The store exclusively owns
// the on-disk layout; callers never touch the history files directly.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"
	"github.com/nicekate/storylab/internal/core"
)

// On-disk layout under the public directory.
const (
	narrationDirName   = "output"
	soundEffectDirName = "sound-effects"
	historyFileName    = "history.json"

	filePermissions = 0o600
	dirPermissions  = 0o750
)

// URL prefixes under which the artifact directories are served.
const (
	NarrationURLPrefix   = "/" + narrationDirName + "/"
	SoundEffectURLPrefix = "/" + soundEffectDirName + "/"
)

var errUnknownCategory = errors.New("unknown artifact category")

// Store is the filesystem-backed artifact store. The history
// read-modify-write for each category is serialized behind a per-category
// mutex so concurrent persists cannot lose updates.
type Store struct {
	publicDir string
	log       *logger.Logger
	locks     map[core.Category]*sync.Mutex
}

// New creates a Store rooted at publicDir. Category directories are
// created lazily on first use.
func New(publicDir string, log *logger.Logger) *Store {
	return &Store{
		publicDir: publicDir,
		log:       log,
		locks: map[core.Category]*sync.Mutex{
			core.CategoryNarration:   {},
			core.CategorySoundEffect: {},
		},
	}
}

// Dir returns the storage directory for a category.
func (s *Store) Dir(category core.Category) (string, error) {
	switch category {
	case core.CategoryNarration:
		return filepath.Join(s.publicDir, narrationDirName), nil
	case core.CategorySoundEffect:
		return filepath.Join(s.publicDir, soundEffectDirName), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownCategory, category)
	}
}

// URLPath returns the servable path for a file in a category.
func URLPath(category core.Category, fileName string) string {
	if category == core.CategorySoundEffect {
		return SoundEffectURLPrefix + fileName
	}

	return NarrationURLPrefix + fileName
}

// Persist writes the binary artifact and then appends the record to the
// category's history log. The binary goes first: a failed write leaves
// the history untouched, so the log never references a missing file.
func (s *Store) Persist(
	ctx context.Context,
	category core.Category,
	data []byte,
	record core.GenerationResult,
) error {
	dir, err := s.Dir(category)
	if err != nil {
		return err
	}

	err = os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", core.ErrPersistence, dir, err)
	}

	binaryPath := filepath.Join(dir, record.FileName)

	err = os.WriteFile(binaryPath, data, filePermissions)
	if err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", core.ErrPersistence, binaryPath, err)
	}

	err = s.appendHistory(ctx, category, record)
	if err != nil {
		return err
	}

	s.log.Info("Persisted %s artifact %s (%d bytes)", category, record.FileName, len(data))

	return nil
}

// SaveBinary writes a binary artifact without touching the history log
// and returns its servable path. Used when the caller owns the record
// lifecycle, such as client-driven saves of already-recorded audio.
func (s *Store) SaveBinary(
	_ context.Context,
	category core.Category,
	fileName string,
	data []byte,
) (string, error) {
	dir, err := s.Dir(category)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create %s: %w", core.ErrPersistence, dir, err)
	}

	binaryPath := filepath.Join(dir, fileName)

	err = os.WriteFile(binaryPath, data, filePermissions)
	if err != nil {
		return "", fmt.Errorf("%w: failed to write %s: %w", core.ErrPersistence, binaryPath, err)
	}

	return URLPath(category, fileName), nil
}

// ReadHistory returns the category's history log, lazily creating an
// empty one when absent. A missing file is never an error for the caller.
func (s *Store) ReadHistory(ctx context.Context, category core.Category) ([]core.GenerationResult, error) {
	lock := s.locks[category]
	lock.Lock()
	defer lock.Unlock()

	return s.readHistoryLocked(ctx, category)
}

func (s *Store) appendHistory(ctx context.Context, category core.Category, record core.GenerationResult) error {
	lock := s.locks[category]
	lock.Lock()
	defer lock.Unlock()

	history, err := s.readHistoryLocked(ctx, category)
	if err != nil {
		return err
	}

	// Narration reads oldest first, sound effects newest first. The
	// orders are category-specific and must not be unified.
	if category == core.CategorySoundEffect {
		history = append([]core.GenerationResult{record}, history...)
	} else {
		history = append(history, record)
	}

	return s.writeHistoryLocked(category, history)
}

func (s *Store) readHistoryLocked(_ context.Context, category core.Category) ([]core.GenerationResult, error) {
	historyPath, err := s.historyPath(category)
	if err != nil {
		return nil, err
	}

	data, readErr := os.ReadFile(historyPath)
	if readErr != nil {
		if !os.IsNotExist(readErr) {
			return nil, fmt.Errorf("%w: failed to read %s: %w", core.ErrPersistence, historyPath, readErr)
		}

		createErr := s.createEmptyHistory(historyPath)
		if createErr != nil {
			return nil, createErr
		}

		return []core.GenerationResult{}, nil
	}

	var history []core.GenerationResult

	err = json.Unmarshal(data, &history)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt history log %s: %w", core.ErrPersistence, historyPath, err)
	}

	if history == nil {
		history = []core.GenerationResult{}
	}

	return history, nil
}

func (s *Store) writeHistoryLocked(category core.Category, history []core.GenerationResult) error {
	historyPath, err := s.historyPath(category)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal history: %w", core.ErrPersistence, err)
	}

	err = os.WriteFile(historyPath, data, filePermissions)
	if err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", core.ErrPersistence, historyPath, err)
	}

	return nil
}

func (s *Store) createEmptyHistory(historyPath string) error {
	err := os.MkdirAll(filepath.Dir(historyPath), dirPermissions)
	if err != nil {
		return fmt.Errorf("%w: failed to create history directory: %w", core.ErrPersistence, err)
	}

	err = os.WriteFile(historyPath, []byte("[]"), filePermissions)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", core.ErrPersistence, historyPath, err)
	}

	return nil
}

func (s *Store) historyPath(category core.Category) (string, error) {
	dir, err := s.Dir(category)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, historyFileName), nil
}
