package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nicekate/storylab/internal/artifact"
	"github.com/nicekate/storylab/internal/batch"
	"github.com/nicekate/storylab/internal/core"
)

const timestampFormat = time.RFC3339

const soundEffectFileExt = ".mp3"
const soundEffectFilePrefix = "sfx"

// unmarshalStrict parses JSON held in a form value.
func unmarshalStrict(payload string, target any) error {
	err := json.Unmarshal([]byte(payload), target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}

type soundEffectRequest struct {
	Text            string   `json:"text"`
	DurationSeconds *float64 `json:"duration_seconds"`
	PromptInfluence *float64 `json:"prompt_influence"`
}

type soundEffectResponse struct {
	Success bool `json:"success"`
	core.GenerationResult
}

func (s *Server) handleSoundEffect(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req soundEffectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		s.writeInputError(w, "Text is required")

		return
	}

	record, err := s.generateAndPersistEffect(r.Context(), req.Text, req.DurationSeconds, req.PromptInfluence)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, soundEffectResponse{
		Success:          true,
		GenerationResult: record,
	})
}

type soundEffectBatchRequest struct {
	Effects []string `json:"effects"`
}

type soundEffectBatchResponse struct {
	Success bool                    `json:"success"`
	Results []core.GenerationResult `json:"results"`
	Errors  []core.Failure          `json:"errors,omitempty"`
}

func (s *Server) handleSoundEffectBatch(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req soundEffectBatchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if len(req.Effects) == 0 {
		s.writeInputError(w, "Sound effect list cannot be empty")

		return
	}

	orchestrator := batch.New(s.log, batch.WithItemDelay(s.batchDelay))

	outcome, err := orchestrator.Run(
		r.Context(),
		batch.Items(req.Effects),
		func(ctx context.Context, item core.WorkItem) (core.GenerationResult, error) {
			return s.generateAndPersistEffect(ctx, item.Content, nil, nil)
		},
	)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, soundEffectBatchResponse{
		Success: true,
		Results: outcome.Results,
		Errors:  outcome.Failures,
	})
}

// generateAndPersistEffect is the per-item operation shared by the single
// and the batch sound-effect flows: one provider call, then one persist.
func (s *Server) generateAndPersistEffect(
	ctx context.Context,
	text string,
	durationSeconds, promptInfluence *float64,
) (core.GenerationResult, error) {
	audio, err := s.effects.GenerateSoundEffect(ctx, text, durationSeconds, promptInfluence)
	if err != nil {
		return core.GenerationResult{}, err
	}

	now := s.now().UTC()
	fileName := artifact.BuildFileName(soundEffectFilePrefix, text, soundEffectFileExt, now)

	record := core.GenerationResult{
		ID:              uuid.NewString(),
		SourceText:      text,
		FileName:        fileName,
		FilePath:        artifact.URLPath(core.CategorySoundEffect, fileName),
		Category:        core.CategorySoundEffect,
		CreatedAt:       now.Format(timestampFormat),
		DurationSeconds: durationSeconds,
		PromptInfluence: promptInfluence,
	}

	err = s.store.Persist(ctx, core.CategorySoundEffect, audio, record)
	if err != nil {
		return core.GenerationResult{}, err
	}

	s.notifier.ArtifactPersisted(ctx, record)

	return record, nil
}

type saveSoundEffectRequest struct {
	Audio    string `json:"audio"`
	FileName string `json:"fileName"`
}

type saveSoundEffectResponse struct {
	Success  bool   `json:"success"`
	FilePath string `json:"filePath"`
}

func (s *Server) handleSaveSoundEffect(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req saveSoundEffectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Audio == "" || req.FileName == "" {
		s.writeInputError(w, "Audio data and file name are required")

		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		s.writeInputError(w, "Audio data is not valid base64")

		return
	}

	fileName := artifact.SanitizeFileName(req.FileName)

	filePath, err := s.store.SaveBinary(r.Context(), core.CategorySoundEffect, fileName, audio)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, saveSoundEffectResponse{
		Success:  true,
		FilePath: filePath,
	})
}

func (s *Server) handleSoundEffectHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	history, err := s.store.ReadHistory(r.Context(), core.CategorySoundEffect)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, history)
}

type suggestionsRequest struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

type suggestionsResponse struct {
	SoundEffects []string `json:"soundEffects"`
}

func (s *Server) handleSoundEffectSuggestions(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req suggestionsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		s.writeInputError(w, "Text is required")

		return
	}

	suggestions, err := s.story.SuggestSoundEffects(r.Context(), req.Text, req.Count)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, suggestionsResponse{SoundEffects: suggestions})
}
