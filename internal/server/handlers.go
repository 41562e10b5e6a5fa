package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nicekate/storylab/internal/artifact"
	"github.com/nicekate/storylab/internal/core"
)

type storyRequest struct {
	Topic    string `json:"topic"`
	Language string `json:"language"`
}

type storyResponse struct {
	Story string `json:"story"`
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req storyRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Language == "" {
		req.Language = "en"
	}

	if strings.TrimSpace(req.Topic) == "" {
		message := "Topic cannot be empty"
		if req.Language == "zh" {
			message = "主题不能为空"
		}

		s.writeInputError(w, message)

		return
	}

	storyText, err := s.story.GenerateStory(r.Context(), req.Topic, req.Language)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, storyResponse{Story: storyText})
}

type scenePromptsRequest struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

func (s *Server) handleScenePrompts(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req scenePromptsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		s.writeInputError(w, "Text is required")

		return
	}

	prompts, err := s.story.ScenePrompts(r.Context(), req.Text, req.Count)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}

type generateRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

type generateResponse struct {
	Output    string `json:"output"`
	FileName  string `json:"fileName"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`
	Language  string `json:"language"`
	Type      string `json:"type"`
}

func (s *Server) handleGenerateNarration(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req generateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		message := "Text is required"
		if req.Language == "zh" {
			message = "文本不能为空"
		}

		s.writeInputError(w, message)

		return
	}

	result, err := s.narration.Generate(r.Context(), req.Text, req.Language, req.Voice)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, generateResponse{
		Output:    result.EncodedOutput(),
		FileName:  result.FileName,
		Timestamp: result.Timestamp,
		Text:      result.Text,
		Voice:     result.Voice,
		Language:  result.Language,
		Type:      result.Provider,
	})
}

// narrationMetadata is the client-supplied record on the save-audio path.
type narrationMetadata struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`
	FileName  string `json:"fileName"`
	Language  string `json:"language"`
	Type      string `json:"type"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleSaveNarration(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	err := r.ParseMultipartForm(maxUploadBytes)
	if err != nil {
		s.writeInputError(w, "Invalid multipart form")

		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeInputError(w, "Missing file or metadata")

		return
	}
	defer file.Close()

	metadataStr := r.FormValue("metadata")
	if metadataStr == "" {
		s.writeInputError(w, "Missing file or metadata")

		return
	}

	var metadata narrationMetadata

	err = unmarshalStrict(metadataStr, &metadata)
	if err != nil {
		s.writeInputError(w, "Invalid metadata")

		return
	}

	if metadata.FileName == "" {
		s.writeInputError(w, "Metadata must include a file name")

		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: failed to read uploaded audio: %w", core.ErrPersistence, err))

		return
	}

	fileName := artifact.SanitizeFileName(metadata.FileName)

	record := core.GenerationResult{
		ID:         metadata.ID,
		SourceText: metadata.Text,
		FileName:   fileName,
		FilePath:   artifact.URLPath(core.CategoryNarration, fileName),
		Category:   core.CategoryNarration,
		CreatedAt:  metadata.Timestamp,
		Voice:      metadata.Voice,
		Language:   metadata.Language,
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if record.CreatedAt == "" {
		record.CreatedAt = s.now().UTC().Format(timestampFormat)
	}

	err = s.store.Persist(r.Context(), core.CategoryNarration, data, record)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.notifier.ArtifactPersisted(r.Context(), record)

	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleNarrationHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	history, err := s.store.ReadHistory(r.Context(), core.CategoryNarration)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, history)
}

type placementRequest struct {
	Story        string   `json:"story"`
	SoundEffects []string `json:"soundEffects"`
}

type placementResponse struct {
	PlacementGuide string `json:"placementGuide"`
}

func (s *Server) handlePlacementGuide(w http.ResponseWriter, r *http.Request) {
	if !s.requirePost(w, r) {
		return
	}

	var req placementRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Story) == "" {
		s.writeInputError(w, "Story is required")

		return
	}

	if len(req.SoundEffects) == 0 {
		s.writeInputError(w, "Sound effect list cannot be empty")

		return
	}

	guide, err := s.story.PlacementGuide(r.Context(), req.Story, req.SoundEffects)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, placementResponse{PlacementGuide: guide})
}
