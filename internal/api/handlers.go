// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/88dreams/SheetGPT-sub005/internal/engine"
	"github.com/88dreams/SheetGPT-sub005/internal/entity"
	"github.com/88dreams/SheetGPT-sub005/internal/extraction"
	"github.com/88dreams/SheetGPT-sub005/internal/table"
)

// ExtractRequest is the body of POST /api/v1/extract.
type ExtractRequest struct {
	Content        string `json:"content" validate:"required"`
	MessageID      string `json:"message_id" validate:"omitempty,max=256"`
	ConversationID string `json:"conversation_id" validate:"omitempty,max=256"`
	// Final defaults to true.
	Final *bool `json:"final,omitempty"`
}

// NormalizeRequest is the body of POST /api/v1/normalize.
type NormalizeRequest struct {
	Data json.RawMessage `json:"data" validate:"required"`
}

// ClassifyRequest is the body of POST /api/v1/classify.
type ClassifyRequest struct {
	Fields []string `json:"fields" validate:"required,min=1"`
}

type ClassifyResponse struct {
	Classification entity.Result  `json:"classification"`
	Scores         []entity.Score `json:"scores"`
}

// RecommendRequest is the body of POST /api/v1/recommend.
type RecommendRequest struct {
	Fields     []string `json:"fields" validate:"required,min=1"`
	EntityType string   `json:"entity_type" validate:"required"`
}

type RecommendResponse struct {
	EntityType      string            `json:"entity_type"`
	Mapping         map[string]string `json:"mapping"`
	MissingRequired []string          `json:"missing_required"`
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !s.decode(w, r, &req) {
		return
	}

	msg := extraction.RawMessage{
		ID:             req.MessageID,
		Role:           extraction.RoleAssistant,
		Content:        req.Content,
		ConversationID: req.ConversationID,
		CreatedAt:      time.Now().UTC(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	final := req.Final == nil || *req.Final

	out, err := s.pipeline.Process(r.Context(), msg, final)
	switch {
	case errors.Is(err, engine.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "content is required")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("extraction failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) normalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	data, err := table.Decode(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("data is not valid JSON: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, engine.NewNormalized(s.pipeline.Normalize(data)))
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, ClassifyResponse{
		Classification: s.pipeline.Classify(req.Fields),
		Scores:         s.pipeline.Scores(req.Fields),
	})
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if !s.decode(w, r, &req) {
		return
	}
	entityType := strings.ToLower(strings.TrimSpace(req.EntityType))

	mapping := s.pipeline.Recommend(req.Fields, entityType)
	missing, ok := s.pipeline.MissingRequired(entityType, entity.MappingFromRecommendation(mapping))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown entity type %q", req.EntityType))
		return
	}
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, RecommendResponse{
		EntityType:      entityType,
		Mapping:         mapping,
		MissingRequired: missing,
	})
}
