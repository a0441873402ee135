package handlers

import (
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/cardsmith/cardsmith-api/aiservice"
	"github.com/cardsmith/cardsmith-api/middleware"
	"github.com/cardsmith/cardsmith-api/models"
)

const (
	minGenerationText = 1000
	maxGenerationText = 10000
)

// GenerateCandidates handles POST /api/generations. The body carries either
// free text (1000..10000 chars) or a topic-based request.
func (db *DBHandler) GenerateCandidates(w http.ResponseWriter, r *http.Request) {
	_, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in to generate flashcards.", false)
		return
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	type GenerationRequestData struct {
		Text              string `json:"text"`
		Topic             string `json:"topic"`
		DifficultyLevel   string `json:"difficulty_level"`
		Count             int    `json:"count"`
		Category          string `json:"category"`
		AdditionalContext string `json:"additional_context"`
	}

	var req GenerationRequestData
	if err := decoder.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Could not decode request.", false)
		return
	}

	if msg := validateGenerationRequest(req.Text, req.Topic, req.DifficultyLevel, req.Count, req.AdditionalContext); msg != "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", msg, false)
		return
	}

	result, err := db.Generator.Generate(r.Context(), aiservice.GenerationRequest{
		Text:              req.Text,
		Topic:             req.Topic,
		Difficulty:        req.DifficultyLevel,
		Count:             req.Count,
		Category:          req.Category,
		AdditionalContext: req.AdditionalContext,
	})
	if err != nil {
		db.Log.Error("generation failed", "error", err.Error())
		respondProviderError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Length limits here count runes, not bytes, so multibyte input gets the
// full advertised range.
func validateGenerationRequest(text, topic, difficulty string, count int, additionalContext string) string {
	if text == "" && topic == "" {
		return "Either text or topic is required."
	}
	if n := utf8.RuneCountInString(text); text != "" && (n < minGenerationText || n > maxGenerationText) {
		return "text must be between 1000 and 10000 characters."
	}
	if text == "" {
		if n := utf8.RuneCountInString(topic); n < 3 || n > 200 {
			return "topic must be between 3 and 200 characters."
		}
		if count < 1 || count > 10 {
			return "count must be between 1 and 10."
		}
	}
	switch difficulty {
	case "", models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
	default:
		return "difficulty_level must be easy, medium or hard."
	}
	if utf8.RuneCountInString(additionalContext) > 1000 {
		return "additional_context must be at most 1000 characters."
	}
	return ""
}

// CheckDuplicate handles POST /api/flashcards/check-duplicate.
func (db *DBHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", false)
		return
	}

	type DuplicateCheckRequest struct {
		FrontText string `json:"front_text"`
		BackText  string `json:"back_text"`
	}
	var req DuplicateCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body.", false)
		return
	}
	if req.FrontText == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "front_text is required.", false)
		return
	}

	result, err := db.Detector.Check(r.Context(), user.ID, req.FrontText, req.BackText)
	if err != nil {
		db.Log.Error("duplicate check failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "UNKNOWN", "Duplicate check failed.", false)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// BreakerStatus handles GET /api/ops/breaker.
func (db *DBHandler) BreakerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"breaker":    db.Breaker.Snapshot(),
		"retry":      db.Retry.Stats(),
		"generation": string(db.Generator.Mode()),
	})
}

// BreakerReset handles POST /api/ops/breaker/reset.
func (db *DBHandler) BreakerReset(w http.ResponseWriter, r *http.Request) {
	db.Breaker.Reset()
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
