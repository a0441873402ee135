package handlers

import (
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/cardsmith/cardsmith-api/middleware"
	"github.com/cardsmith/cardsmith-api/models"
	"github.com/cardsmith/cardsmith-api/textmatch"
)

func (db *DBHandler) GetFlashcardByID(w http.ResponseWriter, r *http.Request) {
	flashcardID := r.PathValue("flashcardID")
	if flashcardID == "" {
		http.Error(w, "Flashcard ID is required", http.StatusBadRequest)
		return
	}

	var flashcard models.Flashcard
	result := db.Where("public_id = ?", flashcardID).First(&flashcard)
	if result.Error != nil {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, flashcard)
}

// CreateFlashCard saves a card into a set: an accepted AI candidate
// (source ai-full/ai-edit) or a manually written one. Every save is
// screened for duplicates first; a similar-but-not-exact match can be
// overridden with ?force=true, an exact match cannot.
func (db *DBHandler) CreateFlashCard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	setID := r.PathValue("setID")
	var set models.FlashcardSet
	if err := db.Where("public_id = ?", setID).First(&set).Error; err != nil {
		http.Error(w, "Set not found", http.StatusNotFound)
		return
	}
	if set.UserID != user.ID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	type FlashcardRequestData struct {
		FrontText string `json:"front_text"`
		BackText  string `json:"back_text"`
		Source    string `json:"source"`
	}

	var req FlashcardRequestData
	if err := decoder.Decode(&req); err != nil {
		http.Error(w, "Could not decode request", http.StatusBadRequest)
		return
	}
	if msg := validateCardText(req.FrontText, req.BackText); msg != "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", msg, false)
		return
	}
	source := req.Source
	switch source {
	case models.SourceAIFull, models.SourceAIEdit, models.SourceManual:
	case "":
		source = models.SourceManual
	default:
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "source must be ai-full, ai-edit or manual.", false)
		return
	}

	check, err := db.Detector.Check(r.Context(), user.ID, req.FrontText, req.BackText)
	if err != nil {
		db.Log.Error("duplicate screen failed", "error", err.Error())
		http.Error(w, "Duplicate check failed", http.StatusInternalServerError)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if check.IsDuplicate && (check.DuplicateType == models.DuplicateExact || !force) {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"code":      "DUPLICATE",
			"message":   "A similar flashcard already exists.",
			"duplicate": check,
		})
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		http.Error(w, "Failed to generate ID", http.StatusInternalServerError)
		return
	}

	flashcard := models.Flashcard{
		PublicID:      publicID,
		FrontText:     req.FrontText,
		BackText:      req.BackText,
		FrontTextHash: textmatch.Hash(req.FrontText),
		BackTextHash:  textmatch.Hash(req.BackText),
		Source:        source,
		UserID:        user.ID,
		SetID:         set.ID,
	}

	if err := db.Create(&flashcard).Error; err != nil {
		http.Error(w, "Failed to create flashcard", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, flashcard)
}

// Limits count runes so multibyte text gets the full advertised range.
func validateCardText(front, back string) string {
	if front == "" || utf8.RuneCountInString(front) > 200 {
		return "front_text must be 1..200 characters."
	}
	if back == "" || utf8.RuneCountInString(back) > 500 {
		return "back_text must be 1..500 characters."
	}
	return ""
}

// UpdateFlashCardByID edits a card. Hashes are recomputed only for the
// fields that changed, in the same save, so text and hash never diverge.
func (db *DBHandler) UpdateFlashCardByID(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("setID")
	flashcardID := r.PathValue("flashcardID")

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var set models.FlashcardSet
	if err := db.Where("public_id = ?", setID).First(&set).Error; err != nil {
		http.Error(w, "Set not found", http.StatusNotFound)
		return
	}
	if set.UserID != user.ID {
		http.Error(w, "Forbidden: You do not own this set", http.StatusForbidden)
		return
	}

	var flashcard models.Flashcard
	if err := db.Where("public_id = ? AND set_id = ?", flashcardID, set.ID).First(&flashcard).Error; err != nil {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	type FlashcardUpdateRequest struct {
		FrontText *string `json:"front_text,omitempty"`
		BackText  *string `json:"back_text,omitempty"`
	}
	var req FlashcardUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	textChanged := false
	if req.FrontText != nil && *req.FrontText != flashcard.FrontText {
		if *req.FrontText == "" || utf8.RuneCountInString(*req.FrontText) > 200 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "front_text must be 1..200 characters.", false)
			return
		}
		flashcard.FrontText = *req.FrontText
		flashcard.FrontTextHash = textmatch.Hash(*req.FrontText)
		textChanged = true
	}
	if req.BackText != nil && *req.BackText != flashcard.BackText {
		if *req.BackText == "" || utf8.RuneCountInString(*req.BackText) > 500 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "back_text must be 1..500 characters.", false)
			return
		}
		flashcard.BackText = *req.BackText
		flashcard.BackTextHash = textmatch.Hash(*req.BackText)
		textChanged = true
	}
	if textChanged && flashcard.Source == models.SourceAIFull {
		flashcard.Source = models.SourceAIEdit
	}

	if err := db.Save(&flashcard).Error; err != nil {
		http.Error(w, "Failed to update flashcard", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, flashcard)
}

// DeleteFlashCardByID soft-deletes a card; the row stays for history but
// drops out of every query, including duplicate detection.
func (db *DBHandler) DeleteFlashCardByID(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("setID")
	flashcardID := r.PathValue("flashcardID")

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authorized", http.StatusForbidden)
		return
	}

	var set models.FlashcardSet
	if err := db.Where("public_id = ?", setID).First(&set).Error; err != nil {
		http.Error(w, "Could not find flashcard set", http.StatusNotFound)
		return
	}
	if set.UserID != user.ID {
		http.Error(w, "Not authorized", http.StatusForbidden)
		return
	}

	result := db.Where("public_id = ? AND set_id = ?", flashcardID, set.ID).Delete(&models.Flashcard{})
	if result.Error != nil {
		http.Error(w, "Failed to delete flashcard", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (db *DBHandler) GetFlashcardsForSet(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("setID")

	var set models.FlashcardSet
	if err := db.Preload("User").Where("public_id = ?", setID).First(&set).Error; err != nil {
		http.Error(w, "Set not found", http.StatusNotFound)
		return
	}

	if !set.IsPublic {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok || set.UserID != user.ID {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var flashcards []models.Flashcard
	if err := db.Where("set_id = ?", set.ID).Find(&flashcards).Error; err != nil {
		http.Error(w, "Failed to fetch flashcards", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, flashcards)
}

// ReviewFlashcard handles POST /api/flashcards/{flashcardID}/review,
// advancing the card's spaced-repetition schedule for a rating.
func (db *DBHandler) ReviewFlashcard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	flashcardID := r.PathValue("flashcardID")
	var flashcard models.Flashcard
	if err := db.Where("public_id = ? AND user_id = ?", flashcardID, user.ID).First(&flashcard).Error; err != nil {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	type ReviewRequest struct {
		Rating string `json:"rating"`
	}
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now()
	switch req.Rating {
	case "again":
		flashcard.Reps = 0
		flashcard.ScheduledDays = 0
		flashcard.Difficulty = clampScore(flashcard.Difficulty + 1)
		due := now.Add(10 * time.Minute)
		flashcard.Due = &due
	case "hard":
		flashcard.Reps++
		flashcard.ScheduledDays = maxInt(1, flashcard.ScheduledDays)
		flashcard.Difficulty = clampScore(flashcard.Difficulty + 1)
		due := now.AddDate(0, 0, flashcard.ScheduledDays)
		flashcard.Due = &due
	case "good":
		flashcard.Reps++
		flashcard.ScheduledDays = maxInt(1, flashcard.ScheduledDays*2)
		due := now.AddDate(0, 0, flashcard.ScheduledDays)
		flashcard.Due = &due
	case "easy":
		flashcard.Reps++
		flashcard.ScheduledDays = maxInt(2, flashcard.ScheduledDays*3)
		flashcard.Difficulty = clampScore(flashcard.Difficulty - 1)
		due := now.AddDate(0, 0, flashcard.ScheduledDays)
		flashcard.Due = &due
	default:
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "rating must be again, hard, good or easy.", false)
		return
	}

	if err := db.Save(&flashcard).Error; err != nil {
		http.Error(w, "Failed to update flashcard", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, flashcard)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
