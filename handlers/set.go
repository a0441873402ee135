package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/cardsmith/cardsmith-api/middleware"
	"github.com/cardsmith/cardsmith-api/models"
	"github.com/cardsmith/cardsmith-api/textmatch"
)

// /api/sets/{setID}

func (db *DBHandler) GetSetByID(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("setID")
	var set models.FlashcardSet
	// Preload the User so the ownership check doesn't need a second query
	if err := db.Preload("User").Preload("Flashcards").Where("public_id = ?", setID).First(&set).Error; err != nil {
		db.Log.Warn("set not found", "public_id", setID, "error", err.Error())
		http.Error(w, fmt.Sprintf("Set with ID %s not found", setID), http.StatusNotFound)
		return
	}

	user, authed := middleware.UserFromContext(r.Context())
	isOwner := authed && set.UserID == user.ID

	type SetResponse struct {
		models.FlashcardSet
		IsOwner bool `json:"IsOwner"`
	}

	response := SetResponse{
		FlashcardSet: set,
		IsOwner:      isOwner,
	}

	if !set.IsPublic && !isOwner {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// POST /api/sets
func (db *DBHandler) CreateFlashCardSet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	type CreateSetRequest struct {
		Title    string `json:"Title"`
		IsPublic bool   `json:"IsPublic"`
	}
	var req CreateSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	set := models.FlashcardSet{
		Title:    req.Title,
		UserID:   user.ID,
		IsPublic: req.IsPublic,
		PublicID: publicID,
	}

	if err := db.Create(&set).Error; err != nil {
		db.Log.Error("failed to create set", "error", err.Error())
		http.Error(w, "Failed to create set", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, set)
}

func (db *DBHandler) UpdateSetByID(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("setID")

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
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	type UpdateSetRequest struct {
		Title    *string `json:"Title,omitempty"`
		IsPublic *bool   `json:"IsPublic,omitempty"`
	}
	var req UpdateSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title != nil {
		set.Title = *req.Title
	}
	if req.IsPublic != nil {
		set.IsPublic = *req.IsPublic
	}

	if err := db.Save(&set).Error; err != nil {
		http.Error(w, "Failed to update set", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, set)
}

func (db *DBHandler) DeleteSetByID(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("setID")

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
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// Cards first so the set never points at live orphans
	if err := db.Where("set_id = ?", set.ID).Delete(&models.Flashcard{}).Error; err != nil {
		http.Error(w, "Failed to delete flashcards", http.StatusInternalServerError)
		return
	}
	if err := db.Delete(&set).Error; err != nil {
		http.Error(w, "Failed to delete set", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/users/{nickname}/sets
func (db *DBHandler) GetSetsForUser(w http.ResponseWriter, r *http.Request) {
	nickname := r.PathValue("nickname")

	var owner models.User
	if err := db.Where("nickname = ?", nickname).First(&owner).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	requester, authed := middleware.UserFromContext(r.Context())
	isOwner := authed && requester.ID == owner.ID

	query := db.Where("user_id = ?", owner.ID)
	if !isOwner {
		query = query.Where("is_public = ?", true)
	}

	var sets []models.FlashcardSet
	if err := query.Find(&sets).Error; err != nil {
		http.Error(w, "Failed to fetch sets", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, sets)
}

// CreateSetWithCards handles POST /api/sets/with-cards: the curation save,
// persisting a batch of accepted candidates as a new set in one
// transaction. Cards that duplicate an existing card of the user are
// skipped and reported rather than failing the whole batch.
func (db *DBHandler) CreateSetWithCards(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var requestData struct {
		Title    string `json:"title"`
		IsPublic bool   `json:"is_public"`
		Cards    []struct {
			FrontText string `json:"front_text"`
			BackText  string `json:"back_text"`
			Source    string `json:"source"`
		} `json:"cards"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestData); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if requestData.Title == "" || len(requestData.Cards) == 0 {
		http.Error(w, "Set title and at least one card are required", http.StatusBadRequest)
		return
	}

	for _, card := range requestData.Cards {
		if msg := validateCardText(card.FrontText, card.BackText); msg != "" {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", msg, false)
			return
		}
	}

	// Screen before the transaction; the scan reads committed cards only.
	var skipped []models.DuplicateCheckResult
	var toSave []int
	for i, card := range requestData.Cards {
		check, err := db.Detector.Check(r.Context(), user.ID, card.FrontText, card.BackText)
		if err != nil {
			http.Error(w, "Duplicate check failed", http.StatusInternalServerError)
			return
		}
		if check.IsDuplicate {
			skipped = append(skipped, check)
			continue
		}
		toSave = append(toSave, i)
	}
	if len(toSave) == 0 {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"code":    "DUPLICATE",
			"message": "Every card in the batch duplicates an existing flashcard.",
			"skipped": skipped,
		})
		return
	}

	setPublicID, err := gonanoid.New()
	if err != nil {
		http.Error(w, "Failed to generate ID", http.StatusInternalServerError)
		return
	}
	flashcardSet := models.FlashcardSet{
		Title:    requestData.Title,
		UserID:   user.ID,
		IsPublic: requestData.IsPublic,
		PublicID: setPublicID,
	}

	tx := db.Begin()
	if tx.Error != nil {
		http.Error(w, "Could not begin transaction", http.StatusInternalServerError)
		return
	}

	if err := tx.Create(&flashcardSet).Error; err != nil {
		tx.Rollback()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for _, i := range toSave {
		card := requestData.Cards[i]
		source := card.Source
		switch source {
		case models.SourceAIFull, models.SourceAIEdit, models.SourceManual:
		default:
			source = models.SourceManual
		}
		publicID, err := gonanoid.New()
		if err != nil {
			tx.Rollback()
			http.Error(w, "Failed to generate ID", http.StatusInternalServerError)
			return
		}
		flashcard := models.Flashcard{
			PublicID:      publicID,
			FrontText:     card.FrontText,
			BackText:      card.BackText,
			FrontTextHash: textmatch.Hash(card.FrontText),
			BackTextHash:  textmatch.Hash(card.BackText),
			Source:        source,
			UserID:        user.ID,
			SetID:         flashcardSet.ID,
		}
		if err := tx.Create(&flashcard).Error; err != nil {
			tx.Rollback()
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Could not commit transaction", http.StatusInternalServerError)
		return
	}

	if err := db.Preload("Flashcards").First(&flashcardSet, flashcardSet.ID).Error; err != nil {
		http.Error(w, "Error retrieving created set", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"set":     flashcardSet,
		"skipped": skipped,
	})
}
