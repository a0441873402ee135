// Package store is the persistence boundary for flashcards. The duplicate
// detector and the save path depend only on the CardStore interface, never
// on raw queries.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cardsmith/cardsmith-api/models"
)

// CardStore is the flashcard persistence contract.
type CardStore interface {
	// FindByHash returns the user's non-deleted flashcard whose front text
	// hash matches, or (nil, nil) when there is none.
	FindByHash(ctx context.Context, userID uint, hash string) (*models.Flashcard, error)
	// ListActive returns all of the user's non-deleted flashcards.
	ListActive(ctx context.Context, userID uint) ([]models.Flashcard, error)
	// Insert persists a new flashcard.
	Insert(ctx context.Context, card *models.Flashcard) error
	// Update applies the given column updates to a flashcard.
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	// SoftDelete marks a flashcard deleted without removing the row.
	SoftDelete(ctx context.Context, id uint) error
}

// GormCardStore implements CardStore on gorm. Soft deletion rides on
// gorm.Model's DeletedAt, which also filters deleted rows out of queries.
type GormCardStore struct {
	DB *gorm.DB
}

func NewGormCardStore(db *gorm.DB) *GormCardStore {
	return &GormCardStore{DB: db}
}

func (s *GormCardStore) FindByHash(ctx context.Context, userID uint, hash string) (*models.Flashcard, error) {
	var card models.Flashcard
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND front_text_hash = ?", userID, hash).
		First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (s *GormCardStore) ListActive(ctx context.Context, userID uint) ([]models.Flashcard, error) {
	var cards []models.Flashcard
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *GormCardStore) Insert(ctx context.Context, card *models.Flashcard) error {
	return s.DB.WithContext(ctx).Create(card).Error
}

func (s *GormCardStore) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.DB.WithContext(ctx).Model(&models.Flashcard{}).Where("id = ?", id).Updates(fields).Error
}

func (s *GormCardStore) SoftDelete(ctx context.Context, id uint) error {
	return s.DB.WithContext(ctx).Delete(&models.Flashcard{}, id).Error
}
