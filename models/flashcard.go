package models

import (
	"time"

	"gorm.io/gorm"
)

// Flashcard source values. ai-full means an accepted candidate saved
// verbatim, ai-edit means the user edited it before saving.
const (
	SourceAIFull = "ai-full"
	SourceAIEdit = "ai-edit"
	SourceManual = "manual"
)

// Flashcard represents an individual flashcard. FrontTextHash and
// BackTextHash are always the hash of the current normalized text; any
// update that changes the text must recompute the matching hash in the
// same save. Deletion is soft (gorm DeletedAt); the API never hard-deletes.
type Flashcard struct {
	gorm.Model
	PublicID  string `gorm:"size:100;uniqueIndex"`
	FrontText string `gorm:"not null;size:200"`
	BackText  string `gorm:"not null;size:500"`

	FrontTextHash string `gorm:"not null;size:64;index"`
	BackTextHash  string `gorm:"size:64"`

	Source string `gorm:"not null;size:20;default:manual"`

	UserID uint `gorm:"not null;index"`
	SetID  uint `gorm:"not null;index"`

	FlashcardSet FlashcardSet `gorm:"foreignKey:SetID" json:"-"`

	// Spaced-repetition scheduling state. Difficulty here is the review
	// score, not the AI-assigned difficulty of a candidate.
	Difficulty    int        `gorm:"default:0"`
	Due           *time.Time `gorm:"default:null"`
	Reps          int        `gorm:"default:0"`
	ScheduledDays int        `gorm:"default:0"`
}
