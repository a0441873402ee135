package models

import "gorm.io/gorm"

// User represents a user in the system, synced from Auth0 on first request.
type User struct {
	gorm.Model
	Auth0ID       string         `gorm:"unique;not null;size:100"`
	Nickname      string         `gorm:"not null;size:100"`
	FlashcardSets []FlashcardSet `gorm:"foreignKey:UserID"`
}
