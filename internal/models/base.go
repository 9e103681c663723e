package models

import (
	"time"

	"github.com/google/uuid"
)

// Base is the base model for all documents. IDs are UUID strings stored in
// _id for API compatibility with the original document database.
type Base struct {
	ID        string    `json:"id"       bson:"_id"`
	CreatedAt time.Time `json:"created"  bson:"created_at"`
	UpdatedAt time.Time `json:"modified" bson:"updated_at"`
}

// NewBase initializes ID and timestamps for a new document.
func NewBase() Base {
	now := time.Now().UTC()
	return Base{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
}

// Touch bumps the modification timestamp.
func (b *Base) Touch() { b.UpdatedAt = time.Now().UTC() }
