package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session is one camp activity occurrence children register for.
type Session struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	StartDate       *time.Time      `json:"start_date"`
	EndDate         *time.Time      `json:"end_date"`
	Price           decimal.Decimal `json:"price"`
	Capacity        int             `json:"capacity"`
	RegisteredCount int             `json:"registered_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SessionInput is used for creating/updating sessions.
type SessionInput struct {
	Name      string          `json:"name"`
	StartDate *time.Time      `json:"start_date"`
	EndDate   *time.Time      `json:"end_date"`
	Price     decimal.Decimal `json:"price"`
	Capacity  int             `json:"capacity"`
}

func (s *SessionInput) Validate() string {
	if s.Name == "" {
		return "name is required"
	}
	if s.Price.IsNegative() {
		return "price must be non-negative"
	}
	if s.Capacity < 0 {
		return "capacity must be non-negative"
	}
	return ""
}
