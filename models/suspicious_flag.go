package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FlagSeverity string

const (
	FlagSeverityLow      FlagSeverity = "low"
	FlagSeverityMedium   FlagSeverity = "medium"
	FlagSeverityHigh     FlagSeverity = "high"
	FlagSeverityCritical FlagSeverity = "critical"
)

type FlagStatus string

const (
	FlagStatusPending     FlagStatus = "pending"
	FlagStatusReviewed    FlagStatus = "reviewed"
	FlagStatusDismissed   FlagStatus = "dismissed"
	FlagStatusActionTaken FlagStatus = "action_taken"
)

// SuspiciousFlag is a fraud signal raised by backend heuristics (e.g. scan
// velocity, repeated near-duplicate receipts). Admins work the queue via
// the review endpoint; this service never creates flags on its own hot path.
type SuspiciousFlag struct {
	ID           uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID       uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
	User         User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Severity     FlagSeverity `gorm:"not null;index" json:"severity"`
	RiskScore    int          `gorm:"not null" json:"risk_score"` // 0-100
	Status       FlagStatus   `gorm:"default:pending;index" json:"status"`
	Evidence     string       `json:"evidence"`      // JSON blob from the heuristic
	UserSnapshot string       `json:"user_snapshot"` // JSON snapshot of the account at flag time
	ReviewedBy   *uuid.UUID   `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewNotes  string       `json:"review_notes"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (f *SuspiciousFlag) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
