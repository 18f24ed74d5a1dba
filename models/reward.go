package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reward is a catalog entry users can redeem points against. PointsRequired
// is fixed per reward; the redemption service re-checks the user's live
// balance against it at debit time, never at selection time.
type Reward struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Title          string         `gorm:"not null" json:"title"`
	Description    string         `json:"description"`
	Category       string         `gorm:"index" json:"category"`
	PointsRequired int            `gorm:"not null" json:"points_required"`
	ImageURL       string         `json:"image_url"`
	// Tier restricts which menu items the reward can be applied to. A nil
	// tier with no explicit eligible items means any active item qualifies.
	Tier          *int           `json:"tier,omitempty"`
	EligibleItems []MenuItem     `gorm:"many2many:reward_eligible_items" json:"eligible_items,omitempty"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *Reward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
