package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RedemptionStatus string

const (
	RedemptionStatusReserved  RedemptionStatus = "reserved"
	RedemptionStatusFulfilled RedemptionStatus = "fulfilled"
	RedemptionStatusRefunded  RedemptionStatus = "refunded"
)

// Redemption tracks a reward reservation against a user's balance. A user
// may hold at most one redemption in the reserved state; it must be
// fulfilled at the counter or refunded (on expiry or cancellation) before
// a new one can be created.
type Redemption struct {
	ID          uuid.UUID        `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	User        User             `gorm:"foreignKey:UserID" json:"-"`
	RewardID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"reward_id"`
	RewardTitle string           `json:"reward_title"` // snapshot at reserve time
	Code        string           `gorm:"uniqueIndex;not null" json:"code"`
	PointCost   int              `gorm:"not null" json:"point_cost"`
	Status      RedemptionStatus `gorm:"default:reserved;index" json:"status"`
	ExpiresAt   time.Time        `gorm:"not null" json:"expires_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (r *Redemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ExpiredAt reports whether a reserved redemption is past its expiry window
// at the given instant. Terminal redemptions never expire.
func (r *Redemption) ExpiredAt(now time.Time) bool {
	return r.Status == RedemptionStatusReserved && now.After(r.ExpiresAt)
}

// AllowedRedemptionTransitions defines the redemption state machine.
// Reserved is entered when points are debited; fulfilled and refunded are
// terminal.
var AllowedRedemptionTransitions = map[RedemptionStatus][]RedemptionStatus{
	RedemptionStatusReserved:  {RedemptionStatusFulfilled, RedemptionStatusRefunded},
	RedemptionStatusFulfilled: {},
	RedemptionStatusRefunded:  {},
}

// IsValidRedemptionTransition checks if a status transition is allowed.
func IsValidRedemptionTransition(from, to RedemptionStatus) bool {
	allowed, exists := AllowedRedemptionTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
