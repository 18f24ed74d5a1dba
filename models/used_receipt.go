package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsedReceipt is the permanent dedup index for scanned receipts. The
// natural key (order_number, order_date) carries a unique index so a
// second scan of the same receipt is rejected by the database itself
// rather than by a separate existence query.
type UsedReceipt struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrderNumber string    `gorm:"not null;uniqueIndex:idx_used_receipts_natural_key" json:"order_number"`
	OrderDate   string    `gorm:"not null;uniqueIndex:idx_used_receipts_natural_key" json:"order_date"` // YYYY-MM-DD
	OrderTotal  float64   `json:"order_total"`
	UserID      uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *UsedReceipt) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
