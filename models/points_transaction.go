package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionTypeReceiptCredit    TransactionType = "receipt_credit"
	TransactionTypeAdminAdjustment  TransactionType = "admin_adjustment"
	TransactionTypeRedemptionDebit  TransactionType = "redemption_debit"
	TransactionTypeRedemptionRefund TransactionType = "redemption_refund"
)

// PointsTransaction is the append-only audit record for every balance
// mutation. Rows are written in the same database transaction as the
// balance change and are never updated or deleted.
type PointsTransaction struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User            User            `gorm:"foreignKey:UserID" json:"-"`
	Type            TransactionType `gorm:"not null;index" json:"type"`
	Amount          int             `gorm:"not null" json:"amount"` // signed; credits positive, debits negative
	Description     string          `json:"description"`
	Metadata        string          `json:"metadata,omitempty"` // JSON blob, e.g. receipt key or drink customizations
	PreviousBalance int             `json:"previous_balance"`
	NewBalance      int             `json:"new_balance"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (t *PointsTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsCredit reports whether the transaction type is expected to carry a
// positive amount.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeReceiptCredit || t == TransactionTypeRedemptionRefund
}
