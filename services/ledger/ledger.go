package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"dumplinghouse-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUserNotFound is returned when the target account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInsufficientPoints is returned when a debit would take the balance
	// below zero. The transaction is rolled back and nothing is recorded.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrInvalidAmount is returned when the delta is zero or its sign does
	// not match the transaction type.
	ErrInvalidAmount = errors.New("invalid amount for transaction type")
)

// Result reports the balance snapshot taken inside the transaction that
// applied the mutation.
type Result struct {
	PreviousBalance int
	NewBalance      int
	LifetimePoints  int
	TransactionID   uuid.UUID
}

// Service is the single chokepoint for point balance mutations. Every
// writer (receipt credit, redemption debit/refund, admin adjustment) goes
// through Apply or ApplyTx; no other code path may touch users.points or
// users.lifetime_points.
type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Apply mutates the user's balance by delta in its own database transaction
// and records the matching PointsTransaction atomically with it.
func (s *Service) Apply(userID uuid.UUID, delta int, txType models.TransactionType, description string, metadata map[string]interface{}) (Result, error) {
	var res Result
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		res, txErr = s.ApplyTx(tx, userID, delta, txType, description, metadata)
		return txErr
	})
	return res, err
}

// ApplyTx is Apply running inside a caller-owned transaction, so callers
// like the redemption service can make a balance change atomic with their
// own writes. The user row is locked for the duration to serialize
// concurrent writers.
func (s *Service) ApplyTx(tx *gorm.DB, userID uuid.UUID, delta int, txType models.TransactionType, description string, metadata map[string]interface{}) (Result, error) {
	if err := validateAmount(delta, txType); err != nil {
		return Result{}, err
	}

	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, ErrUserNotFound
		}
		return Result{}, err
	}

	previous := user.Points
	newBalance := previous + delta
	if newBalance < 0 {
		return Result{}, ErrInsufficientPoints
	}

	updates := map[string]interface{}{"points": newBalance}
	// Lifetime total models cumulative earning: it moves only on receipt
	// credits, never on redemptions or admin corrections.
	if txType == models.TransactionTypeReceiptCredit {
		updates["lifetime_points"] = user.LifetimePoints + delta
		user.LifetimePoints += delta
	}

	if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return Result{}, err
	}

	metaJSON := ""
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return Result{}, fmt.Errorf("failed to encode transaction metadata: %w", err)
		}
		metaJSON = string(raw)
	}

	record := models.PointsTransaction{
		ID:              uuid.New(),
		UserID:          userID,
		Type:            txType,
		Amount:          delta,
		Description:     description,
		Metadata:        metaJSON,
		PreviousBalance: previous,
		NewBalance:      newBalance,
	}
	if err := tx.Create(&record).Error; err != nil {
		return Result{}, err
	}

	return Result{
		PreviousBalance: previous,
		NewBalance:      newBalance,
		LifetimePoints:  user.LifetimePoints,
		TransactionID:   record.ID,
	}, nil
}

// validateAmount enforces the sign convention: credits positive, debits
// negative, admin adjustments either direction but never zero.
func validateAmount(delta int, txType models.TransactionType) error {
	switch txType {
	case models.TransactionTypeReceiptCredit, models.TransactionTypeRedemptionRefund:
		if delta <= 0 {
			return ErrInvalidAmount
		}
	case models.TransactionTypeRedemptionDebit:
		if delta >= 0 {
			return ErrInvalidAmount
		}
	case models.TransactionTypeAdminAdjustment:
		if delta == 0 {
			return ErrInvalidAmount
		}
	default:
		return fmt.Errorf("unknown transaction type %q", txType)
	}
	return nil
}
