package receipts

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"dumplinghouse-backend/models"
	"dumplinghouse-backend/services/ledger"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointsPerDollar is the earn rate applied to the receipt total.
const PointsPerDollar = 5

// ReceiptKey is the natural key a physical receipt is deduplicated on.
// The date keeps its year: two receipts printed a year apart with the same
// order number are different receipts.
type ReceiptKey struct {
	OrderNumber string
	OrderDate   string // YYYY-MM-DD
}

// NormalizeKey canonicalizes the extracted order details into the dedup key.
func NormalizeKey(orderNumber string, orderDate time.Time) ReceiptKey {
	return ReceiptKey{
		OrderNumber: strings.ToLower(strings.TrimSpace(orderNumber)),
		OrderDate:   orderDate.Format("2006-01-02"),
	}
}

// PointsForTotal computes the points earned for a receipt total: 5 points
// per dollar, floored. The total is converted to whole cents first so that
// float artifacts (23.40*5 = 116.999...) cannot round a customer down.
func PointsForTotal(total float64) int {
	if total <= 0 {
		return 0
	}
	cents := int(math.Round(total * 100))
	return cents * PointsPerDollar / 100
}

// DuplicateReceiptError reports the receipt that already claimed the key,
// so the caller can show the conflicting order's details.
type DuplicateReceiptError struct {
	Existing models.UsedReceipt
}

func (e *DuplicateReceiptError) Error() string {
	return fmt.Sprintf("receipt %s from %s has already been used", e.Existing.OrderNumber, e.Existing.OrderDate)
}

// CreditResult describes a successful receipt admission.
type CreditResult struct {
	Receipt models.UsedReceipt
	Points  int
	Balance ledger.Result
}

// Guard admits each physical receipt for crediting at most once. Admission
// is a single conditional insert against the unique natural-key index, so
// two concurrent scans of the same receipt race inside the database rather
// than across two round-trips.
type Guard struct {
	DB     *gorm.DB
	Ledger *ledger.Service
	cache  *keyCache
}

func NewGuard(db *gorm.DB, ledgerSvc *ledger.Service) *Guard {
	return &Guard{DB: db, Ledger: ledgerSvc, cache: newKeyCache()}
}

// WarmCache loads existing receipt keys into the in-memory fast path. Errors
// are returned but callers may ignore them; the cache is not authoritative.
func (g *Guard) WarmCache() error {
	var receipts []models.UsedReceipt
	if err := g.DB.Select("order_number", "order_date").Find(&receipts).Error; err != nil {
		return err
	}
	for _, r := range receipts {
		g.cache.Add(ReceiptKey{OrderNumber: r.OrderNumber, OrderDate: r.OrderDate})
	}
	return nil
}

// Admit records the receipt and credits the points in one database
// transaction. Returns *DuplicateReceiptError if the key was already
// claimed; in that case nothing is credited.
func (g *Guard) Admit(userID uuid.UUID, key ReceiptKey, orderTotal float64) (CreditResult, error) {
	// Fast path only; the insert below remains the authoritative check.
	if g.cache.Contains(key) {
		if existing, err := g.findExisting(key); err == nil {
			return CreditResult{}, &DuplicateReceiptError{Existing: existing}
		}
	}

	points := PointsForTotal(orderTotal)

	var result CreditResult
	err := g.DB.Transaction(func(tx *gorm.DB) error {
		receipt := models.UsedReceipt{
			ID:          uuid.New(),
			OrderNumber: key.OrderNumber,
			OrderDate:   key.OrderDate,
			OrderTotal:  orderTotal,
			UserID:      userID,
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_number"}, {Name: "order_date"}},
			DoNothing: true,
		}).Create(&receipt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			existing, err := g.findExistingTx(tx, key)
			if err != nil {
				return err
			}
			return &DuplicateReceiptError{Existing: existing}
		}

		result.Receipt = receipt
		result.Points = points

		// Totals under 20 cents floor to zero points; the receipt is still
		// burned so it cannot be resubmitted for a larger total later.
		if points == 0 {
			return nil
		}

		balance, err := g.Ledger.ApplyTx(tx, userID, points, models.TransactionTypeReceiptCredit,
			fmt.Sprintf("Receipt %s scanned", key.OrderNumber),
			map[string]interface{}{
				"order_number": key.OrderNumber,
				"order_date":   key.OrderDate,
				"order_total":  orderTotal,
			})
		if err != nil {
			return err
		}
		result.Balance = balance
		return nil
	})
	if err != nil {
		// A duplicate seen via the database still warms the cache, so repeat
		// scans of the same known receipt skip the round-trip next time.
		var dup *DuplicateReceiptError
		if errors.As(err, &dup) {
			g.cache.Add(key)
		}
		return CreditResult{}, err
	}

	g.cache.Add(key)
	return result, nil
}

func (g *Guard) findExisting(key ReceiptKey) (models.UsedReceipt, error) {
	return g.findExistingTx(g.DB, key)
}

func (g *Guard) findExistingTx(tx *gorm.DB, key ReceiptKey) (models.UsedReceipt, error) {
	var existing models.UsedReceipt
	err := tx.Where("order_number = ? AND order_date = ?", key.OrderNumber, key.OrderDate).First(&existing).Error
	return existing, err
}
