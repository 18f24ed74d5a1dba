package redemptions

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"dumplinghouse-backend/models"
	"dumplinghouse-backend/services/ledger"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRewardNotFound = errors.New("reward not found")
	// ErrActiveRedemptionExists is returned from Reserve while the user
	// already holds a live reserved redemption. The existing one must be
	// fulfilled or cancelled first.
	ErrActiveRedemptionExists = errors.New("an active redemption already exists")
	// ErrNoActiveRedemption is returned when a refund or fulfill finds no
	// reserved redemption to act on. A second refund of the same redemption
	// lands here, which is what makes refunds idempotent.
	ErrNoActiveRedemption = errors.New("no active redemption found")
	// ErrRedemptionExpired is returned from Fulfill when the reservation's
	// window has passed; the sweep will refund it.
	ErrRedemptionExpired = errors.New("redemption has expired")
)

// DefaultTTL is how long a reserved redemption stays live before the
// debited points are returned.
const DefaultTTL = 30 * time.Minute

// Service owns the reserve -> fulfill/expire -> refund state machine.
// All balance movement goes through the ledger chokepoint, atomic with the
// redemption status transition.
type Service struct {
	DB     *gorm.DB
	Ledger *ledger.Service
	TTL    time.Duration

	// now is swapped out in tests to drive expiry.
	now func() time.Time
}

func NewService(db *gorm.DB, ledgerSvc *ledger.Service, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{DB: db, Ledger: ledgerSvc, TTL: ttl, now: time.Now}
}

// Reserve debits the reward's point cost against the user's live balance
// and creates a reserved redemption with a fresh code and expiry window.
// The balance is re-read inside the transaction, so a stale reward screen
// cannot spend points the user no longer has.
func (s *Service) Reserve(userID, rewardID uuid.UUID, customizations map[string]interface{}) (models.Redemption, error) {
	var reward models.Reward
	if err := s.DB.Where("id = ? AND is_active = ?", rewardID, true).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Redemption{}, ErrRewardNotFound
		}
		return models.Redemption{}, err
	}

	code, err := generateCode()
	if err != nil {
		return models.Redemption{}, err
	}

	now := s.now()
	var redemption models.Redemption
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		// Lock the user row first: the existence check below locks nothing
		// when no reserved row exists, so without this two concurrent
		// reserves could both pass it and both insert.
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrUserNotFound
			}
			return err
		}

		var existing models.Redemption
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, models.RedemptionStatusReserved).
			First(&existing).Error
		switch {
		case err == nil:
			if !existing.ExpiredAt(now) {
				return ErrActiveRedemptionExists
			}
			// The previous reservation lapsed but the sweep has not caught
			// it yet; settle it here so the user is not blocked.
			if _, refundErr := s.refundLocked(tx, &existing); refundErr != nil {
				return refundErr
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// No active redemption, proceed.
		default:
			return err
		}

		meta := map[string]interface{}{
			"reward_id":    reward.ID.String(),
			"reward_title": reward.Title,
		}
		for k, v := range customizations {
			meta[k] = v
		}

		if _, err := s.Ledger.ApplyTx(tx, userID, -reward.PointsRequired, models.TransactionTypeRedemptionDebit,
			fmt.Sprintf("Redeemed %s", reward.Title), meta); err != nil {
			return err
		}

		redemption = models.Redemption{
			ID:          uuid.New(),
			UserID:      userID,
			RewardID:    reward.ID,
			RewardTitle: reward.Title,
			Code:        code,
			PointCost:   reward.PointsRequired,
			Status:      models.RedemptionStatusReserved,
			ExpiresAt:   now.Add(s.TTL),
		}
		// Backstop against the partial unique index on (user_id) for
		// reserved rows: a conflicting insert rolls the debit back instead
		// of leaving the user double-charged.
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&redemption)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrActiveRedemptionExists
		}
		return nil
	})
	if txErr != nil {
		return models.Redemption{}, txErr
	}
	return redemption, nil
}

// RefundByRewardID reverses the user's reserved redemption of the given
// reward. Used by the expiry countdown screen, which holds the full object.
func (s *Service) RefundByRewardID(userID, rewardID uuid.UUID) (models.Redemption, error) {
	return s.refund(func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ? AND reward_id = ? AND status = ?", userID, rewardID, models.RedemptionStatusReserved)
	})
}

// RefundByCode reverses a reserved redemption located by its code. Used
// when only the code survives, e.g. a stale deep link.
func (s *Service) RefundByCode(code string) (models.Redemption, error) {
	return s.refund(func(tx *gorm.DB) *gorm.DB {
		return tx.Where("code = ? AND status = ?", code, models.RedemptionStatusReserved)
	})
}

// Cancel refunds whatever reserved redemption the user currently holds.
func (s *Service) Cancel(userID uuid.UUID) (models.Redemption, error) {
	return s.refund(func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ? AND status = ?", userID, models.RedemptionStatusReserved)
	})
}

func (s *Service) refund(scope func(*gorm.DB) *gorm.DB) (models.Redemption, error) {
	var redemption models.Redemption
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		err := scope(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&redemption).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoActiveRedemption
			}
			return err
		}
		_, err = s.refundLocked(tx, &redemption)
		return err
	})
	if txErr != nil {
		return models.Redemption{}, txErr
	}
	return redemption, nil
}

// refundLocked credits the point cost back and marks the redemption
// refunded. The caller must already hold the row lock.
func (s *Service) refundLocked(tx *gorm.DB, redemption *models.Redemption) (ledger.Result, error) {
	if !models.IsValidRedemptionTransition(redemption.Status, models.RedemptionStatusRefunded) {
		return ledger.Result{}, ErrNoActiveRedemption
	}

	balance, err := s.Ledger.ApplyTx(tx, redemption.UserID, redemption.PointCost, models.TransactionTypeRedemptionRefund,
		fmt.Sprintf("Refund for %s", redemption.RewardTitle),
		map[string]interface{}{
			"redemption_code": redemption.Code,
			"reward_id":       redemption.RewardID.String(),
		})
	if err != nil {
		return ledger.Result{}, err
	}

	resolved := s.now()
	redemption.Status = models.RedemptionStatusRefunded
	redemption.ResolvedAt = &resolved
	if err := tx.Model(&models.Redemption{}).
		Where("id = ?", redemption.ID).
		Updates(map[string]interface{}{"status": models.RedemptionStatusRefunded, "resolved_at": resolved}).Error; err != nil {
		return ledger.Result{}, err
	}
	return balance, nil
}

// Fulfill marks a reserved redemption consumed at the counter. Terminal;
// no refund happens afterwards.
func (s *Service) Fulfill(code string) (models.Redemption, error) {
	code = strings.TrimSpace(code)
	var redemption models.Redemption
	txErr := s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ? AND status = ?", code, models.RedemptionStatusReserved).
			First(&redemption).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoActiveRedemption
			}
			return err
		}
		if redemption.ExpiredAt(s.now()) {
			return ErrRedemptionExpired
		}

		resolved := s.now()
		redemption.Status = models.RedemptionStatusFulfilled
		redemption.ResolvedAt = &resolved
		return tx.Model(&models.Redemption{}).
			Where("id = ?", redemption.ID).
			Updates(map[string]interface{}{"status": models.RedemptionStatusFulfilled, "resolved_at": resolved}).Error
	})
	if txErr != nil {
		return models.Redemption{}, txErr
	}
	return redemption, nil
}

// Active returns the user's live reserved redemption. A reservation whose
// window has passed is refunded on observation, so a client that was closed
// through the expiry still sees the points come back on next open.
func (s *Service) Active(userID uuid.UUID) (models.Redemption, bool, error) {
	var redemption models.Redemption
	err := s.DB.Where("user_id = ? AND status = ?", userID, models.RedemptionStatusReserved).First(&redemption).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Redemption{}, false, nil
		}
		return models.Redemption{}, false, err
	}

	if redemption.ExpiredAt(s.now()) {
		if _, err := s.Cancel(userID); err != nil && !errors.Is(err, ErrNoActiveRedemption) {
			return models.Redemption{}, false, err
		}
		return models.Redemption{}, false, nil
	}
	return redemption, true, nil
}

// ExpireDue refunds every reserved redemption whose window has passed and
// returns the settled records. This is the authoritative expiry mechanism;
// the per-request check in Active only makes feedback prompt.
func (s *Service) ExpireDue() ([]models.Redemption, error) {
	var due []models.Redemption
	if err := s.DB.Where("status = ? AND expires_at < ?", models.RedemptionStatusReserved, s.now()).Find(&due).Error; err != nil {
		return nil, err
	}

	var settled []models.Redemption
	for _, r := range due {
		refunded, err := s.RefundByCode(r.Code)
		if err != nil {
			// Raced with a concurrent refund or fulfill; skip it.
			if errors.Is(err, ErrNoActiveRedemption) {
				continue
			}
			return settled, err
		}
		settled = append(settled, refunded)
	}
	return settled, nil
}

// generateCode produces the redemption code shown at the counter.
func generateCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate redemption code: %w", err)
	}
	return "DH-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}
