package handlers

import (
	"errors"
	"net/http"

	"dumplinghouse-backend/services/ledger"
	"dumplinghouse-backend/services/redemptions"
	"dumplinghouse-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RedemptionHandler struct {
	DB      *gorm.DB
	Service *redemptions.Service
}

// CreateRedemption reserves a reward against the user's live balance. The
// optional customizations (dumpling flavors, drink type) only annotate the
// debit transaction; they have no effect on the state machine.
func (h *RedemptionHandler) CreateRedemption(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		RewardID       string                 `json:"reward_id" binding:"required"`
		Customizations map[string]interface{} `json:"customizations"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	rewardID, err := uuid.Parse(req.RewardID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reward_id"})
		return
	}

	redemption, err := h.Service.Reserve(userID.(uuid.UUID), rewardID, req.Customizations)
	if err != nil {
		switch {
		case errors.Is(err, redemptions.ErrRewardNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Reward not found"})
		case errors.Is(err, redemptions.ErrActiveRedemptionExists):
			c.JSON(http.StatusConflict, gin.H{"error": "You already have an active redemption. Use or cancel it first."})
		case errors.Is(err, ledger.ErrInsufficientPoints):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Not enough points for this reward"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to redeem reward"})
		}
		return
	}

	c.JSON(http.StatusCreated, redemption)
}

// GetActiveRedemption returns the user's live reservation, if any. An
// expired reservation is refunded as a side effect, so the response also
// tells a returning client its points already came back.
func (h *RedemptionHandler) GetActiveRedemption(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	redemption, ok, err := h.Service.Active(userID.(uuid.UUID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch active redemption"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"active": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": redemption})
}

// CancelRedemption refunds the user's active reservation.
func (h *RedemptionHandler) CancelRedemption(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	redemption, err := h.Service.Cancel(userID.(uuid.UUID))
	if err != nil {
		if errors.Is(err, redemptions.ErrNoActiveRedemption) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active redemption to cancel"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel redemption"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Redemption cancelled and points refunded",
		"points_refunded": redemption.PointCost,
	})
}

// RefundRedemption reverses a reserved redemption located by reward id or
// by code, whichever the client still holds.
func (h *RedemptionHandler) RefundRedemption(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		RewardID string `json:"reward_id"`
		Code     string `json:"code"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}
	if req.RewardID == "" && req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reward_id or code is required"})
		return
	}

	var pointCost int
	var err error
	if req.Code != "" {
		refunded, refundErr := h.Service.RefundByCode(req.Code)
		err = refundErr
		pointCost = refunded.PointCost
	} else {
		rewardID, parseErr := uuid.Parse(req.RewardID)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reward_id"})
			return
		}
		refunded, refundErr := h.Service.RefundByRewardID(userID.(uuid.UUID), rewardID)
		err = refundErr
		pointCost = refunded.PointCost
	}

	if err != nil {
		if errors.Is(err, redemptions.ErrNoActiveRedemption) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active redemption found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refund redemption"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Points refunded",
		"points_refunded": pointCost,
	})
}

// FulfillRedemption is the counter-side operation: staff enters the code
// shown on the customer's phone and the reward is consumed.
func (h *RedemptionHandler) FulfillRedemption(c *gin.Context) {
	code := c.Param("code")

	redemption, err := h.Service.Fulfill(code)
	if err != nil {
		switch {
		case errors.Is(err, redemptions.ErrNoActiveRedemption):
			c.JSON(http.StatusNotFound, gin.H{"error": "No active redemption with that code"})
		case errors.Is(err, redemptions.ErrRedemptionExpired):
			c.JSON(http.StatusGone, gin.H{"error": "This redemption has expired"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fulfill redemption"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Redemption fulfilled",
		"code":         redemption.Code,
		"reward_title": redemption.RewardTitle,
	})
}
