package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"dumplinghouse-backend/models"
	"dumplinghouse-backend/services/ledger"
	"dumplinghouse-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AdminHandler struct {
	DB     *gorm.DB
	Ledger *ledger.Service
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	query := h.DB.Model(&models.User{})

	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if banned := c.Query("banned"); banned != "" {
		query = query.Where("is_banned = ?", banned == "true")
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("LOWER(name) LIKE LOWER(?) OR LOWER(email) LIKE LOWER(?)", "%"+search+"%", "%"+search+"%")
	}

	var total int64
	query.Count(&total)

	var users []models.User
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	type UserResponse struct {
		ID             uuid.UUID `json:"id"`
		Email          string    `json:"email"`
		Name           string    `json:"name"`
		Role           string    `json:"role"`
		Phone          string    `json:"phone"`
		IsBanned       bool      `json:"is_banned"`
		Points         int       `json:"points"`
		LifetimePoints int       `json:"lifetime_points"`
		CreatedAt      time.Time `json:"created_at"`
	}

	var result []UserResponse
	for _, u := range users {
		result = append(result, UserResponse{
			ID:             u.ID,
			Email:          u.Email,
			Name:           u.Name,
			Role:           u.Role,
			Phone:          u.Phone,
			IsBanned:       u.IsBanned,
			Points:         u.Points,
			LifetimePoints: u.LifetimePoints,
			CreatedAt:      u.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"users": result,
		"total": total,
		"page":  page,
		"limit": limit,
		"pages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	id := c.Param("id")

	var user models.User
	if err := h.DB.Where("id = ?", id).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":              user.ID,
		"email":           user.Email,
		"name":            user.Name,
		"role":            user.Role,
		"phone":           user.Phone,
		"is_banned":       user.IsBanned,
		"points":          user.Points,
		"lifetime_points": user.LifetimePoints,
		"created_at":      user.CreatedAt,
	})
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id := c.Param("id")
	currentUserID, _ := c.Get("user_id")

	userUUID, err := uuid.Parse(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.DB.Where("id = ?", id).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req struct {
		Role     *string `json:"role"`
		IsBanned *bool   `json:"is_banned"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	validRoles := map[string]bool{"customer": true, "employee": true, "admin": true}
	if req.Role != nil {
		if !validRoles[*req.Role] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}
		if currentUserID.(uuid.UUID) == userUUID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot change your own role"})
			return
		}
	}

	// Targeted Updates instead of Save to avoid touching unrelated fields
	updates := map[string]interface{}{}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.IsBanned != nil {
		updates["is_banned"] = *req.IsBanned
	}

	if len(updates) > 0 {
		if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	h.DB.Where("id = ?", id).First(&user)

	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"email":     user.Email,
		"name":      user.Name,
		"role":      user.Role,
		"is_banned": user.IsBanned,
		"points":    user.Points,
	})
}

// AdjustPoints credits or debits a user's balance out of band, for support
// cases. The delta goes through the ledger so the adjustment shows up in the
// user's history with the admin's reason attached.
func (h *AdminHandler) AdjustPoints(c *gin.Context) {
	id := c.Param("id")
	adminID, _ := c.Get("user_id")

	userUUID, err := uuid.Parse(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var req struct {
		Delta  int    `json:"delta" binding:"required"`
		Reason string `json:"reason" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	result, err := h.Ledger.Apply(userUUID, req.Delta, models.TransactionTypeAdminAdjustment, req.Reason, map[string]interface{}{
		"adjusted_by": adminID.(uuid.UUID).String(),
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, ledger.ErrInsufficientPoints):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Adjustment would make the balance negative"})
		case errors.Is(err, ledger.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "delta must be non-zero"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to adjust points"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"previous_balance": result.PreviousBalance,
		"new_balance":      result.NewBalance,
		"transaction_id":   result.TransactionID,
	})
}

// GetUserHistory is the admin view of a user's points transactions.
func (h *AdminHandler) GetUserHistory(c *gin.Context) {
	id := c.Param("id")

	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := (page - 1) * limit

	query := h.DB.Model(&models.PointsTransaction{}).Where("user_id = ?", id)

	var total int64
	query.Count(&total)

	var history []models.PointsTransaction
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&history).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

func (h *AdminHandler) ListSuspiciousFlags(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	query := h.DB.Model(&models.SuspiciousFlag{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if severity := c.Query("severity"); severity != "" {
		query = query.Where("severity = ?", severity)
	}

	var total int64
	query.Count(&total)

	var flags []models.SuspiciousFlag
	if err := query.Preload("User").Order("risk_score DESC, created_at DESC").Offset(offset).Limit(limit).Find(&flags).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch flags"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"flags": flags,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// ReviewSuspiciousFlag records an admin's decision on a flag. "ban" also
// suspends the flagged account; "dismiss" closes the flag without action.
func (h *AdminHandler) ReviewSuspiciousFlag(c *gin.Context) {
	id := c.Param("id")
	adminID, _ := c.Get("user_id")

	var flag models.SuspiciousFlag
	if err := h.DB.Where("id = ?", id).First(&flag).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Flag not found"})
		return
	}

	var req struct {
		Action string `json:"action" binding:"required,oneof=dismiss watch ban"`
		Notes  string `json:"notes"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	reviewer := adminID.(uuid.UUID)
	flag.ReviewedBy = &reviewer
	flag.ReviewNotes = req.Notes

	switch req.Action {
	case "dismiss":
		flag.Status = models.FlagStatusDismissed
	case "watch":
		flag.Status = models.FlagStatusReviewed
	case "ban":
		flag.Status = models.FlagStatusActionTaken
		if err := h.DB.Model(&models.User{}).Where("id = ?", flag.UserID).Update("is_banned", true).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to suspend user"})
			return
		}
	}

	if err := h.DB.Save(&flag).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update flag"})
		return
	}

	c.JSON(http.StatusOK, flag)
}
