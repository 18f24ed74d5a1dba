package handlers

import (
	"net/http"
	"strconv"

	"dumplinghouse-backend/firebase"
	"dumplinghouse-backend/models"
	"dumplinghouse-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RewardHandler struct {
	DB      *gorm.DB
	Storage firebase.StorageClient
}

func (h *RewardHandler) GetRewards(c *gin.Context) {
	var rewards []models.Reward
	query := h.DB.Where("is_active = ?", true)

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	if err := query.Order("points_required ASC").Find(&rewards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rewards"})
		return
	}

	c.JSON(http.StatusOK, rewards)
}

// GetAllRewards returns every reward including inactive ones, for admin use.
func (h *RewardHandler) GetAllRewards(c *gin.Context) {
	var rewards []models.Reward
	if err := h.DB.Order("created_at DESC").Find(&rewards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rewards"})
		return
	}
	c.JSON(http.StatusOK, rewards)
}

func (h *RewardHandler) GetReward(c *gin.Context) {
	id := c.Param("id")
	var reward models.Reward

	if err := h.DB.Preload("EligibleItems").Where("id = ?", id).First(&reward).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reward not found"})
		return
	}

	c.JSON(http.StatusOK, reward)
}

// GetEligibleItems returns the menu items a reward can be applied to.
// Explicit eligible item lists win; otherwise the reward's tier caps which
// items qualify, and a reward with neither applies to any active item.
func (h *RewardHandler) GetEligibleItems(c *gin.Context) {
	id := c.Param("id")
	var reward models.Reward

	if err := h.DB.Preload("EligibleItems").Where("id = ?", id).First(&reward).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reward not found"})
		return
	}

	if len(reward.EligibleItems) > 0 {
		items := make([]models.MenuItem, 0, len(reward.EligibleItems))
		for _, item := range reward.EligibleItems {
			if item.IsActive {
				items = append(items, item)
			}
		}
		c.JSON(http.StatusOK, items)
		return
	}

	query := h.DB.Where("is_active = ?", true)
	if reward.Tier != nil {
		query = query.Where("tier <= ?", *reward.Tier)
	}

	var items []models.MenuItem
	if err := query.Order("category, name").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch eligible items"})
		return
	}

	c.JSON(http.StatusOK, items)
}

func (h *RewardHandler) CreateReward(c *gin.Context) {
	var reward models.Reward

	reward.ID = uuid.New()
	reward.Title = c.PostForm("title")
	reward.Description = c.PostForm("description")
	reward.Category = c.PostForm("category")
	reward.IsActive = c.PostForm("is_active") != "false"

	if reward.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}

	points, err := strconv.Atoi(c.PostForm("points_required"))
	if err != nil || points <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "points_required must be a positive integer"})
		return
	}
	reward.PointsRequired = points

	if tierStr := c.PostForm("tier"); tierStr != "" {
		tier, err := strconv.Atoi(tierStr)
		if err != nil || tier < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be a positive integer"})
			return
		}
		reward.Tier = &tier
	}

	// Image is optional; some rewards render with a stock illustration.
	if fileHeader, err := c.FormFile("image"); err == nil {
		if err := utils.ValidateFileUpload(fileHeader); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open uploaded file"})
			return
		}
		defer file.Close()

		imageURL, err := h.Storage.UploadRewardImage(
			file,
			fileHeader.Filename,
			fileHeader.Header.Get("Content-Type"),
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Image upload failed"})
			return
		}
		reward.ImageURL = imageURL
	}

	if err := h.DB.Create(&reward).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create reward"})
		return
	}

	if err := h.replaceEligibleItems(&reward, c.PostFormArray("eligible_item_ids")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, reward)
}

func (h *RewardHandler) UpdateReward(c *gin.Context) {
	id := c.Param("id")
	var reward models.Reward

	if err := h.DB.Where("id = ?", id).First(&reward).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reward not found"})
		return
	}

	if title := c.PostForm("title"); title != "" {
		reward.Title = title
	}
	if description, ok := c.GetPostForm("description"); ok {
		reward.Description = description
	}
	if category, ok := c.GetPostForm("category"); ok {
		reward.Category = category
	}
	if isActive, ok := c.GetPostForm("is_active"); ok {
		reward.IsActive = isActive == "true"
	}

	if pointsStr := c.PostForm("points_required"); pointsStr != "" {
		points, err := strconv.Atoi(pointsStr)
		if err != nil || points <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "points_required must be a positive integer"})
			return
		}
		reward.PointsRequired = points
	}

	if tierStr, ok := c.GetPostForm("tier"); ok {
		if tierStr == "" {
			reward.Tier = nil
		} else {
			tier, err := strconv.Atoi(tierStr)
			if err != nil || tier < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be a positive integer"})
				return
			}
			reward.Tier = &tier
		}
	}

	if fileHeader, err := c.FormFile("image"); err == nil {
		if err := utils.ValidateFileUpload(fileHeader); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if reward.ImageURL != "" {
			if objectPath, pathErr := utils.ExtractObjectPath(reward.ImageURL); pathErr == nil {
				_ = h.Storage.DeleteFile(objectPath)
			}
		}

		file, openErr := fileHeader.Open()
		if openErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open uploaded file"})
			return
		}
		defer file.Close()

		imageURL, uploadErr := h.Storage.UploadRewardImage(
			file,
			fileHeader.Filename,
			fileHeader.Header.Get("Content-Type"),
		)
		if uploadErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Image upload failed"})
			return
		}
		reward.ImageURL = imageURL
	}

	if err := h.DB.Save(&reward).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update reward"})
		return
	}

	if ids, ok := c.GetPostFormArray("eligible_item_ids"); ok {
		if err := h.replaceEligibleItems(&reward, ids); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, reward)
}

func (h *RewardHandler) DeleteReward(c *gin.Context) {
	id := c.Param("id")
	var reward models.Reward

	if err := h.DB.Where("id = ?", id).First(&reward).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reward not found"})
		return
	}

	if reward.ImageURL != "" {
		if objectPath, err := utils.ExtractObjectPath(reward.ImageURL); err == nil {
			_ = h.Storage.DeleteFile(objectPath)
		}
	}

	if err := h.DB.Delete(&models.Reward{}, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete reward"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Reward deleted successfully"})
}

// replaceEligibleItems sets the explicit eligible-item list. An empty input
// leaves the association untouched so tier-based rewards stay tier-based.
func (h *RewardHandler) replaceEligibleItems(reward *models.Reward, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	var items []models.MenuItem
	if err := h.DB.Where("id IN ?", ids).Find(&items).Error; err != nil {
		return err
	}
	if len(items) != len(ids) {
		return gorm.ErrRecordNotFound
	}

	return h.DB.Model(reward).Association("EligibleItems").Replace(items)
}

// --- menu items (admin) ---

type MenuItemHandler struct {
	DB *gorm.DB
}

func (h *MenuItemHandler) GetMenuItems(c *gin.Context) {
	var items []models.MenuItem
	query := h.DB

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	if err := query.Order("category, name").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch menu items"})
		return
	}

	c.JSON(http.StatusOK, items)
}

func (h *MenuItemHandler) CreateMenuItem(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Category string `json:"category" binding:"required"`
		Tier     int    `json:"tier"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	if req.Tier < 1 {
		req.Tier = 1
	}

	item := models.MenuItem{
		Name:     req.Name,
		Category: req.Category,
		Tier:     req.Tier,
		IsActive: true,
	}

	if err := h.DB.Create(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create menu item"})
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (h *MenuItemHandler) UpdateMenuItem(c *gin.Context) {
	id := c.Param("id")
	var item models.MenuItem

	if err := h.DB.Where("id = ?", id).First(&item).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Menu item not found"})
		return
	}

	var req struct {
		Name     *string `json:"name"`
		Category *string `json:"category"`
		Tier     *int    `json:"tier"`
		IsActive *bool   `json:"is_active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}

	if req.Name != nil {
		item.Name = *req.Name
	}
	if req.Category != nil {
		item.Category = *req.Category
	}
	if req.Tier != nil && *req.Tier >= 1 {
		item.Tier = *req.Tier
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}

	if err := h.DB.Save(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update menu item"})
		return
	}

	c.JSON(http.StatusOK, item)
}
