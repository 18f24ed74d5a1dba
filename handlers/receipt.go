package handlers

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"net"
	"net/http"

	"dumplinghouse-backend/firebase"
	"dumplinghouse-backend/models"
	"dumplinghouse-backend/services/receipts"
	"dumplinghouse-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReceiptHandler struct {
	DB       *gorm.DB
	Guard    *receipts.Guard
	Analyzer receipts.Analyzer
	Storage  firebase.StorageClient
}

// ScanReceipt accepts a receipt photo, extracts the order details through
// the OCR service, and credits points exactly once per physical receipt.
func (h *ReceiptHandler) ScanReceipt(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Receipt image is required"})
		return
	}
	if err := utils.ValidateFileUpload(fileHeader); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read receipt image"})
		return
	}
	defer file.Close()

	extraction, err := h.Analyzer.AnalyzeReceipt(c.Request.Context(), file, fileHeader.Filename)
	if err != nil {
		switch {
		case errors.Is(err, receipts.ErrExtractionFailed):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "We couldn't read your receipt. Please retake the photo and try again."})
		case isTimeout(err):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Receipt scan timed out. Please try again."})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Receipt service is unavailable. Please try again later."})
		}
		return
	}

	key := receipts.NormalizeKey(extraction.OrderNumber, extraction.OrderDate)

	result, err := h.Guard.Admit(userID.(uuid.UUID), key, extraction.OrderTotal)
	if err != nil {
		var dup *receipts.DuplicateReceiptError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, gin.H{
				"error":          "This receipt has already been used",
				"order_number":   dup.Existing.OrderNumber,
				"order_date":     dup.Existing.OrderDate,
				"points_awarded": 0,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process receipt"})
		return
	}

	h.archiveImage(userID.(uuid.UUID), fileHeader, result.Receipt)

	c.JSON(http.StatusOK, gin.H{
		"points_awarded":   result.Points,
		"order_number":     result.Receipt.OrderNumber,
		"order_date":       result.Receipt.OrderDate,
		"order_total":      result.Receipt.OrderTotal,
		"previous_balance": result.Balance.PreviousBalance,
		"new_balance":      result.Balance.NewBalance,
		"lifetime_points":  result.Balance.LifetimePoints,
	})
}

// archiveImage keeps a copy of the scanned receipt for fraud review.
// Best-effort: a storage failure never claws back an awarded credit.
func (h *ReceiptHandler) archiveImage(userID uuid.UUID, fileHeader *multipart.FileHeader, receipt models.UsedReceipt) {
	if h.Storage == nil {
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Printf("Failed to reopen receipt image for archival: %v", err)
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	go func() {
		defer file.Close()
		if _, err := h.Storage.UploadReceiptImage(file, userID.String(), fileHeader.Filename, contentType); err != nil {
			log.Printf("Failed to archive receipt image for order %s: %v", receipt.OrderNumber, err)
		}
	}()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
