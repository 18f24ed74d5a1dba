package receipts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrExtractionFailed is returned when the analyzer response is missing any
// of the required fields (order number, total, date). The caller may rescan;
// no automatic retry is performed.
var ErrExtractionFailed = errors.New("could not extract order details from receipt")

// analyzeTimeout caps how long a single analyzer call may take before the
// scan is abandoned and reported as a timeout to the user.
const analyzeTimeout = 15 * time.Second

// Extraction is the (order number, total, date) triple read off a receipt.
type Extraction struct {
	OrderNumber string
	OrderTotal  float64
	OrderDate   time.Time
}

// Analyzer extracts order details from a receipt image. Implemented by
// OCRClient in production and mocked in handler tests.
type Analyzer interface {
	AnalyzeReceipt(ctx context.Context, image io.Reader, filename string) (Extraction, error)
}

// OCRClient calls the external receipt-analysis service.
type OCRClient struct {
	client *resty.Client
}

func NewOCRClient(baseURL string) *OCRClient {
	return &OCRClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(analyzeTimeout),
	}
}

// AnalyzeReceipt uploads the image as multipart form data and decodes the
// analyzer's JSON response. A single attempt is made.
func (c *OCRClient) AnalyzeReceipt(ctx context.Context, image io.Reader, filename string) (Extraction, error) {
	var raw struct {
		OrderNumber *string  `json:"orderNumber"`
		OrderTotal  *float64 `json:"orderTotal"`
		OrderDate   *string  `json:"orderDate"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("image", filename, image).
		SetResult(&raw).
		Post("/analyze-receipt")
	if err != nil {
		return Extraction{}, fmt.Errorf("receipt analyzer unreachable: %w", err)
	}
	if resp.IsError() {
		return Extraction{}, fmt.Errorf("receipt analyzer returned %s", resp.Status())
	}

	if raw.OrderNumber == nil || *raw.OrderNumber == "" ||
		raw.OrderTotal == nil ||
		raw.OrderDate == nil || *raw.OrderDate == "" {
		return Extraction{}, ErrExtractionFailed
	}

	orderDate, err := parseOrderDate(*raw.OrderDate)
	if err != nil {
		return Extraction{}, ErrExtractionFailed
	}

	return Extraction{
		OrderNumber: *raw.OrderNumber,
		OrderTotal:  *raw.OrderTotal,
		OrderDate:   orderDate,
	}, nil
}

// parseOrderDate accepts the date formats the analyzer has been observed to
// emit depending on the receipt template.
func parseOrderDate(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		"01/02/2006",
		"1/2/2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized order date %q", s)
}
