package routes

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"dumplinghouse-backend/models"
	"dumplinghouse-backend/services/ledger"
	"dumplinghouse-backend/services/receipts"
	"dumplinghouse-backend/services/redemptions"
	"dumplinghouse-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type mockAnalyzer struct{}

func (m *mockAnalyzer) AnalyzeReceipt(ctx context.Context, image io.Reader, filename string) (receipts.Extraction, error) {
	return receipts.Extraction{}, nil
}

type mockStorage struct{}

func (m *mockStorage) UploadReceiptImage(file multipart.File, userID, filename, contentType string) (string, error) {
	return "", nil
}
func (m *mockStorage) UploadRewardImage(file multipart.File, filename, contentType string) (string, error) {
	return "", nil
}
func (m *mockStorage) DeleteFile(objectPath string) error { return nil }

func init() {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret-for-routes")
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS "users" (
			"id" TEXT PRIMARY KEY, "email" TEXT NOT NULL UNIQUE, "password" TEXT NOT NULL,
			"name" TEXT, "phone" TEXT, "role" TEXT DEFAULT 'customer',
			"points" INTEGER DEFAULT 0, "lifetime_points" INTEGER DEFAULT 0,
			"is_banned" INTEGER DEFAULT 0,
			"created_at" DATETIME, "updated_at" DATETIME, "deleted_at" DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS "rewards" (
			"id" TEXT PRIMARY KEY, "title" TEXT NOT NULL, "description" TEXT,
			"category" TEXT, "points_required" INTEGER NOT NULL, "image_url" TEXT,
			"tier" INTEGER, "is_active" INTEGER DEFAULT 1,
			"created_at" DATETIME, "updated_at" DATETIME, "deleted_at" DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS "points_transactions" (
			"id" TEXT PRIMARY KEY, "user_id" TEXT NOT NULL, "type" TEXT NOT NULL,
			"amount" INTEGER NOT NULL, "description" TEXT, "metadata" TEXT,
			"previous_balance" INTEGER NOT NULL, "new_balance" INTEGER NOT NULL,
			"created_at" DATETIME
		)`,
	}
	for _, sql := range tables {
		if err := db.Exec(sql).Error; err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	db := setupTestDB(t)
	ledgerSvc := ledger.NewService(db)

	r := gin.New()
	SetupRoutes(r, Deps{
		DB:          db,
		Ledger:      ledgerSvc,
		Guard:       receipts.NewGuard(db, ledgerSvc),
		Analyzer:    &mockAnalyzer{},
		Redemptions: redemptions.NewService(db, ledgerSvc, 30*time.Minute),
		Storage:     &mockStorage{},
	})
	return r, db
}

func TestHealthCheck(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPublicRewardsRoute(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/rewards", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	r, _ := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/points/balance", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

// seedCustomer creates a customer row and returns a token for it; the auth
// middleware looks the account up, so the row has to exist.
func seedCustomer(t *testing.T, db *gorm.DB) string {
	t.Helper()
	user := models.User{ID: uuid.New(), Email: "user@test.com", Password: "hashed", Role: "customer"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	token, _ := utils.GenerateToken(user.ID, user.Email, user.Role)
	return token
}

func TestAdminRouteBlocksNonAdmin(t *testing.T) {
	r, db := setupRouter(t)
	token := seedCustomer(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStaffRouteBlocksCustomer(t *testing.T) {
	r, db := setupRouter(t)
	token := seedCustomer(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/staff/redemptions/DH-ABCDEF123456/fulfill", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}
