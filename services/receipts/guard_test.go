package receipts

import (
	"errors"
	"os"
	"testing"
	"time"

	"dumplinghouse-backend/models"
	"dumplinghouse-backend/services/ledger"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	var err error
	testDB, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)

	// Raw SQLite DDL instead of AutoMigrate; the model tags carry
	// PostgreSQL-specific defaults. The unique natural-key index matters
	// here: the guard's ON CONFLICT target depends on it.
	tables := []string{
		`CREATE TABLE IF NOT EXISTS "users" (
			"id" TEXT PRIMARY KEY,
			"email" TEXT NOT NULL UNIQUE,
			"password" TEXT NOT NULL,
			"name" TEXT,
			"phone" TEXT,
			"role" TEXT DEFAULT 'customer',
			"points" INTEGER DEFAULT 0,
			"lifetime_points" INTEGER DEFAULT 0,
			"is_banned" INTEGER DEFAULT 0,
			"created_at" DATETIME,
			"updated_at" DATETIME,
			"deleted_at" DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS "used_receipts" (
			"id" TEXT PRIMARY KEY,
			"order_number" TEXT NOT NULL,
			"order_date" TEXT NOT NULL,
			"order_total" REAL,
			"user_id" TEXT,
			"created_at" DATETIME
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_used_receipts_natural_key ON "used_receipts"("order_number","order_date")`,
		`CREATE TABLE IF NOT EXISTS "points_transactions" (
			"id" TEXT PRIMARY KEY,
			"user_id" TEXT NOT NULL,
			"type" TEXT NOT NULL,
			"amount" INTEGER NOT NULL,
			"description" TEXT,
			"metadata" TEXT,
			"previous_balance" INTEGER NOT NULL,
			"new_balance" INTEGER NOT NULL,
			"created_at" DATETIME
		)`,
	}
	for _, sql := range tables {
		if err := testDB.Exec(sql).Error; err != nil {
			panic("failed to migrate test database: " + err.Error())
		}
	}

	os.Exit(m.Run())
}

func seedUser(t *testing.T, points int) models.User {
	t.Helper()
	user := models.User{
		ID:       uuid.New(),
		Email:    "user-" + uuid.New().String()[:8] + "@test.com",
		Password: "hashed",
		Points:   points,
	}
	if err := testDB.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func newTestGuard() *Guard {
	return NewGuard(testDB, ledger.NewService(testDB))
}

func TestPointsForTotal(t *testing.T) {
	cases := []struct {
		total float64
		want  int
	}{
		{23.40, 117}, // float artifact: naive floor(23.40*5) gives 116
		{10.00, 50},
		{0.19, 0}, // floors to zero
		{0.20, 1},
		{9.99, 49},
		{0, 0},
		{-5.00, 0},
	}
	for _, tc := range cases {
		if got := PointsForTotal(tc.total); got != tc.want {
			t.Errorf("PointsForTotal(%v) = %d, want %d", tc.total, got, tc.want)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	date := time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC)
	key := NormalizeKey("  A12345  ", date)
	if key.OrderNumber != "a12345" {
		t.Errorf("expected lowercased trimmed order number, got %q", key.OrderNumber)
	}
	if key.OrderDate != "2025-03-14" {
		t.Errorf("expected full date with year, got %q", key.OrderDate)
	}

	// Same order number a year apart is a different receipt.
	other := NormalizeKey("A12345", date.AddDate(1, 0, 0))
	if other.OrderDate == key.OrderDate {
		t.Error("expected keys from different years to differ")
	}
}

func TestAdmitCreditsOnce(t *testing.T) {
	user := seedUser(t, 0)
	guard := newTestGuard()
	key := ReceiptKey{OrderNumber: "ord-" + uuid.New().String()[:8], OrderDate: "2025-03-14"}

	result, err := guard.Admit(user.ID, key, 23.40)
	if err != nil {
		t.Fatalf("expected first admit to succeed, got: %v", err)
	}
	if result.Points != 117 {
		t.Errorf("expected 117 points, got %d", result.Points)
	}
	if result.Balance.NewBalance != 117 {
		t.Errorf("expected new balance 117, got %d", result.Balance.NewBalance)
	}

	// Second scan of the same physical receipt.
	_, err = guard.Admit(user.ID, key, 23.40)
	var dup *DuplicateReceiptError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateReceiptError, got: %v", err)
	}
	if dup.Existing.OrderNumber != key.OrderNumber {
		t.Errorf("expected existing receipt %q, got %q", key.OrderNumber, dup.Existing.OrderNumber)
	}

	// Balance unchanged by the rejected scan.
	var stored models.User
	testDB.First(&stored, "id = ?", user.ID)
	if stored.Points != 117 {
		t.Errorf("expected balance still 117, got %d", stored.Points)
	}
}

func TestAdmitDuplicateWarmsCache(t *testing.T) {
	first := seedUser(t, 0)
	second := seedUser(t, 0)
	key := ReceiptKey{OrderNumber: "ord-" + uuid.New().String()[:8], OrderDate: "2025-04-02"}

	if _, err := newTestGuard().Admit(first.ID, key, 10.00); err != nil {
		t.Fatalf("expected first admit to succeed, got: %v", err)
	}

	// A guard with a cold cache learns the key from the database rejection,
	// so the next repeat scan takes the fast path.
	guard := newTestGuard()
	var dup *DuplicateReceiptError
	if _, err := guard.Admit(second.ID, key, 10.00); !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateReceiptError, got: %v", err)
	}
	if !guard.cache.Contains(key) {
		t.Error("expected duplicate key to be cached after database rejection")
	}
}

func TestAdmitDuplicateAcrossUsers(t *testing.T) {
	first := seedUser(t, 0)
	second := seedUser(t, 0)
	guard := newTestGuard()
	key := ReceiptKey{OrderNumber: "ord-" + uuid.New().String()[:8], OrderDate: "2025-06-01"}

	if _, err := guard.Admit(first.ID, key, 10.00); err != nil {
		t.Fatalf("expected first admit to succeed, got: %v", err)
	}

	// The dedup key is global, not per-user: a photo of someone else's
	// receipt is rejected too.
	_, err := guard.Admit(second.ID, key, 10.00)
	var dup *DuplicateReceiptError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateReceiptError for second user, got: %v", err)
	}
}

func TestAdmitZeroPointReceiptStillBurned(t *testing.T) {
	user := seedUser(t, 0)
	guard := newTestGuard()
	key := ReceiptKey{OrderNumber: "ord-" + uuid.New().String()[:8], OrderDate: "2025-06-02"}

	result, err := guard.Admit(user.ID, key, 0.10)
	if err != nil {
		t.Fatalf("expected admit to succeed, got: %v", err)
	}
	if result.Points != 0 {
		t.Errorf("expected 0 points, got %d", result.Points)
	}

	// No ledger entry for a zero credit.
	var count int64
	testDB.Model(&models.PointsTransaction{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected no transaction for zero credit, got %d", count)
	}

	// But the key is claimed; it cannot come back with a bigger total.
	_, err = guard.Admit(user.ID, key, 99.00)
	var dup *DuplicateReceiptError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateReceiptError, got: %v", err)
	}
}

func TestWarmCache(t *testing.T) {
	user := seedUser(t, 0)
	key := ReceiptKey{OrderNumber: "ord-" + uuid.New().String()[:8], OrderDate: "2025-06-03"}

	// Seed the receipt through one guard, then warm a fresh one.
	if _, err := newTestGuard().Admit(user.ID, key, 5.00); err != nil {
		t.Fatalf("expected admit to succeed, got: %v", err)
	}

	guard := newTestGuard()
	if guard.cache.Contains(key) {
		t.Fatal("expected fresh guard cache to be cold")
	}
	if err := guard.WarmCache(); err != nil {
		t.Fatalf("expected warm cache to succeed, got: %v", err)
	}
	if !guard.cache.Contains(key) {
		t.Error("expected warmed cache to contain the existing key")
	}

	_, err := guard.Admit(user.ID, key, 5.00)
	var dup *DuplicateReceiptError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateReceiptError from warmed guard, got: %v", err)
	}
}
