package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dumplinghouse-backend/models"
)

func TestCreateRedemption(t *testing.T) {
	db := freshDB()
	user, token := seedUserWithPoints(db, 120)
	reward := seedReward(db, "Free Dumplings (6pc)", 100)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	body := map[string]interface{}{
		"reward_id":      reward.ID.String(),
		"customizations": map[string]string{"flavor": "pork"},
	}
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", body, token))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseResponse(w)
	if resp["point_cost"].(float64) != 100 {
		t.Errorf("expected point cost 100, got %v", resp["point_cost"])
	}
	if resp["status"] != "reserved" {
		t.Errorf("expected status reserved, got %v", resp["status"])
	}
	if resp["code"] == "" {
		t.Error("expected a redemption code")
	}

	var stored models.User
	db.First(&stored, "id = ?", user.ID)
	if stored.Points != 20 {
		t.Errorf("expected balance 20 after debit, got %d", stored.Points)
	}
}

func TestCreateRedemptionInsufficientPoints(t *testing.T) {
	db := freshDB()
	_, token := seedUserWithPoints(db, 50)
	reward := seedReward(db, "Free Dumplings (6pc)", 100)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", map[string]string{"reward_id": reward.ID.String()}, token))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateRedemptionConflict(t *testing.T) {
	db := freshDB()
	_, token := seedUserWithPoints(db, 300)
	reward := seedReward(db, "Free Drink", 80)
	router := setupRedemptionRouter(db)

	body := map[string]string{"reward_id": reward.ID.String()}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", body, token))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected first redemption to succeed, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", body, token))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateRedemptionUnknownReward(t *testing.T) {
	db := freshDB()
	_, token := seedUserWithPoints(db, 300)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", map[string]string{"reward_id": "00000000-0000-0000-0000-000000000000"}, token))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetActiveRedemption(t *testing.T) {
	db := freshDB()
	_, token := seedUserWithPoints(db, 120)
	reward := seedReward(db, "Free Drink", 80)
	router := setupRedemptionRouter(db)

	// No reservation yet.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("GET", "/api/redemptions/active", nil, token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := parseResponse(w); resp["active"] != nil {
		t.Errorf("expected no active redemption, got %v", resp["active"])
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", map[string]string{"reward_id": reward.ID.String()}, token))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected redemption to be created, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("GET", "/api/redemptions/active", nil, token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := parseResponse(w)
	active, ok := resp["active"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected active redemption object, got %v", resp["active"])
	}
	if active["reward_title"] != "Free Drink" {
		t.Errorf("expected reward title snapshot, got %v", active["reward_title"])
	}
}

func TestGetActiveRedemptionLapsedIsRefunded(t *testing.T) {
	db := freshDB()
	user, token := seedUserWithPoints(db, 120)
	reward := seedReward(db, "Free Drink", 80)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", map[string]string{"reward_id": reward.ID.String()}, token))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected redemption to be created, got %d", w.Code)
	}

	// Push the reservation past its window.
	db.Model(&models.Redemption{}).Where("user_id = ?", user.ID).
		Update("expires_at", time.Now().Add(-time.Minute))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("GET", "/api/redemptions/active", nil, token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := parseResponse(w); resp["active"] != nil {
		t.Errorf("expected lapsed reservation to be gone, got %v", resp["active"])
	}

	var stored models.User
	db.First(&stored, "id = ?", user.ID)
	if stored.Points != 120 {
		t.Errorf("expected points refunded (120), got %d", stored.Points)
	}
}

func TestCancelRedemption(t *testing.T) {
	db := freshDB()
	user, token := seedUserWithPoints(db, 120)
	reward := seedReward(db, "Free Dumplings (6pc)", 100)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", map[string]string{"reward_id": reward.ID.String()}, token))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected redemption to be created, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("DELETE", "/api/redemptions/active", nil, token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := parseResponse(w)
	if resp["points_refunded"].(float64) != 100 {
		t.Errorf("expected 100 points refunded, got %v", resp["points_refunded"])
	}

	var stored models.User
	db.First(&stored, "id = ?", user.ID)
	if stored.Points != 120 {
		t.Errorf("expected balance restored to 120, got %d", stored.Points)
	}

	// Nothing left to cancel.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("DELETE", "/api/redemptions/active", nil, token))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second cancel, got %d", w.Code)
	}
}

func TestRefundRedemptionByRewardID(t *testing.T) {
	db := freshDB()
	user, token := seedUserWithPoints(db, 120)
	reward := seedReward(db, "Free Dumplings (6pc)", 100)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", map[string]string{"reward_id": reward.ID.String()}, token))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected redemption to be created, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions/refund", map[string]string{"reward_id": reward.ID.String()}, token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var stored models.User
	db.First(&stored, "id = ?", user.ID)
	if stored.Points != 120 {
		t.Errorf("expected balance restored to 120, got %d", stored.Points)
	}

	// Idempotent: the refund already settled.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions/refund", map[string]string{"reward_id": reward.ID.String()}, token))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat refund, got %d", w.Code)
	}
}

func TestRefundRedemptionRequiresIdentifier(t *testing.T) {
	db := freshDB()
	_, token := seedUserWithPoints(db, 120)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions/refund", map[string]string{}, token))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestFulfillRedemption(t *testing.T) {
	db := freshDB()
	user, token := seedUserWithPoints(db, 120)
	_, staffToken := seedTestUser(db, "staff@test.com", "employee")
	reward := seedReward(db, "Free Dumplings (6pc)", 100)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", map[string]string{"reward_id": reward.ID.String()}, token))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected redemption to be created, got %d", w.Code)
	}
	code := parseResponse(w)["code"].(string)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/staff/redemptions/"+code+"/fulfill", nil, staffToken))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Points stay spent.
	var stored models.User
	db.First(&stored, "id = ?", user.ID)
	if stored.Points != 20 {
		t.Errorf("expected balance 20 after fulfillment, got %d", stored.Points)
	}

	var redemption models.Redemption
	db.First(&redemption, "code = ?", code)
	if redemption.Status != models.RedemptionStatusFulfilled {
		t.Errorf("expected status fulfilled, got %s", redemption.Status)
	}

	// The code is consumed.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/staff/redemptions/"+code+"/fulfill", nil, staffToken))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on reused code, got %d", w.Code)
	}
}

func TestFulfillExpiredRedemption(t *testing.T) {
	db := freshDB()
	user, token := seedUserWithPoints(db, 120)
	_, staffToken := seedTestUser(db, "staff@test.com", "employee")
	reward := seedReward(db, "Free Drink", 80)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/redemptions", map[string]string{"reward_id": reward.ID.String()}, token))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected redemption to be created, got %d", w.Code)
	}
	code := parseResponse(w)["code"].(string)

	db.Model(&models.Redemption{}).Where("user_id = ?", user.ID).
		Update("expires_at", time.Now().Add(-time.Minute))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/staff/redemptions/"+code+"/fulfill", nil, staffToken))
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFulfillRequiresStaffRole(t *testing.T) {
	db := freshDB()
	_, token := seedUserWithPoints(db, 120)
	router := setupRedemptionRouter(db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("POST", "/api/staff/redemptions/DH-ABCDEF/fulfill", nil, token))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer token, got %d", w.Code)
	}
}
