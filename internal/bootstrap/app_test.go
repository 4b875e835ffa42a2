package bootstrap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reviewer-backend/internal/shared/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:                 "dev",
		LocalStoreDir:       t.TempDir(),
		AdminPassword:       "test-admin-password",
		JWTTTL:              time.Hour,
		FreeQuestionLimit:   3,
		ProQuestionBonus:    100,
		PremiumDurationDays: 30,
		PremiumQuestionPool: 9999,
		IPAbuseThreshold:    0,
		RateLimitPerMinute:  600000,
		RateLimitBurst:      100000,
	}
}

func buildTestApp(t *testing.T) *App {
	t.Helper()
	app, err := Build(testConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *App, method, path, email, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func adminLogin(t *testing.T, app *App) string {
	t.Helper()
	rec := doJSON(t, app, http.MethodPost, "/api/v1/admin/login", "", "", map[string]string{
		"adminUser": "reviewer-admin",
		"password":  "test-admin-password",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	app := buildTestApp(t)
	rec := doJSON(t, app, http.MethodGet, "/api/v1/health", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUsageQuotaLifecycleOverHTTP(t *testing.T) {
	app := buildTestApp(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, app, http.MethodPost, "/api/v1/usage", "a@example.com", "",
			map[string]any{"questions": 1, "sourceType": "pdf"})
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d status = %d body=%s", i, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, app, http.MethodPost, "/api/v1/usage", "a@example.com", "",
		map[string]any{"questions": 1})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if code := errorCode(t, rec); code != "quota_exceeded" {
		t.Fatalf("code = %q, want quota_exceeded", code)
	}
}

func TestAdminBlockUserOverHTTP(t *testing.T) {
	app := buildTestApp(t)
	token := adminLogin(t, app)

	rec := doJSON(t, app, http.MethodGet, "/api/v1/me", "a@example.com", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}

	rec = doJSON(t, app, http.MethodPost, "/api/v1/admin/users/a@example.com/block", "", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("block status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, app, http.MethodPost, "/api/v1/usage", "a@example.com", "",
		map[string]any{"questions": 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if code := errorCode(t, rec); code != "blocked" {
		t.Fatalf("code = %q, want blocked", code)
	}

	// Audit trail carries the action.
	rec = doJSON(t, app, http.MethodGet, "/api/v1/admin/audit", "", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d", rec.Code)
	}
	var audit struct {
		Actions []struct {
			ActionType string `json:"actionType"`
			AdminUser  string `json:"adminUser"`
		} `json:"actions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &audit); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(audit.Actions) != 1 || audit.Actions[0].ActionType != "USER_BLOCKED" || audit.Actions[0].AdminUser != "reviewer-admin" {
		t.Fatalf("audit = %+v", audit.Actions)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	app := buildTestApp(t)

	rec := doJSON(t, app, http.MethodGet, "/api/v1/admin/users", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec = doJSON(t, app, http.MethodGet, "/api/v1/admin/users", "", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPaymentApprovalUpgradesPlanOverHTTP(t *testing.T) {
	app := buildTestApp(t)
	token := adminLogin(t, app)

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	_ = writer.WriteField("fullName", "Juan dela Cruz")
	_ = writer.WriteField("gcashRef", "REF-42")
	_ = writer.WriteField("plan", "PRO")
	part, err := writer.CreateFormFile("receipt", "receipt.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte("gcash receipt"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-User-Email", "payer@example.com")
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d body=%s", rec.Code, rec.Body.String())
	}
	var payment struct {
		PaymentID int64  `json:"paymentId"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payment); err != nil {
		t.Fatalf("decode payment: %v", err)
	}
	if payment.Status != "PENDING" {
		t.Fatalf("status = %q, want PENDING", payment.Status)
	}

	path := fmt.Sprintf("/api/v1/admin/payments/%d/approve", payment.PaymentID)
	rec = doJSON(t, app, http.MethodPost, path, "", token, map[string]string{"adminNotes": "verified"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d body=%s", rec.Code, rec.Body.String())
	}

	// Second resolution must lose.
	rec = doJSON(t, app, http.MethodPost, path, "", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second approve status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, app, http.MethodGet, "/api/v1/me", "payer@example.com", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	var me struct {
		PlanStatus         string `json:"planStatus"`
		QuestionsRemaining int    `json:"questionsRemaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.PlanStatus != "PRO" || me.QuestionsRemaining != 100 {
		t.Fatalf("me = %+v", me)
	}
}

func TestDeleteUserCascadesPayments(t *testing.T) {
	app := buildTestApp(t)
	token := adminLogin(t, app)

	rec0 := doJSON(t, app, http.MethodGet, "/api/v1/me", "gone@example.com", "", nil)
	if rec0.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec0.Code)
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	_ = writer.WriteField("fullName", "Juan dela Cruz")
	_ = writer.WriteField("plan", "PRO")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-User-Email", "gone@example.com")
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, app, http.MethodDelete, "/api/v1/admin/users/gone@example.com", "", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, app, http.MethodGet, "/api/v1/payments", "gone@example.com", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Payments []Anything `json:"payments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(list.Payments) != 0 {
		t.Fatalf("payments = %d, want 0 after user delete", len(list.Payments))
	}
}

// Anything absorbs response objects where only the count matters.
type Anything map[string]any

func TestInvalidEmailHeaderRejected(t *testing.T) {
	app := buildTestApp(t)

	rec := doJSON(t, app, http.MethodPost, "/api/v1/usage", "not-an-email", "",
		map[string]any{"questions": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
