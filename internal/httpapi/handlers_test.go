package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"appgestor/backend/internal/domain"
	"appgestor/backend/internal/service"
	"appgestor/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, time.UTC, 0)
	auth := NewAuthManager(testSecret, time.Hour, repo)

	return New(svc, auth, "*", nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func loginToken(t *testing.T, handler http.Handler, email, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleRegister(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":     "Nova",
		"email":    "nova@appgestor.local",
		"password": "s3cret",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Same email again conflicts.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":     "Nova",
		"email":    "nova@appgestor.local",
		"password": "s3cret",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Sem Email", "password": "s3cret",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleLoginStatuses(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ghost@appgestor.local", "password": "x",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown email, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "manager@appgestor.local", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "manager@appgestor.local",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rec.Code)
	}
}

func TestHandleLoginRateLimit(t *testing.T) {
	handler := newTestAPI(t).Handler()

	var lastCode int
	for i := 0; i < 6; i++ {
		payload, _ := json.Marshal(map[string]string{
			"email": "manager@appgestor.local", "password": "badpass",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for _, path := range []string{
		"/api/v1/products",
		"/api/v1/sales",
		"/api/v1/users/me",
		"/api/v1/reports/top-products",
		"/api/v1/reports/financial",
	} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", path, rec.Code)
		}
	}
}

func TestHandleMe(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "attendant@appgestor.local", "attendant123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		User domain.UserView `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.User.Email != "attendant@appgestor.local" || body.User.Role != domain.RoleAttendant {
		t.Fatalf("unexpected user: %+v", body.User)
	}
}

func TestProductMutationsAreManagerOnly(t *testing.T) {
	handler := newTestAPI(t).Handler()
	attendant := loginToken(t, handler, "attendant@appgestor.local", "attendant123")
	manager := loginToken(t, handler, "manager@appgestor.local", "manager123")

	payload := map[string]any{
		"name": "Porto Vintage", "category": "vinho",
		"purchase_price_cents": 9000, "sale_price_cents": 18500,
		"stock_current": 6, "stock_min": 2,
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", attendant, payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for attendant, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", manager, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for manager, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Attendants still read the catalog.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", attendant, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/products/6", attendant, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for attendant delete, got %d", rec.Code)
	}
}

func TestProductCRUD(t *testing.T) {
	handler := newTestAPI(t).Handler()
	manager := loginToken(t, handler, "manager@appgestor.local", "manager123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products/999", manager, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/products/2", manager, map[string]any{
		"sale_price_cents": 8900,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Product.SalePriceCents != 8900 || body.Product.Name != "Vinho Branco Seco" {
		t.Fatalf("partial update clobbered fields: %+v", body.Product)
	}

	// Renaming onto an existing product is a validation failure, not a conflict.
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/products/2", manager, map[string]any{
		"name": "Vinho Tinto Reserva",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate name, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/products/6", manager, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSalesFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	attendant := loginToken(t, handler, "attendant@appgestor.local", "attendant123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", attendant, map[string]any{
		"product_id": 1, "quantity": 2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if created.Sale.TotalPriceCents != 2*9800 {
		t.Fatalf("unexpected total: %d", created.Sale.TotalPriceCents)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", attendant, map[string]any{
		"product_id": 3, "quantity": 9999,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient stock, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/v1/sales/%d", created.Sale.ID), attendant, map[string]any{
		"product_id": 1, "quantity": 3,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/api/v1/sales/%d", created.Sale.ID), attendant, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/sales/424242", attendant, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFinancialReportIsManagerOnly(t *testing.T) {
	handler := newTestAPI(t).Handler()
	attendant := loginToken(t, handler, "attendant@appgestor.local", "attendant123")
	manager := loginToken(t, handler, "manager@appgestor.local", "manager123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/financial", attendant, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for attendant, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/financial", manager, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for manager, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/financial?month=5", manager, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for month without year, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/financial?month=abc&year=2025", manager, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric month, got %d", rec.Code)
	}
}

func TestReportEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()
	attendant := loginToken(t, handler, "attendant@appgestor.local", "attendant123")

	if rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", attendant, map[string]any{
		"product_id": 2, "quantity": 1,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("seed sale failed: %d", rec.Code)
	}

	for path, key := range map[string]string{
		"/api/v1/reports/top-products": "top_products",
		"/api/v1/reports/low-stock":    "low_stock",
		"/api/v1/reports/last-sales":   "last_sales",
	} {
		rec := doJSON(t, handler, http.MethodGet, path, attendant, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, rec.Code)
		}
		var body map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		if _, ok := body[key]; !ok {
			t.Fatalf("expected key %q in %s response, got %v", key, path, body)
		}
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()
	attendant := loginToken(t, handler, "attendant@appgestor.local", "attendant123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", attendant, map[string]any{
		"product_id": 1, "quantity": 1, "discount": 10,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}
