package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/tavolo/internal/billing"
	"github.com/tavolohq/tavolo/internal/config"
)

const testAdminSecret = "admin-secret-for-tests"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:              "8080",
		Env:               "test",
		LogLevel:          "error",
		TenantStrategy:    "subdomain",
		DefaultTenantSlug: "",
		ExcludedPaths:     config.DefaultExcludedPaths,
		QRSecret:          "test-secret-at-least-16-chars",
		TrialDays:         15,
		AdminSecret:       testAdminSecret,
		RateLimitRPM:      10000,
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func doJSON(s *Server, method, path, host string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if host != "" {
		req.Host = host
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Secret": testAdminSecret}
}

func onboardTenant(t *testing.T, s *Server, slug string) {
	t.Helper()
	w := doJSON(s, http.MethodPost, "/admin/tenants", "", map[string]any{
		"name":           "Trattoria " + slug,
		"slug":           slug,
		"restaurantType": "alacarte",
		"email":          slug + "@example.com",
	}, adminHeaders())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Ready flips only after Run; before that the server reports 503.
	w = doJSON(s, http.MethodGet, "/readyz", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(s, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "in-memory")
}

func TestAdminRequiresSecret(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(s, http.MethodGet, "/admin/tenants", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(s, http.MethodGet, "/admin/tenants", "", nil, adminHeaders())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTenantResolutionBySubdomain(t *testing.T) {
	s := newTestServer(t)
	onboardTenant(t, s, "demo")

	// demo.tavolo.app resolves; the onboarding trial entitles the
	// tenant to its subscription view.
	w := doJSON(s, http.MethodGet, "/api/subscription", "demo.tavolo.app", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"trial"`)

	// Unknown subdomain with no default tenant is a 404.
	w = doJSON(s, http.MethodGet, "/api/subscription", "ghost.tavolo.app", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFloorEndToEnd(t *testing.T) {
	s := newTestServer(t)
	onboardTenant(t, s, "demo")
	host := "demo.tavolo.app"

	w := doJSON(s, http.MethodPost, "/api/tables", host, map[string]any{
		"number": 1, "capacity": 2,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var table struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))

	// Duplicate number conflicts.
	w = doJSON(s, http.MethodPost, "/api/tables", host, map[string]any{"number": 1}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Occupy, then try to delete while occupied.
	w = doJSON(s, http.MethodPost, fmt.Sprintf("/api/tables/%s/status", table.ID), host, map[string]any{
		"status": "occupied", "customers": 2,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(s, http.MethodDelete, "/api/tables/"+table.ID, host, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(s, http.MethodPost, fmt.Sprintf("/api/tables/%s/status", table.ID), host, map[string]any{
		"status": "available", "orderId": "ord_1", "totalSpentCents": 5400,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(s, http.MethodGet, fmt.Sprintf("/api/tables/%s/history", table.ID), host, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ord_1")

	w = doJSON(s, http.MethodDelete, "/api/tables/"+table.ID, host, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTableLimitEnforced(t *testing.T) {
	s := newTestServer(t)
	onboardTenant(t, s, "demo")
	host := "demo.tavolo.app"

	// The onboarding trial runs on the basic plan: 10 tables.
	for i := 1; i <= 10; i++ {
		w := doJSON(s, http.MethodPost, "/api/tables", host, map[string]any{"number": i}, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := doJSON(s, http.MethodPost, "/api/tables", host, map[string]any{"number": 11}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "limit_reached")
}

func TestQRScanFlow(t *testing.T) {
	s := newTestServer(t)
	onboardTenant(t, s, "demo")
	host := "demo.tavolo.app"

	w := doJSON(s, http.MethodPost, "/api/tables", host, map[string]any{"number": 1}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var table struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))

	// Issuing against a table that does not exist is rejected.
	w = doJSON(s, http.MethodPost, "/api/qr/table/tbl_ghost", host, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(s, http.MethodPost, "/api/qr/table/"+table.ID, host, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issued struct {
		ID   string `json:"id"`
		Code string `json:"code"`
		Hash string `json:"hash"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))

	// The table now carries the token it was printed with.
	w = doJSON(s, http.MethodGet, "/api/tables/"+table.ID, host, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), issued.ID)

	w = doJSON(s, http.MethodGet, "/api/scan/"+issued.Code+"?h="+issued.Hash, host, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), table.ID)

	// Wrong hash is rejected with the generic error.
	w = doJSON(s, http.MethodGet, "/api/scan/"+issued.Code+"?h=forged", host, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The other tenant's scope rejects the code too.
	onboardTenant(t, s, "other")
	w = doJSON(s, http.MethodGet, "/api/scan/"+issued.Code+"?h="+issued.Hash, "other.tavolo.app", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInactiveSubscriptionLocksOutFloorAndQR(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	onboardTenant(t, s, "demo")
	host := "demo.tavolo.app"

	w := doJSON(s, http.MethodPost, "/api/tables", host, map[string]any{"number": 1}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var table struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))

	// A failed renewal drops the trial to past_due.
	ten, err := s.tenants.GetBySlug(ctx, "demo")
	require.NoError(t, err)
	require.NoError(t, s.billingSvc.ApplySubscriptionCreated(ctx, ten.ID, billing.SubscriptionEvent{
		CustomerID:     "cus_demo",
		SubscriptionID: "sub_demo",
		StripeStatus:   "past_due",
	}))

	for _, route := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/tables"},
		{http.MethodPost, "/api/qr/table/" + table.ID},
	} {
		w = doJSON(s, route.method, route.path, host, nil, nil)
		assert.Equal(t, http.StatusPaymentRequired, w.Code, route.path)
		assert.Contains(t, w.Body.String(), "subscription_inactive")
	}

	// Billing stays reachable so the tenant can recover.
	w = doJSON(s, http.MethodGet, "/api/subscription", host, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEntitlementsEndpoint(t *testing.T) {
	s := newTestServer(t)
	onboardTenant(t, s, "demo")

	w := doJSON(s, http.MethodGet, "/api/entitlements", "demo.tavolo.app", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"basic"`)
	assert.Contains(t, w.Body.String(), "max_tables")
}

func TestPlanChange(t *testing.T) {
	s := newTestServer(t)
	onboardTenant(t, s, "demo")
	host := "demo.tavolo.app"

	w := doJSON(s, http.MethodPost, "/api/subscription/plan", host, map[string]any{
		"planCode": "premium",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"upgrade":true`)

	w = doJSON(s, http.MethodPost, "/api/subscription/plan", host, map[string]any{
		"planCode": "bogus",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
