package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/civix-platform/civix"
	"github.com/civix-platform/civix/identity"
	"github.com/civix-platform/civix/metrics/export/prometheus"
	"github.com/sirupsen/logrus"
)

func newInspectorTest(t *testing.T) (http.Handler, *civix.Manager) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := civix.DefaultConfig()
	cfg.DeviceID = "inspector-test"
	emitter := identity.NewEmitter()
	m, err := civix.New().WithConfig(cfg).WithIdentityProvider(emitter).WithLogger(logger).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(m.Close)
	return newRouter(m, emitter, prometheus.NewPrometheusExporter(m)), m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInspectorLoginSessionLogout(t *testing.T) {
	h, m := newInspectorTest(t)

	rec := do(t, h, http.MethodPost, "/login", `{"uid":"u1","display_name":"Asha","role":"technician","points":40}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/session", "")
	var view stateView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if !view.Authenticated || view.User == nil || view.User.Role != "technician" || view.User.Points != 40 {
		t.Fatalf("unexpected session view %+v", view)
	}

	rec = do(t, h, http.MethodGet, "/capabilities", "")
	if !strings.Contains(rec.Body.String(), "ticket.resolve") {
		t.Fatalf("expected technician capabilities, got %s", rec.Body)
	}

	if rec := do(t, h, http.MethodPost, "/logout", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rec.Code)
	}
	if m.State().IsAuthenticated {
		t.Fatal("expected signed out after /logout")
	}
}

func TestInspectorRejectsBadLogin(t *testing.T) {
	h, _ := newInspectorTest(t)

	if rec := do(t, h, http.MethodPost, "/login", `{"uid":"u1","role":"mayor"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown role: expected 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/login", `{"uid":"","role":"citizen"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty uid: expected 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/login", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /login: expected 405, got %d", rec.Code)
	}
}

func TestInspectorSignInAndRefresh(t *testing.T) {
	h, m := newInspectorTest(t)
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if rec := do(t, h, http.MethodPost, "/refresh", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("refresh without profile service: expected 503, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/signin", `{"uid":"u7"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signin: expected 202, got %d", rec.Code)
	}
	if u := m.State().User; u.UserID != "u7" || u.DisplayName != "User" || u.Role != "citizen" {
		t.Fatalf("unexpected provisional session %+v", u)
	}
}

func TestInspectorMetrics(t *testing.T) {
	h, _ := newInspectorTest(t)
	_ = do(t, h, http.MethodPost, "/login", `{"uid":"u1","role":"citizen"}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "civix_session_login_total 1") {
		t.Fatalf("expected login counter, got:\n%s", rec.Body)
	}
}
