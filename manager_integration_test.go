package civix

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/civix-platform/civix/identity"
	"github.com/civix-platform/civix/profile"
	"github.com/civix-platform/civix/session"
	"github.com/civix-platform/civix/transport"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEnrichmentThroughTransportUsesSessionCredential(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []string
	)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Get("Authorization"))
		mu.Unlock()
		if r.URL.Path != profile.Path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"role":"technician","points":40,"name":"Asha"}`))
	}))
	defer backend.Close()

	cred := transport.NewCredential()
	client, err := transport.NewClient(transport.Config{BaseURL: backend.URL, Timeout: time.Second}, cred)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	provider := newFakeProvider()
	m := buildManager(t, New().
		WithConfig(testConfig()).
		WithIdentityProvider(provider).
		WithCredential(cred).
		WithProfileService(profile.NewClient(client)))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	provider.SignIn(identity.Identity{UID: "u1", DisplayName: "A"})
	waitFor(t, "enrichment", func() bool { return m.State().Phase == PhaseAuthenticated })

	if u := m.State().User; u.Role != session.RoleTechnician || u.Points != 40 || u.DisplayName != "Asha" {
		t.Fatalf("unexpected enriched session %+v", u)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(headers) != 1 || headers[0] != "Bearer u1" {
		t.Fatalf("expected one request with Bearer u1, got %q", headers)
	}

	m.Logout(context.Background())
	if _, ok := client.Credential().Token(); ok {
		t.Fatal("transport still holds a credential after logout")
	}
}

func TestEnrichmentFailureRecordedOnSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer backend.Close()

	cred := transport.NewCredential()
	client, err := transport.NewClient(transport.Config{BaseURL: backend.URL}, cred)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	provider := newFakeProvider()
	m, err := New().
		WithConfig(testConfig()).
		WithIdentityProvider(provider).
		WithCredential(cred).
		WithProfileService(profile.NewClient(client)).
		WithTracerProvider(tp).
		WithLogger(quietLogger()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	provider.SignIn(identity.Identity{UID: "u1"})
	m.Close()

	if st := m.State(); !st.IsAuthenticated || st.User.Role != session.RoleCitizen || st.Phase != PhaseAuthenticated {
		t.Fatalf("expected provisional session kept, got %+v", st)
	}

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "civix.session.enrich" {
			continue
		}
		found = true
		if span.Status().Code != codes.Error {
			t.Fatalf("expected error status, got %v", span.Status())
		}
	}
	if !found {
		t.Fatal("enrich span not recorded")
	}
}
