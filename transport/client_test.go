package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestClientAttachesCurrentCredential(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("expected X-Request-ID header")
		}
		if r.URL.Path != "/api/users/profile" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cred := NewCredential()
	client, err := NewClient(Config{BaseURL: srv.URL + "/api/"}, cred)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.Get(context.Background(), "/users/profile", &out); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential before login, got %v", err)
	}

	cred.Set("u1")
	if err := client.Get(context.Background(), "/users/profile", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !out.OK {
		t.Fatal("expected decoded body")
	}
	if got := gotAuth.Load(); got != "Bearer u1" {
		t.Fatalf("expected bearer u1, got %v", got)
	}

	cred.Set("u2")
	if err := client.Get(context.Background(), "users/profile", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := gotAuth.Load(); got != "Bearer u2" {
		t.Fatalf("expected last write to win, got %v", got)
	}
}

func TestClientOmitsHeaderWhenCleared(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cred := NewCredential()
	cred.Set("u1")
	cred.Clear()
	client, err := NewClient(Config{BaseURL: srv.URL}, cred)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.Do(context.Background(), http.MethodPost, "/health", map[string]string{"a": "b"}, nil, false); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := gotAuth.Load(); got != "" {
		t.Fatalf("expected no Authorization header, got %q", got)
	}
}

func TestClientMapsNon2xxToStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cred := NewCredential()
	cred.Set("u1")
	client, err := NewClient(Config{BaseURL: srv.URL}, cred)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	err = client.Get(context.Background(), "/users/profile", nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", statusErr.StatusCode)
	}
}

func TestNewClientRejectsRelativeBaseURL(t *testing.T) {
	for _, raw := range []string{"", "/api", "ftp://example.org"} {
		if _, err := NewClient(Config{BaseURL: raw}, nil); !errors.Is(err, ErrInvalidBaseURL) {
			t.Fatalf("NewClient(%q): expected ErrInvalidBaseURL, got %v", raw, err)
		}
	}
}

func TestCredentialEmptySetClears(t *testing.T) {
	var c Credential
	c.Set("u1")
	c.Set("")
	if _, ok := c.Token(); ok {
		t.Fatal("expected empty Set to clear the credential")
	}
}
