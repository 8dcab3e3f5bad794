package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidBaseURL is returned by [NewClient] when the base URL is not an
// absolute http(s) URL.
var ErrInvalidBaseURL = errors.New("invalid base url")

// ErrMissingCredential is returned by [Client.Do] for authenticated calls made
// while the credential cell is empty.
var ErrMissingCredential = errors.New("missing bearer credential")

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	maxErrorBody        = 4 << 10
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

// Config controls the outbound client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client sends JSON requests to the backend with the current bearer
// credential attached.
type Client struct {
	base       *url.URL
	http       *http.Client
	credential *Credential
	userAgent  string
}

// NewClient builds a [Client] for cfg. cred may be shared with the session
// layer, which is the only writer.
func NewClient(cfg Config, cred *Credential) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}
	if cred == nil {
		cred = NewCredential()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		base:       base,
		http:       &http.Client{Timeout: timeout},
		credential: cred,
		userAgent:  cfg.UserAgent,
	}, nil
}

// Credential returns the cell consulted on every request.
func (c *Client) Credential() *Credential {
	return c.credential
}

// Get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, true)
}

// Do sends a JSON request. body and out may be nil. When requireAuth is set
// and no credential is present the request is not sent.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, requireAuth bool) error {
	token, hasToken := c.credential.Token()
	if requireAuth && !hasToken {
		return ErrMissingCredential
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if hasToken {
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) resolve(path string) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	return u.String()
}
