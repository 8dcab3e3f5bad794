package civix

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/civix-platform/civix/jwt"
)

// Config defines the configuration of a [Manager] and of the collaborators
// built around it (transport, identity feed, snapshot store).
//
// Config values are read once by [Builder.Build] and treated as immutable
// afterwards.
type Config struct {
	// DeviceID identifies this application instance. It keys the session
	// snapshot and is attached to audit events.
	DeviceID string `env:"DEVICE_ID"`

	Backend  BackendConfig  `envPrefix:"BACKEND_"`
	Identity IdentityConfig `envPrefix:"IDENTITY_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`
	Store    StoreConfig    `envPrefix:"STORE_"`
	Audit    AuditConfig    `envPrefix:"AUDIT_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
	Logging  LoggingConfig  `envPrefix:"LOG_"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig describes the Civix REST API.
type BackendConfig struct {
	BaseURL        string        `env:"BASE_URL"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	// ProfileTimeout bounds the single enrichment call made after sign-in.
	ProfileTimeout time.Duration `env:"PROFILE_TIMEOUT"`
	UserAgent      string        `env:"USER_AGENT"`
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig describes the identity provider.
type IdentityConfig struct {
	// SignOutTimeout bounds the best-effort remote sign-out started by Logout.
	SignOutTimeout time.Duration `env:"SIGN_OUT_TIMEOUT"`
	// StartupTimeout ends the loading window when the provider has not reported
	// any state after Start. Zero waits indefinitely.
	StartupTimeout time.Duration `env:"STARTUP_TIMEOUT"`

	FeedURL        string            `env:"FEED_URL"`
	ReconnectDelay time.Duration     `env:"RECONNECT_DELAY"`
	SigningMethod  jwt.SigningMethod `env:"SIGNING_METHOD"`
	// VerifyKey is the ed25519 public key (PEM) or the hs256 shared secret.
	VerifyKey string        `env:"VERIFY_KEY"`
	Issuer    string        `env:"ISSUER"`
	Audience  string        `env:"AUDIENCE"`
	Leeway    time.Duration `env:"LEEWAY"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls how provisional sessions are built.
type SessionConfig struct {
	// DefaultDisplayName is used when the provider supplies no display name.
	DefaultDisplayName string `env:"DEFAULT_DISPLAY_NAME"`
	// SnapshotFallback lets a stored snapshot of the same user supply role and
	// points when enrichment fails. Off by default: a failed enrichment keeps
	// the citizen defaults.
	SnapshotFallback bool `env:"SNAPSHOT_FALLBACK"`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig describes the optional Redis snapshot store.
type StoreConfig struct {
	RedisAddr   string        `env:"REDIS_ADDR"`
	RedisPrefix string        `env:"REDIS_PREFIX"`
	SnapshotTTL time.Duration `env:"SNAPSHOT_TTL"`
	// Timeout bounds each snapshot read or write.
	Timeout time.Duration `env:"TIMEOUT"`
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// LoggingConfig controls the default logger built when none is injected.
type LoggingConfig struct {
	Level  string `env:"LEVEL"`
	Format string `env:"FORMAT"` // "text" (default) or "json"
}

// DefaultConfig returns a configuration suitable for a mobile or web client
// talking to a single backend.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			RequestTimeout: 10 * time.Second,
			ProfileTimeout: 5 * time.Second,
			UserAgent:      "civix-client",
		},
		Identity: IdentityConfig{
			SignOutTimeout: 5 * time.Second,
			ReconnectDelay: 2 * time.Second,
			SigningMethod:  jwt.MethodEd25519,
			Leeway:         30 * time.Second,
		},
		Session: SessionConfig{
			DefaultDisplayName: "User",
		},
		Store: StoreConfig{
			RedisPrefix: "civix",
			SnapshotTTL: 30 * 24 * time.Hour,
			Timeout:     2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Validate checks the configuration for values the Manager cannot work with.
func (c *Config) Validate() error {
	if c.Backend.ProfileTimeout <= 0 {
		return errors.New("Backend.ProfileTimeout must be > 0")
	}
	if c.Backend.RequestTimeout < 0 {
		return errors.New("Backend.RequestTimeout must be >= 0")
	}
	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.New("Backend.BaseURL must be an absolute http(s) URL")
		}
	}

	if c.Identity.SignOutTimeout <= 0 {
		return errors.New("Identity.SignOutTimeout must be > 0")
	}
	if c.Identity.StartupTimeout < 0 {
		return errors.New("Identity.StartupTimeout must be >= 0")
	}
	if c.Identity.Leeway < 0 || c.Identity.Leeway > 2*time.Minute {
		return errors.New("Identity.Leeway must be within [0, 2m]")
	}
	if c.Identity.FeedURL != "" {
		u, err := url.Parse(c.Identity.FeedURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return errors.New("Identity.FeedURL must be a ws(s) URL")
		}
		if strings.TrimSpace(c.Identity.VerifyKey) == "" {
			return errors.New("Identity.FeedURL requires Identity.VerifyKey")
		}
	}
	switch c.Identity.SigningMethod {
	case "", jwt.MethodEd25519, jwt.MethodHS256:
	default:
		return errors.New("Identity.SigningMethod must be ed25519 or hs256")
	}

	if strings.TrimSpace(c.Session.DefaultDisplayName) == "" {
		return errors.New("Session.DefaultDisplayName must not be empty")
	}

	if c.Store.SnapshotTTL < 0 {
		return errors.New("Store.SnapshotTTL must be >= 0")
	}
	if c.Store.Timeout <= 0 {
		return errors.New("Store.Timeout must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errors.New("Logging.Format must be text or json")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	return cfg
}
