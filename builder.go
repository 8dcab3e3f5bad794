package civix

import (
	"context"
	"errors"
	"fmt"

	internalaudit "github.com/civix-platform/civix/internal/audit"
	"github.com/civix-platform/civix/permission"
	"github.com/civix-platform/civix/session"
	"github.com/civix-platform/civix/transport"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/civix-platform/civix"

// Builder assembles a [Manager]. A Builder can be used for one Build call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	provider   IdentityProvider
	profiles   ProfileService
	credential *transport.Credential
	snapshots  SnapshotStore
	roles      map[session.Role][]string

	auditSink      AuditSink
	logger         logrus.FieldLogger
	tracerProvider trace.TracerProvider

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithIdentityProvider sets the identity provider. Required.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithProfileService sets the backend profile service. Without one, sign-ins
// go straight to PhaseAuthenticated with provider data only.
func (b *Builder) WithProfileService(ps ProfileService) *Builder {
	b.profiles = ps
	return b
}

// WithCredential sets the credential cell shared with the transport client.
// Build creates one when none is set; read it back with Manager.Credential.
func (b *Builder) WithCredential(c *transport.Credential) *Builder {
	b.credential = c
	return b
}

// WithSnapshotStore sets the snapshot store directly.
func (b *Builder) WithSnapshotStore(s SnapshotStore) *Builder {
	b.snapshots = s
	return b
}

// WithRedis builds a [session.Store] on client using Config.Store. Ignored
// when WithSnapshotStore is also used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRoles replaces the default capability table.
func (b *Builder) WithRoles(table map[session.Role][]string) *Builder {
	b.roles = table
	return b
}

// WithAuditSink sets the audit sink. Auditing also needs Config.Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. Without one, Build uses NewLogger(Config.Logging).
func (b *Builder) WithLogger(l logrus.FieldLogger) *Builder {
	b.logger = l
	return b
}

// WithTracerProvider sets the tracer provider. The global provider is used
// otherwise.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the enrichment latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns an unstarted Manager.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, ErrProviderRequired
	}

	snapshots := b.snapshots
	if snapshots == nil && b.redis != nil {
		snapshots = session.NewStore(b.redis, cfg.Store.RedisPrefix, cfg.Store.SnapshotTTL)
	}
	if cfg.DeviceID == "" {
		if snapshots != nil {
			return nil, errors.New("DeviceID required when a snapshot store is configured")
		}
		cfg.DeviceID = uuid.NewString()
	}

	var (
		roles *permission.RoleManager
		err   error
	)
	if b.roles != nil {
		roles, err = permission.NewRoleManagerFromTable(b.roles)
	} else {
		roles, err = permission.NewDefaultRoleManager()
	}
	if err != nil {
		return nil, fmt.Errorf("build roles: %w", err)
	}

	credential := b.credential
	if credential == nil {
		credential = transport.NewCredential()
	}
	// A fresh manager starts signed out; drop anything left in a shared cell.
	credential.Clear()

	logger := b.logger
	if logger == nil {
		logger = NewLogger(cfg.Logging)
	}

	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	m := &Manager{
		config:     cfg,
		provider:   b.provider,
		profiles:   b.profiles,
		credential: credential,
		snapshots:  snapshots,
		roles:      roles,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger.WithField("component", "session"),
		tracer:   tp.Tracer(tracerName),
		loading:  true,
		state:    State{Loading: true, Phase: PhaseUnauthenticated},
		watchers: make(map[uint64]*watcher),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}

	b.built = true
	return m, nil
}
