package civix

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	internalaudit "github.com/civix-platform/civix/internal/audit"
	"github.com/civix-platform/civix/permission"
	"github.com/civix-platform/civix/session"
	"github.com/civix-platform/civix/transport"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Manager owns the session of one application instance. It is the single
// writer of the session and of the transport credential, and is safe for
// concurrent use.
//
// Network calls (profile enrichment, remote sign-out, snapshot writes) run on
// background goroutines and never hold the state lock, so every public method
// returns without waiting on the network except RefreshProfile.
type Manager struct {
	config     Config
	provider   IdentityProvider
	profiles   ProfileService
	credential *transport.Credential
	snapshots  SnapshotStore
	roles      *permission.RoleManager
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     logrus.FieldLogger
	tracer     trace.Tracer

	mu    sync.RWMutex
	state State
	// generation changes whenever the signed-in identity changes. Background
	// results tagged with an older generation are discarded.
	generation   uint64
	loading      bool
	reported     bool
	started      bool
	closed       bool
	unsubscribe  func()
	startupTimer *time.Timer
	watchers     map[uint64]*watcher
	nextWatcher  uint64
	storeSeq     uint64

	notifyMu     sync.Mutex
	lastNotified uint64

	storeMu      sync.Mutex
	storeApplied uint64

	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// Start subscribes to the identity provider. It may be called once.
func (m *Manager) Start(ctx context.Context) error {
	_, span := m.tracer.Start(ctx, "civix.session.start")
	defer span.End()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	if d := m.config.Identity.StartupTimeout; d > 0 {
		m.startupTimer = time.AfterFunc(d, m.startupTimedOut)
	}
	m.mu.Unlock()

	// The provider may replay its current state synchronously.
	unsubscribe := m.provider.OnAuthStateChanged(m.handleAuthState)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsubscribe()
		return ErrManagerClosed
	}
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.logger.Debug("civix: subscribed to identity provider")
	return nil
}

// Login replaces the session with s and sets the transport credential to its
// user ID. It makes no network call on the caller's goroutine.
func (m *Manager) Login(ctx context.Context, s session.Session) error {
	if err := validateLogin(s); err != nil {
		m.metrics.Inc(MetricLoginRejected)
		return err
	}
	s.Authenticated = true

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.generation++
	m.loading = false
	m.credential.Set(s.UserID)
	m.commitLocked(State{IsAuthenticated: true, User: s, Phase: PhaseAuthenticated})
	m.saveSnapshotLocked(s)
	m.mu.Unlock()

	m.notify()
	m.metrics.Inc(MetricLogin)
	m.emitAudit(ctx, AuditSessionLogin, s, true, nil, nil)
	m.logger.WithFields(logrus.Fields{
		"user_id": s.UserID,
		"role":    s.Role.String(),
	}).Info("civix: session login")
	return nil
}

func validateLogin(s session.Session) error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidSession)
	}
	if !s.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidSession, s.Role)
	}
	return nil
}

// Logout clears the session and the transport credential, notifies
// watchers, and only then asks the identity provider to sign out in the
// background. The remote outcome never changes the local state. Calling
// Logout while signed out leaves the state as is and retries the remote
// sign-out.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	prev := m.state.User
	wasAuthenticated := m.state.IsAuthenticated
	m.generation++
	m.loading = false
	m.credential.Clear()
	if wasAuthenticated || m.state.Loading {
		m.commitLocked(State{Phase: PhaseUnauthenticated})
	}
	if wasAuthenticated {
		m.deleteSnapshotLocked()
	}
	m.mu.Unlock()

	m.notify()

	if wasAuthenticated {
		m.metrics.Inc(MetricLogout)
		m.emitAudit(ctx, AuditSessionLogout, prev, true, nil, nil)
		m.logger.WithField("user_id", prev.UserID).Info("civix: session logout")
	}

	m.mu.Lock()
	m.spawnLocked(func(bg context.Context) {
		m.remoteSignOut(bg, prev)
	})
	m.mu.Unlock()
}

func (m *Manager) remoteSignOut(bg context.Context, prev session.Session) {
	ctx, cancel := context.WithTimeout(bg, m.config.Identity.SignOutTimeout)
	defer cancel()
	ctx, span := m.tracer.Start(ctx, "civix.session.remote_sign_out")
	defer span.End()

	err := m.provider.SignOut(ctx)
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "remote sign-out failed")
	m.metrics.Inc(MetricRemoteSignOutFailure)
	m.emitAudit(context.WithoutCancel(bg), AuditRemoteSignOutFailed, prev, false, err, nil)
	m.logger.WithError(err).WithField("user_id", prev.UserID).Warn("civix: remote sign-out failed")
}

// Close unsubscribes from the identity provider, cancels in-flight remote
// sign-out and enrichment, waits for background work and stops the audit
// dispatcher. The session is left as is.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	if m.startupTimer != nil {
		m.startupTimer.Stop()
	}
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.bgCancel()
	m.bg.Wait()
	m.audit.Close()
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns a copy of the current session.
func (m *Manager) Session() session.Session {
	return m.State().User
}

// Can reports whether the signed-in user's role grants capability.
func (m *Manager) Can(capability string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.state.IsAuthenticated {
		return false
	}
	return m.roles.Can(m.state.User.Role, capability)
}

// Capabilities lists the capabilities of the signed-in user's role.
func (m *Manager) Capabilities() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.state.IsAuthenticated {
		return nil
	}
	return m.roles.Capabilities(m.state.User.Role)
}

// Credential returns the cell the Manager keeps in sync with the session.
// Pass it to transport.NewClient.
func (m *Manager) Credential() *transport.Credential {
	return m.credential
}

// MetricsSnapshot returns a copy of the in-process counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// AuditSinkPanics returns the number of audit sink calls that panicked.
func (m *Manager) AuditSinkPanics() uint64 {
	return m.audit.SinkPanics()
}

// commitLocked installs next as the current state. m.mu must be held.
func (m *Manager) commitLocked(next State) {
	next.Loading = m.loading
	next.Version = m.state.Version + 1
	m.state = next
}

// spawnLocked runs fn on a tracked goroutine unless the Manager is closed.
// m.mu must be held so the check and the WaitGroup add are atomic with Close.
func (m *Manager) spawnLocked(fn func(ctx context.Context)) bool {
	if m.closed {
		return false
	}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		fn(m.bgCtx)
	}()
	return true
}

func (m *Manager) startupTimedOut() {
	m.mu.Lock()
	if m.closed || m.reported || !m.loading {
		m.mu.Unlock()
		return
	}
	m.loading = false
	cur := m.state
	m.commitLocked(State{IsAuthenticated: cur.IsAuthenticated, User: cur.User, Phase: cur.Phase})
	m.mu.Unlock()

	m.notify()
	m.logger.WithField("timeout", m.config.Identity.StartupTimeout).
		Warn("civix: identity provider did not report state before startup timeout")
}
