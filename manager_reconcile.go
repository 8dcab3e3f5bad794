package civix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civix-platform/civix/identity"
	"github.com/civix-platform/civix/profile"
	"github.com/civix-platform/civix/session"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// handleAuthState receives every identity provider report.
func (m *Manager) handleAuthState(id *identity.Identity) {
	if id == nil {
		m.providerSignedOut()
		return
	}
	if strings.TrimSpace(id.UID) == "" {
		m.logger.Warn("civix: identity provider reported a sign-in without uid; treating as signed out")
		m.providerSignedOut()
		return
	}
	m.providerSignedIn(id)
}

func (m *Manager) providerSignedIn(id *identity.Identity) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	restored := !m.reported
	m.reported = true
	m.loading = false
	if m.startupTimer != nil {
		m.startupTimer.Stop()
	}

	provisional := provisionalSession(id, m.state.User, m.config.Session.DefaultDisplayName)
	m.generation++
	gen := m.generation
	m.credential.Set(provisional.UserID)

	phase := PhaseAuthenticated
	if m.profiles != nil {
		phase = PhaseAuthenticating
	}
	m.commitLocked(State{IsAuthenticated: true, User: provisional, Phase: phase})
	if m.profiles != nil {
		m.spawnLocked(func(ctx context.Context) {
			m.enrich(ctx, gen, provisional)
		})
	}
	m.mu.Unlock()

	m.notify()
	m.metrics.Inc(MetricProviderSignIn)
	if restored {
		m.emitAudit(m.bgCtx, AuditSessionRestored, provisional, true, nil, nil)
	}
	m.logger.WithFields(logrus.Fields{
		"user_id":  provisional.UserID,
		"restored": restored,
	}).Info("civix: identity provider signed in")
}

func (m *Manager) providerSignedOut() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.reported = true
	m.loading = false
	if m.startupTimer != nil {
		m.startupTimer.Stop()
	}
	prev := m.state.User
	wasAuthenticated := m.state.IsAuthenticated
	m.generation++
	m.credential.Clear()
	if wasAuthenticated || m.state.Loading {
		m.commitLocked(State{Phase: PhaseUnauthenticated})
	}
	m.mu.Unlock()

	m.notify()
	m.metrics.Inc(MetricProviderSignOut)
	if wasAuthenticated {
		m.emitAudit(m.bgCtx, AuditProviderSignedOut, prev, true, nil, nil)
		m.logger.WithField("user_id", prev.UserID).Info("civix: identity provider signed out")
	}
}

// enrich makes the single background profile call that follows a provider
// sign-in. A failure keeps the provisional session.
func (m *Manager) enrich(bg context.Context, gen uint64, provisional session.Session) {
	ctx, cancel := context.WithTimeout(bg, m.config.Backend.ProfileTimeout)
	defer cancel()
	ctx, span := m.tracer.Start(ctx, "civix.session.enrich",
		trace.WithAttributes(attribute.String("civix.user_id", provisional.UserID)))
	defer span.End()

	p, err := m.fetchProfile(ctx)
	if err != nil && bg.Err() != nil {
		// Closed while fetching.
		span.SetStatus(codes.Error, "manager closed")
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile fetch failed")
		m.emitAudit(context.WithoutCancel(bg), AuditProfileEnrichmentFail, provisional, false, err, nil)
		m.logger.WithError(err).WithField("user_id", provisional.UserID).
			Warn("civix: profile enrichment failed; keeping provisional session")
		m.applyFallback(bg, gen, provisional)
		return
	}

	merged, ok := m.applyProfile(gen, p)
	if !ok {
		span.SetAttributes(attribute.Bool("civix.discarded", true))
		return
	}
	m.emitAudit(context.WithoutCancel(bg), AuditProfileEnriched, merged, true, nil, nil)
}

// RefreshProfile fetches the backend profile now and merges it into the
// session. Unlike background enrichment the error is returned, but a
// failure never clears or downgrades the session.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	if m.profiles == nil {
		return ErrProfileServiceUnavailable
	}

	m.mu.RLock()
	closed := m.closed
	authenticated := m.state.IsAuthenticated
	gen := m.generation
	user := m.state.User
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}
	if !authenticated {
		return ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.Backend.ProfileTimeout)
	defer cancel()
	ctx, span := m.tracer.Start(ctx, "civix.session.refresh_profile")
	defer span.End()

	p, err := m.fetchProfile(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile fetch failed")
		m.emitAudit(ctx, AuditProfileEnrichmentFail, user, false, err, map[string]string{"trigger": "refresh"})
		return fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
	}

	merged, ok := m.applyProfile(gen, p)
	if !ok {
		return ErrSessionChanged
	}
	m.emitAudit(ctx, AuditProfileEnriched, merged, true, nil, map[string]string{"trigger": "refresh"})
	return nil
}

func (m *Manager) fetchProfile(ctx context.Context) (*profile.Profile, error) {
	start := time.Now()
	p, err := m.profiles.FetchProfile(ctx)
	m.metrics.Observe(MetricEnrichmentLatency, time.Since(start))
	if err != nil {
		m.metrics.Inc(MetricEnrichmentFailure)
		return nil, err
	}
	if p == nil {
		p = &profile.Profile{}
	}
	return p, nil
}

func (m *Manager) applyProfile(gen uint64, p *profile.Profile) (session.Session, bool) {
	var rejected []string
	merged, ok := m.finishEnrichment(gen, true, func(cur session.Session) session.Session {
		var next session.Session
		next, rejected = mergeProfile(cur, p)
		return next
	})
	if !ok {
		return session.Session{}, false
	}
	m.metrics.Inc(MetricEnrichmentSuccess)
	if len(rejected) > 0 {
		m.logger.WithFields(logrus.Fields{
			"user_id":  merged.UserID,
			"rejected": strings.Join(rejected, ","),
		}).Warn("civix: ignored unusable backend profile fields")
	}
	m.logger.WithFields(logrus.Fields{
		"user_id": merged.UserID,
		"role":    merged.Role.String(),
		"points":  merged.Points,
	}).Debug("civix: profile enriched")
	return merged, true
}

// applyFallback settles the session after a failed enrichment. A stored
// snapshot of the same user supplies role and points when enabled; otherwise
// the provisional defaults stand.
func (m *Manager) applyFallback(bg context.Context, gen uint64, provisional session.Session) {
	var snap *session.Snapshot
	if m.snapshots != nil && m.config.Session.SnapshotFallback {
		ctx, cancel := context.WithTimeout(bg, m.config.Store.Timeout)
		loaded, err := m.snapshots.Load(ctx, m.config.DeviceID)
		cancel()
		switch {
		case err == nil:
			snap = loaded
		case errors.Is(err, session.ErrSnapshotNotFound):
		default:
			m.metrics.Inc(MetricSnapshotFailure)
			m.logger.WithError(err).Warn("civix: snapshot load failed")
		}
	}

	used := false
	merged, ok := m.finishEnrichment(gen, false, func(cur session.Session) session.Session {
		next, applied := mergeSnapshot(cur, snap, m.config.Session.DefaultDisplayName)
		used = applied
		return next
	})
	if !ok || !used {
		return
	}
	m.metrics.Inc(MetricSnapshotFallback)
	var meta map[string]string
	if snap.SavedAt > 0 {
		meta = map[string]string{"saved_at": time.Unix(snap.SavedAt, 0).UTC().Format(time.RFC3339)}
	}
	m.emitAudit(context.WithoutCancel(bg), AuditSnapshotFallbackUsed, merged, true, nil, meta)
	m.logger.WithFields(logrus.Fields{
		"user_id": merged.UserID,
		"role":    merged.Role.String(),
	}).Info("civix: using stored snapshot after enrichment failure")
}

// finishEnrichment applies fn to the current session if the identity has not
// changed since generation gen, and moves the phase to authenticated. It
// reports false when the result was discarded.
func (m *Manager) finishEnrichment(gen uint64, persist bool, fn func(session.Session) session.Session) (session.Session, bool) {
	m.mu.Lock()
	if m.generation != gen || !m.state.IsAuthenticated {
		m.mu.Unlock()
		m.metrics.Inc(MetricEnrichmentDiscarded)
		m.logger.Debug("civix: discarded stale profile result")
		return session.Session{}, false
	}
	next := fn(m.state.User)
	next.Authenticated = true
	m.commitLocked(State{IsAuthenticated: true, User: next, Phase: PhaseAuthenticated})
	if persist {
		m.saveSnapshotLocked(next)
	}
	m.mu.Unlock()

	m.notify()
	return next, true
}
