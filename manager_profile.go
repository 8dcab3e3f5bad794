package civix

import (
	"context"
	"fmt"
	"strings"
)

// UpdateProfile applies a local profile edit to the signed-in session and
// persists it. Edits do not reach the backend.
func (m *Manager) UpdateProfile(ctx context.Context, edit ProfileEdit) error {
	if edit.DisplayName == nil && edit.Email == nil {
		return fmt.Errorf("%w: no fields set", ErrInvalidProfileEdit)
	}
	var name string
	if edit.DisplayName != nil {
		name = strings.TrimSpace(*edit.DisplayName)
		if name == "" {
			return fmt.Errorf("%w: empty display name", ErrInvalidProfileEdit)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if !m.state.IsAuthenticated {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	next := m.state.User
	changed := make(map[string]string, 2)
	if edit.DisplayName != nil {
		next.DisplayName = name
		changed["display_name"] = "updated"
	}
	if edit.Email != nil {
		next.Email = strings.TrimSpace(*edit.Email)
		changed["email"] = "updated"
	}
	m.commitLocked(State{IsAuthenticated: true, User: next, Phase: m.state.Phase})
	// While enrichment is pending the role is provisional; the enrichment
	// result carries this edit into the snapshot instead.
	if m.state.Phase == PhaseAuthenticated {
		m.saveSnapshotLocked(next)
	}
	m.mu.Unlock()

	m.notify()
	m.metrics.Inc(MetricProfileUpdated)
	m.emitAudit(ctx, AuditProfileUpdated, next, true, nil, changed)
	m.logger.WithField("user_id", next.UserID).Info("civix: profile updated")
	return nil
}
