package civix

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/civix-platform/civix/session"
)

// Watch registers fn to receive the state after every change, starting with
// the current state. Deliveries are serialized and never go backwards in
// Version, though intermediate states may be skipped. fn must not call
// Login, Logout, UpdateProfile or Watch itself; hand off to another
// goroutine for that. Panics in fn are recovered and logged.
func (m *Manager) Watch(fn func(State)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	m.notifyMu.Lock()
	m.mu.Lock()
	m.nextWatcher++
	id := m.nextWatcher
	w := &watcher{fn: fn, seen: m.state.Version}
	m.watchers[id] = w
	st := m.state
	m.mu.Unlock()
	m.deliver(fn, st)
	m.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
}

// notify delivers the newest state to every watcher.
func (m *Manager) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.RLock()
	st := m.state
	if st.Version <= m.lastNotified {
		m.mu.RUnlock()
		return
	}
	ids := slices.Sorted(maps.Keys(m.watchers))
	ws := make([]*watcher, 0, len(ids))
	for _, id := range ids {
		ws = append(ws, m.watchers[id])
	}
	m.mu.RUnlock()

	m.lastNotified = st.Version
	for _, w := range ws {
		if w.seen >= st.Version {
			continue
		}
		w.seen = st.Version
		m.deliver(w.fn, st)
	}
}

// watcher is a registered Watch callback. seen is the last Version delivered
// to it and is only touched under notifyMu.
type watcher struct {
	fn   func(State)
	seen uint64
}

func (m *Manager) deliver(fn func(State), st State) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.Inc(MetricWatcherPanic)
			m.logger.WithField("panic", r).Error("civix: session watcher panicked")
		}
	}()
	fn(st)
}

// saveSnapshotLocked persists s in the background. m.mu must be held.
func (m *Manager) saveSnapshotLocked(s session.Session) {
	m.storeLocked("save", func(ctx context.Context) error {
		return m.snapshots.Save(ctx, m.config.DeviceID, s)
	})
}

// deleteSnapshotLocked removes the device snapshot in the background.
// m.mu must be held.
func (m *Manager) deleteSnapshotLocked() {
	m.storeLocked("delete", func(ctx context.Context) error {
		return m.snapshots.Delete(ctx, m.config.DeviceID)
	})
}

// storeLocked queues a snapshot write. Writes are sequenced under m.mu and a
// write that lost the race to a newer one is skipped, so the store always
// ends up holding the newest session. Writes outlive Close and are bounded
// by Store.Timeout only.
func (m *Manager) storeLocked(op string, fn func(ctx context.Context) error) {
	if m.snapshots == nil {
		return
	}
	m.storeSeq++
	seq := m.storeSeq
	m.spawnLocked(func(bg context.Context) {
		m.storeMu.Lock()
		defer m.storeMu.Unlock()
		if seq < m.storeApplied {
			return
		}
		m.storeApplied = seq

		ctx, cancel := context.WithTimeout(context.WithoutCancel(bg), m.config.Store.Timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.metrics.Inc(MetricSnapshotFailure)
			m.logger.WithError(err).WithField("op", op).Warn("civix: snapshot write failed")
		}
	})
}
