package civix

import (
	"context"

	"github.com/civix-platform/civix/identity"
	"github.com/civix-platform/civix/profile"
	"github.com/civix-platform/civix/session"
)

// Phase is the lifecycle position of the current session.
type Phase uint8

const (
	// PhaseUnauthenticated means no user is signed in.
	PhaseUnauthenticated Phase = iota
	// PhaseAuthenticating means a provisional session is visible and its
	// backend profile is still being fetched.
	PhaseAuthenticating
	// PhaseAuthenticated means the session is final for now.
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// State is the read view of a Manager. It is a value; mutating it has no
// effect on the Manager.
type State struct {
	IsAuthenticated bool
	User            session.Session
	// Loading is true until the identity provider first reports its state or
	// the host logs in or out explicitly.
	Loading bool
	Phase   Phase
	// Version increases on every change.
	Version uint64
}

// IdentityProvider reports sign-in state and accepts remote sign-out.
//
// OnAuthStateChanged delivers nil for signed out. The returned function
// unsubscribes and must be safe to call more than once.
type IdentityProvider interface {
	OnAuthStateChanged(fn identity.Listener) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// ProfileService fetches the signed-in user's backend profile.
type ProfileService interface {
	FetchProfile(ctx context.Context) (*profile.Profile, error)
}

// SnapshotStore persists the last authenticated session of a device.
// [session.Store] is the Redis implementation.
type SnapshotStore interface {
	Save(ctx context.Context, deviceID string, s session.Session) error
	Load(ctx context.Context, deviceID string) (*session.Snapshot, error)
	Delete(ctx context.Context, deviceID string) error
}

// ProfileEdit changes locally held profile fields. Nil fields are left as is.
type ProfileEdit struct {
	DisplayName *string
	Email       *string
}

var (
	_ IdentityProvider = (*identity.Emitter)(nil)
	_ IdentityProvider = (*identity.Feed)(nil)
	_ ProfileService   = (*profile.Client)(nil)
	_ SnapshotStore    = (*session.Store)(nil)
)
