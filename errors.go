package civix

import "errors"

var (
	// ErrInvalidSession is returned by Login when the session record has no
	// user ID or carries an unknown role.
	ErrInvalidSession = errors.New("invalid session")
	// ErrNotAuthenticated is returned by operations that need a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("session manager already started")
	// ErrManagerClosed is returned by operations on a closed Manager.
	ErrManagerClosed = errors.New("session manager closed")
	// ErrProviderRequired is returned by Build when no identity provider is set.
	ErrProviderRequired = errors.New("identity provider required")
	// ErrProfileServiceUnavailable is returned by RefreshProfile when no
	// profile service is configured.
	ErrProfileServiceUnavailable = errors.New("profile service unavailable")
	// ErrEnrichmentFailed wraps the cause of a failed profile fetch.
	ErrEnrichmentFailed = errors.New("profile enrichment failed")
	// ErrSessionChanged is returned by RefreshProfile when the session changed
	// while the fetch was in flight and its result was discarded.
	ErrSessionChanged = errors.New("session changed during refresh")
	// ErrInvalidProfileEdit is returned by UpdateProfile for empty display
	// names or edits with no fields set.
	ErrInvalidProfileEdit = errors.New("invalid profile edit")
)
