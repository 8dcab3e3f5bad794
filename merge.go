package civix

import (
	"math"
	"strings"

	"github.com/civix-platform/civix/identity"
	"github.com/civix-platform/civix/profile"
	"github.com/civix-platform/civix/session"
)

// provisionalSession builds the session shown as soon as the provider
// reports a sign-in. When the same user is already signed in, the fields
// learned from the backend are kept so a repeated report does not downgrade
// the role while enrichment runs again.
func provisionalSession(id *identity.Identity, current session.Session, defaultName string) session.Session {
	s := session.Session{
		UserID:        id.UID,
		DisplayName:   strings.TrimSpace(id.DisplayName),
		Email:         strings.TrimSpace(id.Email),
		Role:          session.RoleCitizen,
		Authenticated: true,
	}
	if s.DisplayName == "" {
		s.DisplayName = defaultName
	}
	if current.Authenticated && current.UserID == id.UID {
		s.Role = current.Role
		s.Points = current.Points
		if current.DisplayName != "" {
			s.DisplayName = current.DisplayName
		}
	}
	return s
}

// mergeProfile overlays the backend profile on s. Backend fields win; a
// field the backend omits or sends in an unusable form keeps the value from
// s. The names of rejected fields are returned for logging.
func mergeProfile(s session.Session, p *profile.Profile) (session.Session, []string) {
	if p == nil {
		return s, nil
	}
	var rejected []string

	if p.Role != nil {
		if role, err := session.ParseRole(strings.TrimSpace(*p.Role)); err == nil {
			s.Role = role
		} else {
			rejected = append(rejected, "role")
		}
	}
	if p.Points != nil {
		if *p.Points >= 0 && *p.Points <= math.MaxUint32 {
			s.Points = uint32(*p.Points)
		} else {
			rejected = append(rejected, "points")
		}
	}
	if p.Name != nil {
		if name := strings.TrimSpace(*p.Name); name != "" {
			s.DisplayName = name
		} else {
			rejected = append(rejected, "name")
		}
	}
	return s, rejected
}

// mergeSnapshot applies the role and points of a stored snapshot of the same
// user. The display name is only taken when the provider supplied none.
func mergeSnapshot(s session.Session, snap *session.Snapshot, defaultName string) (session.Session, bool) {
	if snap == nil || !snap.Session.Authenticated || snap.Session.UserID != s.UserID {
		return s, false
	}
	if snap.Session.Role.Valid() {
		s.Role = snap.Session.Role
	}
	s.Points = snap.Session.Points
	if s.DisplayName == defaultName && snap.Session.DisplayName != "" {
		s.DisplayName = snap.Session.DisplayName
	}
	return s, true
}
