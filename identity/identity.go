package identity

import (
	"errors"
	"fmt"

	"github.com/civix-platform/civix/jwt"
)

// Identity is what the identity provider knows about a signed-in user.
type Identity struct {
	UID         string
	DisplayName string
	Email       string
}

// Listener receives auth-state changes. A nil identity means signed out.
type Listener func(*Identity)

// ErrInvalidToken wraps every ID token verification failure.
var ErrInvalidToken = errors.New("invalid id token")

// Verifier maps signed ID tokens to identities.
type Verifier struct {
	tokens *jwt.Manager
}

// NewVerifier returns a [Verifier] backed by m.
func NewVerifier(m *jwt.Manager) *Verifier {
	return &Verifier{tokens: m}
}

// Verify checks the signature and claims of token.
func (v *Verifier) Verify(token string) (*Identity, error) {
	claims, err := v.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &Identity{
		UID:         claims.UID(),
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}
