// Package profile fetches application-specific user attributes (role, points,
// display name) from the Civix backend.
package profile

import (
	"context"
	"fmt"

	"github.com/civix-platform/civix/transport"
	"golang.org/x/sync/singleflight"
)

// Path is the backend endpoint serving the caller's profile.
const Path = "/users/profile"

// Profile is the backend view of a user. Every field is optional; a nil
// field means the backend did not send it.
type Profile struct {
	Role   *string `json:"role,omitempty"`
	Points *int64  `json:"points,omitempty"`
	Name   *string `json:"name,omitempty"`
}

// Client reads profiles through a [transport.Client]. Concurrent fetches for
// the same bearer credential share one request.
type Client struct {
	http  *transport.Client
	group singleflight.Group
}

// NewClient returns a profile client sending requests through tc.
func NewClient(tc *transport.Client) *Client {
	return &Client{http: tc}
}

// FetchProfile returns the profile of the identity currently held in the
// transport credential.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	token, ok := c.http.Credential().Token()
	if !ok {
		return nil, transport.ErrMissingCredential
	}

	ch := c.group.DoChan(token, func() (any, error) {
		var p Profile
		if err := c.http.Get(ctx, Path, &p); err != nil {
			return nil, fmt.Errorf("fetch profile: %w", err)
		}
		return &p, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		p := *res.Val.(*Profile)
		return &p, nil
	}
}
