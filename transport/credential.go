package transport

import "sync/atomic"

// Credential holds the bearer token attached to outbound requests.
// The zero value is an empty, usable cell. Writes are last-write-wins.
type Credential struct {
	token atomic.Pointer[string]
}

// NewCredential returns an empty credential cell.
func NewCredential() *Credential {
	return &Credential{}
}

// Set stores token. An empty token clears the cell.
func (c *Credential) Set(token string) {
	if token == "" {
		c.token.Store(nil)
		return
	}
	c.token.Store(&token)
}

// Clear removes the stored token.
func (c *Credential) Clear() {
	c.token.Store(nil)
}

// Token returns the current token and whether one is set.
func (c *Credential) Token() (string, bool) {
	if c == nil {
		return "", false
	}
	p := c.token.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}
