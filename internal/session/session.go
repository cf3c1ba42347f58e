// Package session issues and verifies caller-owned login sessions. There is
// no process-global "current user": every call site that needs an actor holds
// a Session value and passes its user along explicitly, so two sessions in one
// process never observe each other.
package session

import (
	"time"

	"github.com/brewmetric/brewmetric-core/pkg/db/models"
)

// Session is one authenticated login. The embedded token is a signed handle
// that can round-trip through an untrusted caller and be verified later.
type Session struct {
	ID        string
	Token     string
	User      *models.User
	IssuedAt  time.Time
	ExpiresAt time.Time

	revoked bool
}

// IsAuthenticated reports whether the session is live: not logged out and not
// past its expiry.
func (s *Session) IsAuthenticated() bool {
	if s == nil || s.revoked || s.User == nil {
		return false
	}
	return time.Now().Before(s.ExpiresAt)
}

// Actor returns the session's user, or nil when the session is no longer
// live. Callers hand the result straight to the permission checks, which
// treat nil as denied.
func (s *Session) Actor() *models.User {
	if !s.IsAuthenticated() {
		return nil
	}
	return s.User
}

func (s *Session) revoke() {
	s.revoked = true
	s.User = nil
}
