package domain

import "time"

// Session is one signed-in browser. Expired sessions never leave the store.
type Session struct {
	ID        string // 256-bit random token
	UserID    string
	ExpiresAt time.Time
	// VerifiedAt is the last successful second-factor check, if any.
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// VerifiedWithin reports whether the session passed a second-factor check
// no longer than d before now.
func (s Session) VerifiedWithin(d time.Duration, now time.Time) bool {
	return s.VerifiedAt != nil && now.Sub(*s.VerifiedAt) <= d
}
