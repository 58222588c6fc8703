package session

import "time"

// Expiry reasons reported by CheckExpiry.
const (
	ExpiryDaily = "daily"
	ExpiryIdle  = "idle"
)

// ResetPolicy configures session expiry. The daily and idle policies are
// independent ORs: whichever enabled policy is satisfied first expires the
// session.
type ResetPolicy struct {
	// DailyResetHour expires sessions whose last activity predates the most
	// recent occurrence of this local-clock hour (0-23). Nil disables.
	DailyResetHour *int
	// IdleMinutes expires sessions idle longer than this. 0 disables.
	IdleMinutes int
}

// Evaluate reports whether a session last active at lastActivityAt is expired
// at now, and which policy fired. Pure predicate: it never mutates anything.
func (p ResetPolicy) Evaluate(lastActivityAt, now time.Time) (bool, string) {
	if p.DailyResetHour != nil {
		if lastActivityAt.Before(lastResetBoundary(now, *p.DailyResetHour)) {
			return true, ExpiryDaily
		}
	}
	if p.IdleMinutes > 0 {
		if now.Sub(lastActivityAt) > time.Duration(p.IdleMinutes)*time.Minute {
			return true, ExpiryIdle
		}
	}
	return false, ""
}

// lastResetBoundary returns the most recent moment the local clock struck the
// reset hour at or before now. A session whose last activity falls on an
// earlier calendar day is expired once now passes the reset hour, and a
// session active before today's boundary expires when the boundary is
// crossed.
func lastResetBoundary(now time.Time, hour int) time.Time {
	boundary := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if boundary.After(now) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return boundary
}
