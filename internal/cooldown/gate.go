// Package cooldown suppresses repeated notifications from one camera.
package cooldown

import "time"

// Gate holds the deadline before which a camera may not notify again. It is
// owned by a single worker loop and does no locking.
type Gate struct {
	deadline time.Time
}

// IsOpen reports whether now is at or past the deadline.
func (g *Gate) IsOpen(now time.Time) bool {
	return !now.Before(g.deadline)
}

// ArmInitial starts the warm-up period when a worker starts.
func (g *Gate) ArmInitial(now time.Time, delay time.Duration) {
	g.advance(now.Add(delay))
}

// ArmAfterNotify closes the gate for delay after a notification. The deadline
// ends up no earlier than now, whatever delay is.
func (g *Gate) ArmAfterNotify(now time.Time, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	g.advance(now.Add(delay))
}

// Deadline returns the time at which the gate opens.
func (g *Gate) Deadline() time.Time {
	return g.deadline
}

// advance moves the deadline forward only; it never shortens a cooldown.
func (g *Gate) advance(t time.Time) {
	if t.After(g.deadline) {
		g.deadline = t
	}
}
