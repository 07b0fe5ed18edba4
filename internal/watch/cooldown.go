package watch

import "time"

// Cooldown tracks the last alert time per camera and gates how often a
// camera may alert. It is only ever touched by the poll loop, so it needs
// no locking.
type Cooldown struct {
	window    time.Duration
	lastAlert map[string]time.Time
}

// NewCooldown creates a tracker with one entry per camera, all starting at
// "never alerted". Entries are never added or removed afterwards.
func NewCooldown(window time.Duration, cameras []string) *Cooldown {
	lastAlert := make(map[string]time.Time, len(cameras))
	for _, camera := range cameras {
		lastAlert[camera] = time.Time{}
	}
	return &Cooldown{window: window, lastAlert: lastAlert}
}

// ShouldAlert reports whether camera may alert at now: either it has never
// alerted, or more than the cooldown window has passed since its last
// alert. A non-positive delta (clock stepped backwards) counts as still in
// cooldown so clock anomalies cannot cause alert storms.
func (c *Cooldown) ShouldAlert(camera string, now time.Time) bool {
	last, ok := c.lastAlert[camera]
	if !ok {
		return false
	}
	if last.IsZero() {
		return true
	}
	delta := now.Sub(last)
	if delta <= 0 {
		return false
	}
	return delta > c.window
}

// RecordAlert marks camera as having alerted at now. Unknown cameras are
// ignored to keep the tracked set identical to the configured set.
func (c *Cooldown) RecordAlert(camera string, now time.Time) {
	if _, ok := c.lastAlert[camera]; !ok {
		return
	}
	c.lastAlert[camera] = now
}
