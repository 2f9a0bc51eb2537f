// Package cooldown implements the per-user throttle that gates how often a
// single user may trigger a completion. State is process-wide and in-memory;
// it does not survive restarts.
package cooldown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWindow is the fixed cooldown applied between accepted requests
// from the same user.
const DefaultWindow = 7 * time.Second

// Tracker records, per user, the last time a request was accepted or a
// reply delivered. The map grows with the number of distinct users and is
// never trimmed unless a sweeper is started; a user absent from the map is
// never on cooldown.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
	logger *zap.Logger
}

// NewTracker creates a tracker with the given cooldown window. A
// non-positive window falls back to DefaultWindow.
func NewTracker(window time.Duration, logger *zap.Logger) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
		logger: logger,
	}
}

// CheckAndArm admits or rejects a request from userID as a single atomic
// step. If the user has no record, or the window has elapsed, the current
// time is recorded and zero is returned (admitted). Otherwise the remaining
// cooldown is returned and the recorded timestamp is left untouched, so a
// user spamming requests cannot extend their own window.
func (t *Tracker) CheckAndArm(userID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[userID]; ok {
		if remaining := t.window - now.Sub(last); remaining > 0 {
			return remaining
		}
	}
	t.last[userID] = now
	return 0
}

// Arm unconditionally records the current time for userID. The gateway
// calls this after a reply is delivered (or delivery fails), anchoring the
// effective cooldown to delivery time rather than admission time.
func (t *Tracker) Arm(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[userID] = t.now()
}

// SetWindow replaces the cooldown window. Used by config hot reload;
// non-positive values are ignored.
func (t *Tracker) SetWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = window
}

// Window returns the current cooldown window.
func (t *Tracker) Window() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window
}

// Len returns the number of tracked users.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}

// StartSweeper evicts entries idle for more than idleWindows cooldown
// windows, every interval, until ctx is done. This bounds the otherwise
// unbounded growth of the map; entries past the window are semantically
// equivalent to absent ones, so eviction never changes admission decisions.
func (t *Tracker) StartSweeper(ctx context.Context, interval time.Duration, idleWindows int) {
	if interval <= 0 {
		return
	}
	if idleWindows < 1 {
		idleWindows = 1
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.sweep(idleWindows)
			}
		}
	}()
}

func (t *Tracker) sweep(idleWindows int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-time.Duration(idleWindows) * t.window)
	removed := 0
	for user, last := range t.last {
		if last.Before(cutoff) {
			delete(t.last, user)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug("Swept idle cooldown entries",
			zap.Int("removed", removed),
			zap.Int("remaining", len(t.last)),
		)
	}
}
