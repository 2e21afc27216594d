package lifecycle

import (
	"log/slog"
	"sync"
	"time"
)

// Host grants extra run time to work that must finish before the process
// is suspended. Each grant runs on its own timer, independent of the
// caller's goroutines.
type Host struct {
	mutex sync.Mutex
	timer *time.Timer
}

// NewHost creates a host with no outstanding grant
func NewHost() *Host {
	return &Host{}
}

// RequestExtraTime schedules onExpire after deadline. A new request
// replaces any outstanding one.
func (h *Host) RequestExtraTime(deadline time.Duration, onExpire func()) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(deadline, func() {
		slog.Warn("Background grace period expired", "deadline", deadline)
		onExpire()
	})
	slog.Debug("Background extra time granted", "deadline", deadline)
}

// Release cancels the outstanding grant, if any
func (h *Host) Release() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
		slog.Debug("Background extra time released")
	}
}

// Pending reports whether a grant is outstanding
func (h *Host) Pending() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.timer != nil
}
