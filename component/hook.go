package component

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/nodeflow/observability"
)

// Hook is a Component built from start and stop functions. It reports down
// until start succeeds and after stop.
type Hook struct {
	name    string
	desc    Description
	start   func(ctx context.Context) error
	stop    func(ctx context.Context) error
	checker observability.HealthChecker

	mu      sync.RWMutex
	started bool
	lastErr error
}

// NewHook creates a Hook. Either function may be nil.
func NewHook(name string, start, stop func(ctx context.Context) error) *Hook {
	return &Hook{name: name, start: start, stop: stop}
}

// WithDescription sets the startup banner entry.
func (h *Hook) WithDescription(d Description) *Hook {
	h.desc = d
	return h
}

// WithHealth delegates health reporting to c once started.
func (h *Hook) WithHealth(c observability.HealthChecker) *Hook {
	h.checker = c
	return h
}

func (h *Hook) Name() string { return h.name }

// Start runs the start function once. A failed start may be retried.
func (h *Hook) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}
	if h.start != nil {
		if err := h.start(ctx); err != nil {
			h.lastErr = err
			return fmt.Errorf("start %s: %w", h.name, err)
		}
	}
	h.started = true
	h.lastErr = nil
	return nil
}

// Stop runs the stop function if the hook was started.
func (h *Hook) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return nil
	}
	h.started = false
	if h.stop != nil {
		return h.stop(ctx)
	}
	return nil
}

// Started reports whether Start succeeded and Stop has not run since.
func (h *Hook) Started() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

func (h *Hook) Health(ctx context.Context) Health {
	h.mu.RLock()
	started, lastErr := h.started, h.lastErr
	h.mu.RUnlock()

	switch {
	case lastErr != nil:
		return Health{Name: h.name, Status: observability.HealthStatusDown, Message: lastErr.Error()}
	case !started:
		return Health{Name: h.name, Status: observability.HealthStatusDown, Message: "not started"}
	case h.checker != nil:
		hc := h.checker.CheckHealth(ctx)
		hc.Name = h.name
		return hc
	}
	return Health{Name: h.name, Status: observability.HealthStatusUp}
}

func (h *Hook) Describe() Description {
	d := h.desc
	if d.Name == "" {
		d.Name = h.name
	}
	return d
}
