package sse

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/kbukum/nodeflow/component"
	"github.com/kbukum/nodeflow/logger"
	"github.com/kbukum/nodeflow/observability"
)

// Component runs a Hub under the component registry.
type Component struct {
	hub     *Hub
	path    string
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a component with a fresh Hub served at path.
func NewComponent(path string, log *logger.Logger) *Component {
	var opts []HubOption
	if log != nil {
		opts = append(opts, WithLogger(log))
	}
	return &Component{hub: NewHub(opts...), path: path}
}

// Hub returns the hub for handlers and notifiers.
func (c *Component) Hub() *Hub { return c.hub }

func (c *Component) Name() string { return "sse" }

// Start runs the hub loop in the background.
func (c *Component) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if c.hub.Stopped() {
		return fmt.Errorf("sse hub cannot be restarted")
	}
	c.running = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hub.Run()
	}()
	return nil
}

// Stop stops the hub and waits for its loop to exit.
func (c *Component) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hub.Stop()
	c.wg.Wait()
	c.running = false
	return nil
}

func (c *Component) Health(context.Context) component.Health {
	h := component.Health{
		Name:    c.Name(),
		Status:  observability.HealthStatusUp,
		Details: map[string]string{"clients": strconv.Itoa(c.hub.ClientCount())},
	}
	if c.hub.Stopped() {
		h.Status = observability.HealthStatusDown
		h.Message = "stopped"
	}
	return h
}

func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "SSE Hub",
		Type:    "sse",
		Details: "path " + c.path,
	}
}
