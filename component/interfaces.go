package component

import (
	"context"

	"github.com/kbukum/nodeflow/observability"
)

// Health is the health report of one component.
type Health = observability.Health

// Component is a lifecycle-managed part of the service.
type Component interface {
	// Name returns the unique registration name.
	Name() string
	Start(ctx context.Context) error
	// Stop shuts the component down and releases its resources.
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description is a one-line summary for the startup banner.
type Description struct {
	// Name is the display name; empty uses the component's Name().
	Name string
	// Type categorizes the component: "server", "sse", "telemetry", "engine".
	Type string
	// Details is shown next to the name, e.g. "0.0.0.0:8080".
	Details string
	// Port is the primary port, 0 if not applicable.
	Port int
}

// Describable is implemented by components that report a Description.
type Describable interface {
	Describe() Description
}

// Route is an HTTP route for the startup banner.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// RouteProvider is implemented by server components that list their routes.
type RouteProvider interface {
	Routes() []Route
}
