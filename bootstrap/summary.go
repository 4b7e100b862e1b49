package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kbukum/nodeflow/component"
	"github.com/kbukum/nodeflow/observability"
)

// Summary prints the startup banner: components, routes and live health.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	out             io.Writer
}

// NewSummary creates a summary that writes to stdout.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version, out: os.Stdout}
}

// SetOutput redirects the banner.
func (s *Summary) SetOutput(w io.Writer) { s.out = w }

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// Display writes the banner for everything registered in registry.
func (s *Summary) Display(ctx context.Context, registry *component.Registry) {
	w := s.out
	version := s.version
	if version == "" {
		version = "dev"
	}
	fmt.Fprintf(w, "\n🚀 %s %s started in %.2fs\n\n", s.serviceName, version, s.startupDuration.Seconds())

	if registry == nil {
		fmt.Fprintf(w, "   └── No components registered\n\n")
		return
	}

	descriptions := registry.Describe()
	if len(descriptions) > 0 {
		fmt.Fprintf(w, "📦 Components\n")
		for i, d := range descriptions {
			details := d.Details
			if d.Port > 0 {
				details = fmt.Sprintf("%s (:%d)", details, d.Port)
			}
			fmt.Fprintf(w, "   %s %s [%s]: %s\n", branch(i, len(descriptions)), d.Name, d.Type, details)
		}
	} else {
		fmt.Fprintf(w, "   └── No components registered\n")
	}

	if routes := registry.Routes(); len(routes) > 0 {
		fmt.Fprintf(w, "\n🌐 Routes (%d)\n", len(routes))
		for i, r := range routes {
			fmt.Fprintf(w, "   %s %-7s %s → %s\n", branch(i, len(routes)), r.Method, r.Path, r.Handler)
		}
	}

	if results := registry.HealthAll(ctx); len(results) > 0 {
		up := 0
		fmt.Fprintf(w, "\n🏥 Health\n")
		for i, h := range results {
			msg := ""
			if h.Message != "" {
				msg = " (" + h.Message + ")"
			}
			if h.Status == observability.HealthStatusUp {
				up++
			}
			fmt.Fprintf(w, "   %s %s %s: %s%s\n", branch(i, len(results)), healthIcon(h.Status), h.Name, h.Status, msg)
		}
		if up == len(results) {
			fmt.Fprintf(w, "\n✅ All components up (%d/%d)\n", up, len(results))
		} else {
			fmt.Fprintf(w, "\n⚠️  Some components have issues (%d/%d up)\n", up, len(results))
		}
	}
	fmt.Fprintln(w)
}

func branch(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func healthIcon(status observability.HealthStatus) string {
	switch status {
	case observability.HealthStatusUp:
		return "✅"
	case observability.HealthStatusDegraded:
		return "⚠️"
	case observability.HealthStatusDown:
		return "❌"
	default:
		return "❓"
	}
}
