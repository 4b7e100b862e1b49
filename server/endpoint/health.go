package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/nodeflow/observability"
)

// HealthChecker aggregates component health into a service report.
type HealthChecker func(ctx context.Context) *observability.ServiceHealth

// Health reports service health. A down service answers 503.
func Health(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh := checker(c.Request.Context())
		status := http.StatusOK
		if sh.Status == observability.HealthStatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"service":    sh.Service,
			"version":    sh.Version,
			"status":     sh.Status,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": sh.Components,
		})
	}
}

// Readiness answers 200 only when every component is up.
func Readiness(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh := checker(c.Request.Context())
		if !sh.IsUp() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "service": sh.Service})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": sh.Service})
	}
}

// Liveness confirms the process can serve HTTP.
func Liveness(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
