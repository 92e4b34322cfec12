package observability

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PrometheusHandler adapts the exporter's scrape handler to a Gin route. A
// nil handler means telemetry was never initialized; scrapes get a 503
// rather than an empty exposition.
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "metrics exporter not configured",
			})
			return
		}
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
