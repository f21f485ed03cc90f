package middleware

import (
	"strconv"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/metrics"
	"github.com/gin-gonic/gin"
)

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeLabel(c)
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		metrics.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	}
}

// routeLabel is the route template, plus "?name" when a single task is
// addressed, so list and lookup are separate series. Name values never become
// labels.
func routeLabel(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return "unknown"
	}
	if c.Request.URL.Query().Has("name") {
		route += "?name"
	}
	return route
}
