package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests that hit no registered route so scanners
// cannot grow the label set.
const unmatchedRoute = "unmatched"

// HTTPObserver receives one observation per finished request.
type HTTPObserver interface {
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Metrics records method, route template, status and latency for every
// request except those on skipPaths.
func Metrics(observer HTTPObserver, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
