package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxLoggedBody = 2048

// Logger returns a middleware that logs HTTP requests. Bodies of non-GET
// requests are logged except under the path prefixes in redact, which carry
// patient data or credentials. Redacted requests are logged by route template
// without query string or body.
func Logger(redact ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		method := c.Request.Method

		prefix, redacted := matchPrefix(path, redact)

		// Read request body
		var requestBody []byte
		if !redacted && method != "GET" && c.Request.Body != nil {
			requestBody, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxLoggedBody))
			c.Request.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(requestBody), c.Request.Body), c.Request.Body}
		}

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		switch {
		case redacted && c.FullPath() != "":
			path = c.FullPath()
		case redacted:
			path = prefix + "/*"
		case raw != "":
			path = path + "?" + raw
		}

		event := log.Info()
		msg := "Request processed"
		switch {
		case statusCode >= 500:
			event, msg = log.Error(), "Server error"
		case statusCode >= 400:
			event, msg = log.Warn(), "Client error"
		}

		event = event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", statusCode).
			Dur("duration", latency).
			Str("user_agent", c.Request.UserAgent())

		if len(requestBody) > 0 {
			event = event.Str("request", string(requestBody))
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg(msg)
	}
}

// matchPrefix reports the first prefix that path equals or lies under.
func matchPrefix(path string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return p, true
		}
	}
	return "", false
}
