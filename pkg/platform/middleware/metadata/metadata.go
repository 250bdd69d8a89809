// Package metadata captures caller metadata (IP, User-Agent, a short client
// summary) into the request context.
package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"certledger/pkg/requestcontext"
)

// ClientMetadata extracts the client IP and User-Agent from the request and
// stores them, plus a parsed client summary, in the request context.
// Apply it early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), userAgent)
		ctx = requestcontext.WithClient(ctx, Summarize(userAgent))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Summarize reduces a User-Agent to "Browser Version / OS", "bot: Name", or
// "" when it carries nothing useful.
func Summarize(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	if ua.Bot() {
		return "bot: " + name
	}
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	browser := strings.TrimSpace(name + " " + version)
	os := ua.OSInfo().Name
	switch {
	case browser == "" && os == "":
		return ""
	case os == "":
		return browser
	case browser == "":
		return os
	}
	return browser + " / " + os
}

// ClientIPFromRequest extracts the real client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For is "client, proxy1, proxy2"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port"
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
