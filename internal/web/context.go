package web

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/stmtnorm/internal/core"
	"github.com/JonMunkholm/stmtnorm/internal/logging"
)

// runContext derives the context of an HTTP-triggered run. The run is not
// cancelled when the client disconnects, so a started batch always finishes
// its current files. The chi request ID becomes the run ID.
func runContext(r *http.Request) context.Context {
	ctx := context.WithoutCancel(r.Context())
	ctx = core.ContextWithTrigger(ctx, core.TriggerHTTP)
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		ctx = logging.ContextWithRunID(ctx, reqID)
	}
	return ctx
}

// clientIP strips the port from r.RemoteAddr when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
