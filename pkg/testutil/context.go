package testutil

import (
	"context"
	"time"

	"certledger/pkg/requestcontext"
)

// RequestContext returns a context carrying the values the HTTP middleware
// chain would set, for service tests that bypass it.
func RequestContext(requestID, client string, now time.Time) context.Context {
	ctx := requestcontext.WithRequestID(context.Background(), requestID)
	ctx = requestcontext.WithClient(ctx, client)
	return requestcontext.WithTime(ctx, now)
}
