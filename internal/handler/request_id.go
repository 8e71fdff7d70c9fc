package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const reqIDKey ctxKey = 0

// InvocationIDHeader is set by the Functions host on every invocation it forwards
const InvocationIDHeader = "X-Azure-Functions-InvocationId"

// AddRequestID is a handler that tags each request with an id, reusing the invocation id when present
func AddRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(InvocationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), reqIDKey, id)))
	})
}

// GetReqID returns the request id stored in the context, or an empty string
func GetReqID(ctx context.Context) string {
	if id, ok := ctx.Value(reqIDKey).(string); ok {
		return id
	}

	return ""
}
