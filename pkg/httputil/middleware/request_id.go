package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/rangira/stacklens/pkg/httputil"
)

const RequestIDHeader = "X-Request-Id"

// RequestID middleware assigns a unique id to every request, exposing it
// both on the response header and in the request context for the logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
		if !ok || reqID == "" {
			reqID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		w.Header().Set(RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
