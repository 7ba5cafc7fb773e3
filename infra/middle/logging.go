package middle

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/opensearch"
)

const maxLoggedBody = 4 << 10

// RequestLoggingMiddleware logs one line per request. Failed payment calls
// also log the sanitized request body.
func RequestLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var requestBody []byte
			if isPaymentEndpoint(r.URL.Path) && r.Body != nil {
				requestBody, _ = io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(requestBody), r.Body))
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			logCtx := logger.LogContext{
				RequestID: middleware.GetReqID(r.Context()),
				Fields: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      status,
					"duration_ms": time.Since(start).Milliseconds(),
					"client_ip":   GetClientIP(r),
					"bytes":       ww.BytesWritten(),
				},
			}

			switch {
			case status >= http.StatusInternalServerError:
				if len(requestBody) > 0 {
					logCtx.Fields["request"] = opensearch.SanitizeForLog(string(requestBody))
				}
				logger.Warn("request failed", logCtx)
			case status >= http.StatusBadRequest && len(requestBody) > 0:
				logCtx.Fields["request"] = opensearch.SanitizeForLog(string(requestBody))
				logger.Info("request rejected", logCtx)
			default:
				logger.Debug("request served", logCtx)
			}
		})
	}
}

func isPaymentEndpoint(path string) bool {
	return strings.HasPrefix(path, "/v1/payments")
}
