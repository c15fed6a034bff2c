package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseAccessLogLevel accepts the levels the access log may be written at.
func ParseAccessLogLevel(s string) (zapcore.Level, error) {
	switch s {
	case zapcore.DebugLevel.String():
		return zapcore.DebugLevel, nil
	case zapcore.InfoLevel.String():
		return zapcore.InfoLevel, nil
	default:
		return zapcore.InvalidLevel, fmt.Errorf("unsupported access log level: %q", s)
	}
}

// accessLogMiddleware writes one entry per request at the given level, and
// turns a panicking handler into a 500 response.
func accessLogMiddleware(logger *zap.Logger, level zapcore.Level) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic during handling of HTTP request",
						zap.String("request_id", middleware.GetReqID(r.Context())),
						zap.Any("recover_info", rec))
					if ww.Status() == 0 {
						http.Error(ww, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					}
				}

				if ce := logger.Check(level, "handled HTTP request"); ce != nil {
					ce.Write(
						zap.String("request_id", middleware.GetReqID(r.Context())),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("remote_address", r.RemoteAddr),
						zap.String("user_agent", r.UserAgent()),
						zap.Int("status", ww.Status()),
						zap.Duration("latency", time.Since(start)),
						zap.Int64("content_in_bytes", max(r.ContentLength, 0)),
						zap.Int("content_out_bytes", ww.BytesWritten()),
					)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
