// Package middleware provides http.RoundTripper middleware for restq
// services, applied by wrapping the transport of the http.Client passed in
// the service Config.
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain wraps base with the given middleware, first listed outermost.
// A nil base defaults to http.DefaultTransport.
func Chain(base http.RoundTripper, mw ...func(http.RoundTripper) http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mw) - 1; i >= 0; i-- {
		base = mw[i](base)
	}
	return base
}

// Logging creates a middleware that logs each request using slog, including
// duration and outcome.
func Logging(logger *slog.Logger) func(http.RoundTripper) http.RoundTripper {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()

			logger.InfoContext(req.Context(), "request started",
				slog.String("method", req.Method),
				slog.String("url", req.URL.String()),
			)

			resp, err := next.RoundTrip(req)
			duration := time.Since(start)

			if err != nil {
				logger.ErrorContext(req.Context(), "request failed",
					slog.String("method", req.Method),
					slog.String("url", req.URL.String()),
					slog.Duration("duration", duration),
					slog.Any("error", err),
				)
			} else {
				logger.InfoContext(req.Context(), "request completed",
					slog.String("method", req.Method),
					slog.String("url", req.URL.String()),
					slog.Duration("duration", duration),
					slog.Int("status", resp.StatusCode),
				)
			}

			return resp, err
		})
	}
}

// Headers creates a middleware that sets default header fields on every
// request that does not already set them.
func Headers(fields map[string]string) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			// RoundTrippers must not mutate the caller's request.
			req = req.Clone(req.Context())
			for k, v := range fields {
				if req.Header.Get(k) == "" {
					req.Header.Set(k, v)
				}
			}
			return next.RoundTrip(req)
		})
	}
}
