package middleware

import (
	"net/http"
	"time"
)

// HTTPObserver принимает результаты обработки запросов
type HTTPObserver interface {
	ObserveHTTPRequest(method string, status int, duration time.Duration)
}

// MetricsMiddleware считает запросы и их длительность
func MetricsMiddleware(observer HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			observer.ObserveHTTPRequest(r.Method, wrapped.statusCode, time.Since(start))
		})
	}
}
