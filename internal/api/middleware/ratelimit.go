// SPDX-License-Identifier: MIT

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit allows each client IP limit requests per sliding window.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimited(window)),
	)
}

// rateLimited answers 429 in the same JSON shape as every other API error.
func rateLimited(window time.Duration) http.HandlerFunc {
	retry := strconv.Itoa(int(math.Ceil(window.Seconds())))
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", retry)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate_limited","detail":"too many requests, retry later"}` + "\n"))
	}
}
