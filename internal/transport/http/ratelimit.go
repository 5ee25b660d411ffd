// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter buckets requests by OAuth2 client_id rather than by bare
// IP, so one leaked or guessed client_id is bounded to a single budget
// no matter how many source addresses it is tried from. Requests that
// carry no client_id (health checks, malformed requests) fall back to
// remote IP.
type RateLimiter struct {
	limiters        map[string]*rate.Limiter
	mu              sync.RWMutex
	rps             rate.Limit
	burst           int
	cleanupInterval time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters:        make(map[string]*rate.Limiter),
		rps:             rate.Limit(rps),
		burst:           burst,
		cleanupInterval: 10 * time.Minute,
	}

	go rl.cleanup()

	return rl
}

// GetLimiter returns the limiter for a rate-limit key, creating one on
// first use.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[key] = limiter
	}

	return limiter
}

// cleanup periodically drops every tracked limiter so that drive-by
// client_ids and IPs don't accumulate in memory forever; a key in use
// again after a sweep just gets a fresh limiter on its next request.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	for range ticker.C {
		rl.mu.Lock()
		rl.limiters = make(map[string]*rate.Limiter)
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware creates a middleware that throttles by
// rateLimitKey.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.GetLimiter(rateLimitKey(r))
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey identifies the caller a request should be throttled as:
// the OAuth2 client_id when the request names one (form field, query
// parameter, or HTTP Basic username — the same three places
// clientCredentialsFromRequest looks), else the remote IP.
func rateLimitKey(r *http.Request) string {
	if user, _, ok := r.BasicAuth(); ok && user != "" {
		return "client:" + user
	}

	_ = r.ParseForm()
	if clientID := r.Form.Get("client_id"); clientID != "" {
		return "client:" + clientID
	}

	return "ip:" + getIPAddress(r)
}
