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

// Package cache provides the key/value TTL port used to accelerate
// token introspection.
package cache

import "context"

// Cache is a key/value store with per-key TTL. Implementations must
// treat a connectivity failure as a cache miss rather than propagate
// an error up through Get — the introspection service always has a
// correct, if slower, fallback to the database.
type Cache interface {
	// Get returns the stored value and true if key is present and
	// unexpired. A backend failure returns ("", false) rather than an
	// error.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores value under key with the given TTL. A backend
	// failure is logged by the implementation and swallowed.
	Set(ctx context.Context, key string, value string, ttlSeconds int64)

	// Delete removes key, if present. A backend failure is logged by
	// the implementation and swallowed.
	Delete(ctx context.Context, key string)
}
