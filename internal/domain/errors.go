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

package domain

import "errors"

// Domain errors returned by repositories. Repositories return these
// directly rather than wrapping driver-specific not-found sentinels,
// so the grant engine never imports a storage package.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrClientNotFound   = errors.New("client not found")
	ErrClientAlreadyExists = errors.New("client already exists")
	ErrCodeNotFound     = errors.New("authorization code not found")
	ErrTokenNotFound    = errors.New("token not found")
)
