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

package grant

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/lanternauth/lantern/internal/domain"
)

// verifyPKCE checks verifier against challenge per the transform
// named by method (RFC 7636 §4.6). An unrecognized method always
// fails closed.
func verifyPKCE(challenge, method, verifier string) bool {
	switch method {
	case domain.PKCEMethodPlain, "":
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case domain.PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
	default:
		return false
	}
}
