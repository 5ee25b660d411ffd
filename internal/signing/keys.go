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

package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// Algorithm identifies the signing algorithm a keypair is used with.
// Only RS256 is supported; the type exists so a future algorithm
// addition does not change the Service constructor signature.
type Algorithm string

// AlgorithmRS256 is the only signing algorithm this server mints with.
// Asymmetric signing lets a resource server verify a token against
// the published public key without calling back into the
// authorization server.
const AlgorithmRS256 Algorithm = "RS256"

// LoadPrivateKeyPEM parses an RSA private key from PEM-encoded bytes,
// accepting both PKCS#1 and PKCS#8 encodings.
func LoadPrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in signing key material")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is not an RSA key")
	}
	return rsaKey, nil
}

// LoadPrivateKeyBase64 decodes a base64-encoded PEM document, for
// deployments that pass the key through a single-line environment
// variable.
func LoadPrivateKeyBase64(encoded string) (*rsa.PrivateKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64 signing key: %w", err)
	}
	return LoadPrivateKeyPEM(decoded)
}

// GenerateDevKey produces a fresh, unpersisted RSA-2048 keypair for
// local development and tests. The server's startup path does not call
// it: configuration requires a signing key.
func GenerateDevKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}
