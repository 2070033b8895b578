/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package acme implements the ACME HTTP-01 challenge store, the shared
// ACME manager and the unified certificate resolver. The
// account/order/challenge shape is grounded on
// cuemby-warren/pkg/ingress/acme.go; the exact domain-eligibility and
// self-signed persistence rules are grounded on
// original_source/src/http/http_tls.rs.
package acme

import (
	"strings"
	"sync"
	"time"
)

// ChallengeTTL is the lifetime of a stored HTTP-01 key authorization
//.
const ChallengeTTL = time.Hour

const wellKnownPrefix = "/.well-known/acme-challenge/"

// ChallengeStore is a concurrent token -> key-authorization map with TTL
// expiry.
type ChallengeStore interface {
	// Add records key-authorization keyAuth for token.
	Add(token, keyAuth string)

	// Remove deletes token's entry, if any.
	Remove(token string)

	// TryHandle implements the fast path: strip the well-known prefix,
	// reject empty or slash-containing suffixes, look up, check expiry.
	TryHandle(path string) (keyAuth string, ok bool)
}

type entry struct {
	keyAuth   string
	createdAt time.Time
}

type challengeStore struct {
	mu sync.RWMutex
	m  map[string]entry
}

// NewChallengeStore builds an empty ChallengeStore.
func NewChallengeStore() ChallengeStore {
	return &challengeStore{m: make(map[string]entry)}
}

func (c *challengeStore) Add(token, keyAuth string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[token] = entry{keyAuth: keyAuth, createdAt: time.Now()}
}

func (c *challengeStore) Remove(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, token)
}

func (c *challengeStore) TryHandle(path string) (string, bool) {
	token, ok := strings.CutPrefix(path, wellKnownPrefix)
	if !ok || token == "" || strings.Contains(token, "/") {
		return "", false
	}

	c.mu.RLock()
	e, ok := c.m[token]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}

	if time.Since(e.createdAt) > ChallengeTTL {
		c.Remove(token)
		return "", false
	}

	return e.keyAuth, true
}
