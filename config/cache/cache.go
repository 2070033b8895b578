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

// Package cache holds a read-only configuration snapshot behind a
// sync.RWMutex. Readers share the lock; a writer waits for in-flight
// readers to release, and while it waits new readers block behind it.
package cache

import (
	"sync"

	"github.com/nabbar/edged/config/domain"
)

// Cache is a read-only configuration snapshot with atomic swap on reload.
type Cache interface {
	// GetConfiguration returns the current snapshot. Cheap: the returned
	// value is a copy of the header struct, but slice fields are shared
	// and must not be mutated by callers.
	GetConfiguration() domain.Configuration

	// SetConfiguration atomically replaces the snapshot.
	SetConfiguration(cfg domain.Configuration)
}

type cache struct {
	mu  sync.RWMutex
	cfg domain.Configuration
}

// New builds a Cache seeded with cfg.
func New(cfg domain.Configuration) Cache {
	return &cache{cfg: cfg}
}

func (c *cache) GetConfiguration() domain.Configuration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *cache) SetConfiguration(cfg domain.Configuration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}
