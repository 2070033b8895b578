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

// Package lbregistry lazily creates and holds one load balancer per
// processor id, generalizing the
// map[string]int cursor + sync.Mutex shape of
// cuemby-warren/pkg/ingress/loadbalancer.go from "healthy container" to
// "configured upstream URL".
package lbregistry

import "sync"

// Balancer hands out the next upstream for a single processor.
type Balancer interface {
	// Next returns the next upstream, or ("", false) if the upstream list
	// is empty.
	Next() (string, bool)
}

// Registry lazily creates a Balancer per processor id.
type Registry interface {
	// Ensure returns the existing balancer for id, or builds one via
	// factory and stores it.
	Ensure(id uint32, factory func() Balancer) Balancer
}

type registry struct {
	mu   sync.Mutex
	pool map[uint32]Balancer
}

// New builds an empty Registry.
func New() Registry {
	return &registry{pool: make(map[uint32]Balancer)}
}

func (r *registry) Ensure(id uint32, factory func() Balancer) Balancer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.pool[id]; ok {
		return b
	}

	b := factory()
	r.pool[id] = b
	return b
}

// roundRobin is the only implemented strategy.
type roundRobin struct {
	mu      sync.Mutex
	servers []string
	cursor  int
}

// NewRoundRobin builds a Balancer cycling through servers in order.
func NewRoundRobin(servers []string) Balancer {
	return &roundRobin{servers: servers}
}

func (r *roundRobin) Next() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.servers) == 0 {
		return "", false
	}

	s := r.servers[r.cursor%len(r.servers)]
	r.cursor = (r.cursor + 1) % len(r.servers)
	return s, true
}
