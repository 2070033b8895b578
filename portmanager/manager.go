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

// Package portmanager allocates TCP ports from a bounded range to named
// services, e.g. the CGI supervisor's PHP-CGI
// workers. The free/allocated state is tracked in a bitset
// (github.com/bits-and-blooms/bitset, a real teacher dependency with no
// other consumer in this repo).
package portmanager

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Manager is a process-wide port allocator over [Low, High].
type Manager interface {
	// Allocate returns the first free port in range, recording ownership
	// under serviceID. ok is false iff the range is exhausted.
	Allocate(serviceID string) (port uint16, ok bool)

	// Release frees port. A no-op if the port was not allocated.
	Release(port uint16)

	// ReleaseAllForService frees every port owned by serviceID, returning
	// the freed ports.
	ReleaseAllForService(serviceID string) []uint16

	// AvailableCount returns the number of free ports remaining.
	AvailableCount() int
}

type manager struct {
	mu       sync.Mutex
	low      uint16
	high     uint16
	used     *bitset.BitSet
	owner    map[uint16]string
}

// New builds a Manager over the inclusive range [low, high]. If low > high
// the default range 9000-10000 is used.
func New(low, high uint16) Manager {
	if low > high {
		low, high = 9000, 10000
	}

	size := uint(high-low) + 1
	return &manager{
		low:   low,
		high:  high,
		used:  bitset.New(size),
		owner: make(map[uint16]string),
	}
}

func (m *manager) Allocate(serviceID string) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := uint(0); i < m.used.Len(); i++ {
		if !m.used.Test(i) {
			m.used.Set(i)
			port := m.low + uint16(i)
			m.owner[port] = serviceID
			return port, true
		}
	}

	return 0, false
}

func (m *manager) Release(port uint16) {
	if port < m.low || port > m.high {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := uint(port - m.low)
	m.used.Clear(i)
	delete(m.owner, port)
}

func (m *manager) ReleaseAllForService(serviceID string) []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var freed []uint16
	for port, owner := range m.owner {
		if owner != serviceID {
			continue
		}
		i := uint(port - m.low)
		m.used.Clear(i)
		delete(m.owner, port)
		freed = append(freed, port)
	}

	return freed
}

func (m *manager) AvailableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return int(m.used.Len() - m.used.Count())
}
