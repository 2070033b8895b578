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

// Package pool is a thread-safe error collector: runtime.Manager uses one to
// gather every binding's startup failure and log them joined once, instead
// of aborting on the first error.
package pool

import (
	"errors"
	"sync"
)

// Pool collects errors from concurrent producers and joins them into one.
type Pool interface {
	// Add records err if it is non-nil. Safe for concurrent use.
	Add(err error)

	// Error returns nil if nothing was ever added, the sole error if exactly
	// one was added, or a joined error (errors.Join) otherwise.
	Error() error

	// Len reports how many non-nil errors have been added.
	Len() int
}

type pool struct {
	mu  sync.Mutex
	lst []error
}

// New returns an empty Pool.
func New() Pool {
	return &pool{}
}

func (p *pool) Add(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lst = append(p.lst, err)
}

func (p *pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lst)
}

func (p *pool) Error() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch len(p.lst) {
	case 0:
		return nil
	case 1:
		return p.lst[0]
	default:
		return errors.Join(p.lst...)
	}
}
