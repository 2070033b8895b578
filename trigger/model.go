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

package trigger

import (
	"context"
	"sync"
)

// token pairs a context with the cancel func that fires it, so Fire can
// replace an entry atomically under the registry lock.
type token struct {
	ctx context.Context
	cnl context.CancelFunc
}

type registry struct {
	mu sync.Mutex
	m  sync.Map // name (string) -> *token
}

func newRegistry() *registry {
	return &registry{}
}

func newToken() *token {
	ctx, cnl := context.WithCancel(context.Background())
	return &token{ctx: ctx, cnl: cnl}
}

func (r *registry) GetOrCreate(name string) context.Context {
	if v, ok := r.m.Load(name); ok {
		return v.(*token).ctx
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.m.Load(name); ok {
		return v.(*token).ctx
	}

	t := newToken()
	r.m.Store(name, t)
	return t.ctx
}

func (r *registry) Subscribe(name string) context.Context {
	return r.GetOrCreate(name)
}

func (r *registry) Fire(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.m.Load(name); ok {
		v.(*token).cnl()
	}

	r.m.Store(name, newToken())
}

func (r *registry) Names() []string {
	var out []string
	r.m.Range(func(key, _ any) bool {
		out = append(out, key.(string))
		return true
	})
	return out
}
