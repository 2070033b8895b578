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

// Package siteindex builds the fast binding -> sites and
// (binding, hostname) -> site lookup tables. The index is built once
// at running-state construction and is immutable afterward.
package siteindex

import (
	"strings"

	"github.com/nabbar/edged/config/domain"
)

// Index is an immutable binding/site lookup table.
type Index interface {
	// SitesForBinding returns every enabled site referenced by binding.
	SitesForBinding(bindingID uint32) []domain.Site

	// ResolveSite finds the site matching hostname (case-insensitive)
	// within binding. Falls back to a default/wildcard site ("*" in its
	// hostname list) if no site hostname matches exactly. Returns
	// (domain.Site{}, false) if nothing matches.
	ResolveSite(bindingID uint32, hostname string) (domain.Site, bool)
}

type index struct {
	byBinding map[uint32][]domain.Site
	byHost    map[uint32]map[string]domain.Site
	defaults  map[uint32]domain.Site
	hasDefault map[uint32]bool
}

// Build constructs an Index from cfg. Each binding's enabled sites are
// available through the returned Index's SitesForBinding; cfg itself is
// not modified.
func Build(cfg domain.Configuration) Index {
	idx := &index{
		byBinding:  make(map[uint32][]domain.Site),
		byHost:     make(map[uint32]map[string]domain.Site),
		defaults:   make(map[uint32]domain.Site),
		hasDefault: make(map[uint32]bool),
	}

	sitesByBinding := make(map[uint32][]domain.Site)
	for _, s := range cfg.Sites {
		if !s.Enabled {
			continue
		}
		for _, bid := range s.BindingIDs {
			sitesByBinding[bid] = append(sitesByBinding[bid], s)
		}
	}

	for _, b := range cfg.Bindings {
		hostMap := make(map[string]domain.Site)

		for _, s := range sitesByBinding[b.ID] {
			idx.byBinding[b.ID] = append(idx.byBinding[b.ID], s)

			if s.IsWildcardDefault() {
				idx.defaults[b.ID] = s
				idx.hasDefault[b.ID] = true
			}

			for _, h := range s.LowercasedHostnames() {
				if h == "*" {
					continue
				}
				hostMap[h] = s
			}
		}

		idx.byHost[b.ID] = hostMap
	}

	return idx
}

func (i *index) SitesForBinding(bindingID uint32) []domain.Site {
	return i.byBinding[bindingID]
}

func (i *index) ResolveSite(bindingID uint32, hostname string) (domain.Site, bool) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))

	if hostMap, ok := i.byHost[bindingID]; ok {
		if s, ok := hostMap[hostname]; ok {
			return s, true
		}
	}

	if i.hasDefault[bindingID] {
		return i.defaults[bindingID], true
	}

	return domain.Site{}, false
}
