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

// Package store declares the configuration store boundary, treating the
// on-disk store and its schema migrations as an external
// collaborator; this package only owns the interface a Manager needs plus
// one reference implementation (sqlstore) so the rest of edged has
// something concrete to build against.
package store

import (
	"context"

	"github.com/nabbar/edged/config/domain"
)

// Store is the persistence boundary for the live configuration: a
// relational store with tables server_settings, sites,
// bindings, request_handlers and proxy_processors, plus a schema-version
// number and an append-only migration sequence (current head >= 4).
type Store interface {
	// Load reads the full configuration snapshot.
	Load(ctx context.Context) (domain.Configuration, error)

	// SchemaVersion returns the current migration head applied to the
	// store.
	SchemaVersion(ctx context.Context) (int, error)

	// UpdateAdminPortalTLS persists regenerated self-signed material for
	// the admin portal.
	UpdateAdminPortalTLS(ctx context.Context, certPath, keyPath string) error

	// UpdateSiteTLS persists regenerated self-signed material for a
	// regular site by id.
	UpdateSiteTLS(ctx context.Context, siteID uint32, certPath, keyPath string) error

	// UpdateAdminPasswordHash persists a newly rotated admin-portal
	// password hash (see "edged --reset-admin-password").
	UpdateAdminPasswordHash(ctx context.Context, hash string) error
}
