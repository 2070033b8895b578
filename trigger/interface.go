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

// Package trigger implements a process-wide registry of named broadcast
// cancellation signals. The accept loops and the ACME polling task
// subscribe to stop_services (the ACME task also to shutdown), and the
// runtime reload watcher observes reload_configuration and shutdown,
// instead of holding a direct reference to whatever fires them. CGI
// supervisors subscribe to no trigger: they are stopped when the running
// state that owns them is torn down.
package trigger

import "context"

// Well-known trigger names the core requires.
const (
	Shutdown            = "shutdown"
	StopServices         = "stop_services"
	ReloadConfiguration = "reload_configuration"
)

// Registry is a process-wide mapping from trigger name to a broadcast
// cancellation token. It is safe for concurrent use.
type Registry interface {
	// GetOrCreate returns the current live token for name, creating one if
	// this is the first reference to name.
	GetOrCreate(name string) context.Context

	// Subscribe clones the current token for name. Equivalent to
	// GetOrCreate: a subscriber always observes whatever token is live at
	// call time.
	Subscribe(name string) context.Context

	// Fire cancels the current token for name and installs a fresh,
	// non-cancelled token for subsequent subscribers. Observers that cloned
	// the token before Fire see it cancelled; observers that subscribe
	// after Fire see a live token until the next Fire.
	Fire(name string)

	// Names returns the set of trigger names currently registered.
	Names() []string
}

// New builds an empty Registry.
func New() Registry {
	return newRegistry()
}
