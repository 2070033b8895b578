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

// Package errors implements a small CodeError taxonomy: each package
// registers a block of numeric codes in its own error.go (iota offset by a
// MinPkgXxx reservation, see modules.go) and a message function, then
// builds rich errors off those codes through CodeError.Error. The surface
// is deliberately narrow: code registration, parent-chaining (Add/
// HasParent) and Error() formatting -- no JSON/HTTP-status encoding, since
// nothing here serves an HTTP response body.
package errors

import (
	"fmt"
	"strings"
	"sync"
)

// CodeError is a numeric error classification, reserved per package via
// the MinPkgXxx constants in modules.go.
type CodeError uint16

// Message renders a CodeError into a human-readable string. Each package
// registers one via RegisterIdFctMessage for the codes it owns.
type Message func(code CodeError) string

var (
	msgMu  sync.RWMutex
	msgFct = make(map[CodeError]Message)
)

// RegisterIdFctMessage associates fct with every code a package declares,
// keyed by the first code in its iota block (id); fct is expected to
// switch on the full block. Called once from each package's init().
func RegisterIdFctMessage(id CodeError, fct Message) {
	msgMu.Lock()
	defer msgMu.Unlock()
	msgFct[id] = fct
}

// messageFor looks up the message function registered for code's owning
// package by scanning backward to the nearest registered block start.
func messageFor(code CodeError) string {
	msgMu.RLock()
	defer msgMu.RUnlock()

	if fct, ok := msgFct[code]; ok {
		if m := fct(code); m != "" {
			return m
		}
	}

	var best CodeError
	var found bool
	for id := range msgFct {
		if id <= code && (!found || id > best) {
			best, found = id, true
		}
	}
	if found {
		if m := msgFct[best](code); m != "" {
			return m
		}
	}

	return "unknown error"
}

// Error is a CodeError value bound to a message and, optionally, parent
// errors collected via Add.
type Error interface {
	error

	// Code returns the numeric CodeError this error was built from.
	Code() CodeError

	// Add appends non-nil parent errors to this error's chain.
	Add(parent ...error)

	// HasParent reports whether any parent error has been added.
	HasParent() bool
}

type ers struct {
	code CodeError
	msg  string
	p    []error
}

// Error formats the code, its message, and (if any) every parent error's
// message, joined with "; ".
func (e *ers) Error() string {
	if len(e.p) == 0 {
		return fmt.Sprintf("[%d] %s", e.code, e.msg)
	}

	parts := make([]string, 0, len(e.p)+1)
	parts = append(parts, fmt.Sprintf("[%d] %s", e.code, e.msg))
	for _, p := range e.p {
		parts = append(parts, p.Error())
	}
	return strings.Join(parts, "; ")
}

func (e *ers) Code() CodeError {
	return e.code
}

func (e *ers) Add(parent ...error) {
	for _, p := range parent {
		if p != nil {
			e.p = append(e.p, p)
		}
	}
}

func (e *ers) HasParent() bool {
	return len(e.p) > 0
}

// Error builds an Error from the CodeError c, looking up its registered
// message and attaching any given non-nil parents.
func (c CodeError) Error(parent ...error) Error {
	e := &ers{code: c, msg: messageFor(c)}
	e.Add(parent...)
	return e
}
