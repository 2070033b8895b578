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

package acme

import "github.com/nabbar/edged/errors"

const (
	ErrorCacheDir errors.CodeError = iota + errors.MinPkgAcme
	ErrorAccountKey
	ErrorRegister
	ErrorNoChallenge
	ErrorSelfSignedKey
	ErrorNoCert
)

func init() {
	errors.RegisterIdFctMessage(ErrorCacheDir, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case ErrorCacheDir:
		return "cannot create acme cache directory"
	case ErrorAccountKey:
		return "cannot load or create acme account key"
	case ErrorRegister:
		return "acme account registration failed"
	case ErrorNoChallenge:
		return "no supported challenge type offered by the ACME server"
	case ErrorSelfSignedKey:
		return "self-signed certificate has an unexpected private key type"
	case ErrorNoCert:
		return "no certificate available for requested server name"
	}

	return ""
}
