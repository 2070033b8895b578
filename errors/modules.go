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

package errors

// MinPkgXxx reserve a disjoint 50-wide CodeError range per package so two
// packages' iota blocks never collide. Packages that register their own
// codes do so in a package-level error.go, via RegisterIdFctMessage; the
// trigger, siteindex, portmanager, lbregistry and config store ranges are
// reserved but hold no registered codes. Unused teacher ranges
// (certificate, database, router, semaphore, ...) were dropped along with
// the packages that owned them.
const (
	MinPkgHttpServer     = 1300
	MinPkgTrigger        = 3500
	MinPkgSiteIndex      = 3550
	MinPkgPortManager    = 3600
	MinPkgAcme           = 3650
	MinPkgLBRegistry     = 3700
	MinPkgProxyProcessor = 3750
	MinPkgCGI            = 3800
	MinPkgPipeline       = 3850
	MinPkgRuntime        = 3900
	MinPkgConfigStore    = 3950

	MinAvailable = 4000
)
