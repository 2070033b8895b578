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

package pipeline

import (
	"path"
	"strings"
)

// normalizePath implements the path security gate: backslashes fold to
// forward slashes, duplicate slashes collapse, and
// "." / ".." segments are resolved against webRoot. ok is false if the
// result would escape webRoot.
func normalizePath(webRoot, requestPath string) (full string, ok bool) {
	clean := strings.ReplaceAll(requestPath, "\\", "/")

	for strings.Contains(clean, "//") {
		clean = strings.ReplaceAll(clean, "//", "/")
	}

	joined := path.Join(webRoot, clean)

	root := strings.TrimSuffix(path.Clean(webRoot), "/")
	if root == "" {
		root = "/"
	}

	if joined != root && !strings.HasPrefix(joined, root+"/") {
		return "", false
	}

	return joined, true
}

// matchesAny reports whether name (the request path's final element)
// matches any of patterns, case-insensitive wildcard globs.
func matchesAny(patterns []string, name string) bool {
	lowered := strings.ToLower(path.Base(name))

	for _, p := range patterns {
		if ok, _ := path.Match(strings.ToLower(p), lowered); ok {
			return true
		}
	}

	return false
}

// allowedByLists applies the whitelist-then-blocklist short-circuit rule:
// a whitelist match always allows; otherwise a blocklist match denies;
// otherwise (no lists, or no match in either) the request is allowed.
func allowedByLists(whitelist, blocklist []string, name string) bool {
	if len(whitelist) > 0 && matchesAny(whitelist, name) {
		return true
	}
	if len(blocklist) > 0 && matchesAny(blocklist, name) {
		return false
	}
	return true
}
