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

package proxyprocessor

import (
	"strings"
	"unicode/utf8"

	"github.com/nabbar/edged/config/domain"
)

// applyURLRewrites runs originalURL through every configured rewrite rule in
// order, matching original_source's proxy processor rewrite semantics.
func applyURLRewrites(rules []domain.URLRewrite, originalURL string) string {
	url := originalURL

	for _, rule := range rules {
		if rule.CaseInsensitive {
			url = replaceCaseInsensitive(url, rule.From, rule.To)
		} else {
			url = strings.ReplaceAll(url, rule.From, rule.To)
		}
	}

	return url
}

// replaceCaseInsensitive replaces every case-insensitive, non-overlapping
// occurrence of from in s with to, scanning rune-by-rune so multi-byte UTF-8
// sequences are never split.
func replaceCaseInsensitive(s, from, to string) string {
	if from == "" {
		return s
	}

	lowerS := strings.ToLower(s)
	lowerFrom := strings.ToLower(from)
	fromLen := len(from)

	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		if i+fromLen <= len(s) && lowerS[i:i+fromLen] == lowerFrom {
			b.WriteString(to)
			i += fromLen
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		b.WriteRune(r)
		i += size
	}

	return b.String()
}
