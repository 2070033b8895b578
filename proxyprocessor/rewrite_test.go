package proxyprocessor

import (
	"testing"

	"github.com/nabbar/edged/config/domain"
	"github.com/stretchr/testify/assert"
)

func TestApplyURLRewritesCaseSensitive(t *testing.T) {
	rules := []domain.URLRewrite{{From: "/old", To: "/new"}}
	assert.Equal(t, "http://up/new/path", applyURLRewrites(rules, "http://up/old/path"))
	assert.Equal(t, "http://up/OLD/path", applyURLRewrites(rules, "http://up/OLD/path"))
}

func TestApplyURLRewritesCaseInsensitive(t *testing.T) {
	rules := []domain.URLRewrite{{From: "/OLD", To: "/new", CaseInsensitive: true}}
	assert.Equal(t, "http://up/new/path", applyURLRewrites(rules, "http://up/old/path"))
}

func TestApplyURLRewritesChainsInOrder(t *testing.T) {
	rules := []domain.URLRewrite{
		{From: "/a", To: "/b"},
		{From: "/b", To: "/c"},
	}
	assert.Equal(t, "http://up/c", applyURLRewrites(rules, "http://up/a"))
}

func TestReplaceCaseInsensitiveHandlesUTF8(t *testing.T) {
	got := replaceCaseInsensitive("café-API", "api", "CAFE")
	assert.Equal(t, "café-CAFE", got)
}

func TestReplaceCaseInsensitiveEmptyFromIsNoop(t *testing.T) {
	assert.Equal(t, "unchanged", replaceCaseInsensitive("unchanged", "", "x"))
}
