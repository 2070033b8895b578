package pipeline

import "testing"

func TestNormalizePathCollapsesSlashesAndBackslashes(t *testing.T) {
	full, ok := normalizePath("/srv/www", "a\\\\b//c")
	if !ok {
		t.Fatalf("expected ok")
	}
	if full != "/srv/www/a/b/c" {
		t.Fatalf("full = %q", full)
	}
}

func TestNormalizePathRejectsEscape(t *testing.T) {
	if _, ok := normalizePath("/srv/www", "../../etc/passwd"); ok {
		t.Fatalf("expected escape to be rejected")
	}
}

func TestNormalizePathAllowsRoot(t *testing.T) {
	full, ok := normalizePath("/srv/www", "/")
	if !ok || full != "/srv/www" {
		t.Fatalf("full = %q ok = %v", full, ok)
	}
}

func TestMatchesAnyIsCaseInsensitive(t *testing.T) {
	if !matchesAny([]string{"*.PHP"}, "/index.php") {
		t.Fatalf("expected match")
	}
}

func TestAllowedByListsWhitelistWins(t *testing.T) {
	if !allowedByLists([]string{"*.php"}, []string{"*.php"}, "index.php") {
		t.Fatalf("whitelist should short-circuit blocklist")
	}
}

func TestAllowedByListsBlocklistDenies(t *testing.T) {
	if allowedByLists(nil, []string{"*.env"}, ".env") {
		t.Fatalf("expected blocklist to deny")
	}
}

func TestAllowedByListsDefaultAllow(t *testing.T) {
	if !allowedByLists(nil, nil, "index.html") {
		t.Fatalf("expected default allow")
	}
}
