package testutil

import (
	"os"
	"strings"
	"testing"
)

// RequireTestEnvironment fails the test unless GO_ENV=test. Helpers that open or replace
// the global database call it first so a suite can never run against a real one.
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	if env := os.Getenv("GO_ENV"); env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: tests must run with GO_ENV=test, got GO_ENV=%q", env)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" && !LooksLikeTestDatabase(url) {
		t.Fatalf("SAFETY CHECK FAILED: DATABASE_URL does not point at a test database: %s", MaskDatabaseURL(url))
	}
}

// MustSetTestEnvironment sets GO_ENV=test for the rest of the test
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()
	t.Setenv("GO_ENV", "test")
}

// LooksLikeTestDatabase reports whether a database URL names a test or in-memory database
func LooksLikeTestDatabase(url string) bool {
	if url == ":memory:" || strings.Contains(url, "mode=memory") {
		return true
	}
	name := url
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.HasSuffix(name, "_test") || strings.HasSuffix(name, "test.db")
}

// MaskDatabaseURL hides the credentials of a database URL for log output
func MaskDatabaseURL(url string) string {
	if url == "" {
		return "(not set)"
	}
	scheme, rest, found := strings.Cut(url, "://")
	if !found {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	return scheme + "://" + rest
}
