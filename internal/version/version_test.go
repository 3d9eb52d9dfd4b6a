package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldVersion, oldSHA, oldTime })

	if got, want := String(), "sort-station dev (git unknown, built unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	Version, GitSHA, BuildTime = "1.2.0", "abc1234", "2025-03-01T00:00:00Z"
	if got, want := String(), "sort-station 1.2.0 (git abc1234, built 2025-03-01T00:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
