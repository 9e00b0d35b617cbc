package buildinfo

import (
	"strings"
	"testing"
)

func TestSummaryIncludesInjectedMetadata(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldVersion, oldCommit, oldDate })

	Version, Commit, Date = "v1.2.0", "abc123", "2026-10-01"
	if got := Summary(); got != "v1.2.0 (abc123 2026-10-01)" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := String("wikitikz-render"); got != "wikitikz-render v1.2.0 (abc123 2026-10-01)" {
		t.Fatalf("unexpected string %q", got)
	}

	Version = ""
	if got := Summary(); !strings.HasPrefix(got, "dev ") {
		t.Fatalf("expected dev fallback, got %q", got)
	}
}
