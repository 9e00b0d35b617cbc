package transform_test

import (
	"testing"

	"github.com/euforicio/wikitikz/internal/renderer/transform"
)

func TestExtractFences(t *testing.T) {
	t.Parallel()

	src := []byte("# Title\n\n" +
		"```tikz\n\\draw (0,0) -- (1,1);\n```\n\n" +
		"```go\nfmt.Println()\n```\n\n" +
		"```TikZ\n\\fill (0,0) circle (1);\n```\n\n" +
		"```tikz\n```\n")

	fences := transform.ExtractFences(src, "tikz")
	if len(fences) != 3 {
		t.Fatalf("expected 3 fences, got %d: %+v", len(fences), fences)
	}
	if fences[0].Source != "\\draw (0,0) -- (1,1);\n" {
		t.Fatalf("unexpected first fence: %q", fences[0].Source)
	}
	if fences[0].Line != 4 {
		t.Fatalf("expected first fence at line 4, got %d", fences[0].Line)
	}
	if fences[1].Source != "\\fill (0,0) circle (1);\n" {
		t.Fatalf("unexpected second fence: %q", fences[1].Source)
	}
	if fences[2].Source != "" || fences[2].Line != 0 {
		t.Fatalf("expected empty fence without a line, got %+v", fences[2])
	}
}

func TestExtractFencesNoMatch(t *testing.T) {
	t.Parallel()

	if fences := transform.ExtractFences([]byte("plain text\n"), "tikz"); len(fences) != 0 {
		t.Fatalf("expected no fences, got %+v", fences)
	}
}
