// Package tikztest provides a fake TeX toolchain for tests that exercise the
// render pipeline without a TeX installation.
package tikztest

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/euforicio/wikitikz/internal/tikz"
	"github.com/euforicio/wikitikz/internal/tikz/diag"
	"github.com/euforicio/wikitikz/internal/tikz/engine"
	"github.com/euforicio/wikitikz/internal/tikz/postprocess"
	"github.com/euforicio/wikitikz/internal/tikz/preamble"
)

// Latex mimics latex: a banner, a file load, the document-phase marker and a
// page shipout. Input containing BROKEN fails with an undefined control
// sequence after the document phase has started. Input containing SLOW
// prints SlowLine and hangs; a background child it leaves behind prints
// SlowTail shortly after, whether or not latex has been killed by then.
const Latex = `#!/bin/sh
echo "This is e-TeX, Version 3.14159265"
echo "(./input.tex"
if grep -q SLOW input.tex; then
  echo "` + SlowLine + `"
  (sleep 0.4; echo "` + SlowTail + `") &
  sleep 30
fi
echo "No file input.aux."
if grep -q BROKEN input.tex; then
  echo "! Undefined control sequence."
  printf '%s\n' 'l.6 \BROKEN'
  exit 1
fi
echo "[1] (./input.aux) )"
cp input.tex input.dvi
`

// Lines printed for SLOW input.
const (
	SlowLine = "! Emergency stop while waiting."
	SlowTail = "! Output from a killed render."
)

// Dvisvgm emits an XML prolog and an SVG with a black path and the TeX input
// inside a comment, so tests can assert on what the engine received. Runs of
// dashes are split up because XML comments may not contain "--". Progress
// goes to stderr like the real tool.
const Dvisvgm = `#!/bin/sh
echo "pre-processing DVI file (format version 2)" >&2
printf '<?xml version="1.0" encoding="UTF-8"?>\n<!-- dvisvgm -->\n'
printf '<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><path fill="#000" d="M0 0L10 10"/><!-- '
tr -d '\n' < input.dvi | sed -e ':a' -e 's/--/- -/' -e 'ta'
printf ' --></svg>\n'
`

// Toolchain writes the fake binaries into a temp dir and returns engine
// options pointing at them. It skips the test on Windows.
func Toolchain(t testing.TB) *engine.Options {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain relies on /bin/sh")
	}
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o755); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}
	return &engine.Options{
		LatexBin:   write("latex", Latex),
		DvisvgmBin: write("dvisvgm", Dvisvgm),
		WorkDir:    t.TempDir(),
		Timeout:    10 * time.Second,
	}
}

// Identity is an optimizer that returns its input.
var Identity = postprocess.OptimizerFunc(func(s string) (string, error) { return s, nil })

// Pipeline builds a pipeline over the fake toolchain with preambles read from
// files. invert may be nil.
func Pipeline(t testing.TB, files fs.FS, invert func() bool) *tikz.Pipeline {
	t.Helper()
	eng := engine.New(diag.NewSink(), nil, Toolchain(t))
	classifier := diag.New(nil, diag.Options{QuietPeriod: 20 * time.Millisecond})
	resolver := preamble.New(preamble.FSLookup{FS: files}, nil, preamble.Options{})
	post := postprocess.New(Identity, nil)

	p := tikz.New(resolver, eng, classifier, post, nil, tikz.Options{Invert: invert})
	t.Cleanup(p.Close)
	return p
}
