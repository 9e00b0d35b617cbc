package engine_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/euforicio/wikitikz/internal/tikz/diag"
	"github.com/euforicio/wikitikz/internal/tikz/engine"
	"github.com/euforicio/wikitikz/internal/tikz/tikztest"
)

type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) add(line string) {
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
}

func (l *lineLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func render(ctx context.Context, eng *engine.Engine, merged string) (engine.Result, error) {
	return eng.Start(ctx, merged).Wait(ctx)
}

func TestRenderProducesInlineSVG(t *testing.T) {
	t.Parallel()
	sink := diag.NewSink()
	log := &lineLog{}
	defer sink.Subscribe(log.add)()

	eng := engine.New(sink, nil, tikztest.Toolchain(t))
	res, err := render(context.Background(), eng, "\\begin{tikzpicture}\\draw (0,0) -- (1,1);\\end{tikzpicture}")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(res.SVG, "<svg") {
		t.Fatalf("expected prolog to be stripped, got %q", res.SVG)
	}
	if !strings.Contains(res.SVG, `\draw (0,0) - - (1,1);`) {
		t.Fatalf("expected the wrapped source to reach the toolchain, got %q", res.SVG)
	}
	if res.Duration <= 0 {
		t.Fatalf("expected a positive duration")
	}

	lines := log.snapshot()
	if len(lines) == 0 || lines[0] != "This is e-TeX, Version 3.14159265" {
		t.Fatalf("expected latex output on the sink, got %q", lines)
	}
	for _, line := range lines {
		if strings.Contains(line, "pre-processing") {
			t.Fatalf("dvisvgm chatter must not reach the sink: %q", line)
		}
	}
}

func TestRenderFailureKeepsDiagnostics(t *testing.T) {
	t.Parallel()
	sink := diag.NewSink()
	log := &lineLog{}
	defer sink.Subscribe(log.add)()

	eng := engine.New(sink, nil, tikztest.Toolchain(t))
	_, err := render(context.Background(), eng, "\\BROKEN")
	if !errors.Is(err, engine.ErrRenderFailed) {
		t.Fatalf("expected ErrRenderFailed, got %v", err)
	}
	report, ok := diag.Classify(log.snapshot(), diag.DefaultRules())
	if !ok || report.Phase != diag.PhaseDocument || report.Body != "! Undefined control sequence.\nl.6 \\BROKEN" {
		t.Fatalf("unexpected classification %+v ok=%v", report, ok)
	}
}

func TestCancelledRenderResolvesAfterOutputIsPumped(t *testing.T) {
	t.Parallel()
	sink := diag.NewSink()
	log := &lineLog{}
	defer sink.Subscribe(log.add)()

	eng := engine.New(sink, nil, tikztest.Toolchain(t))
	ctx, cancel := context.WithCancel(context.Background())
	c := eng.Start(ctx, "SLOW")

	deadline := time.Now().Add(5 * time.Second)
	for !slices.Contains(log.snapshot(), tikztest.SlowLine) {
		if time.Now().After(deadline) {
			t.Fatalf("latex never started, got %q", log.snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("cancelled render did not resolve")
	}
	_, err := c.Wait(context.Background())
	if !errors.Is(err, engine.ErrRenderFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a cancelled render failure, got %v", err)
	}

	before := log.snapshot()
	if !slices.Contains(before, tikztest.SlowTail) {
		t.Fatalf("output written after the kill was not pumped before resolving: %q", before)
	}
	time.Sleep(50 * time.Millisecond)
	if after := len(log.snapshot()); after != len(before) {
		t.Fatalf("sink received %d lines after the render resolved", after-len(before))
	}
}

func TestStartRejectsEmptySource(t *testing.T) {
	t.Parallel()
	eng := engine.New(nil, nil, nil)
	c := eng.Start(context.Background(), "  \n ")
	select {
	case <-c.Done():
	default:
		t.Fatalf("empty source should resolve immediately")
	}
	if _, err := c.Wait(context.Background()); !errors.Is(err, engine.ErrEmptyDiagram) {
		t.Fatalf("expected ErrEmptyDiagram, got %v", err)
	}
}

func TestRenderMissingToolchain(t *testing.T) {
	t.Parallel()
	eng := engine.New(nil, nil, &engine.Options{LatexBin: "wikitikz-no-such-latex"})
	if _, err := render(context.Background(), eng, "x"); !errors.Is(err, engine.ErrToolMissing) {
		t.Fatalf("expected ErrToolMissing, got %v", err)
	}
}

func TestDocumentWrapsBody(t *testing.T) {
	t.Parallel()
	eng := engine.New(nil, nil, &engine.Options{DocumentClass: "\\documentclass{article}"})
	doc := eng.Document("\\usepackage{x}\n\\begin{document}\nhi\n\\end{document}")
	if !strings.HasPrefix(doc, "\\documentclass{article}\n\\usepackage{x}\n") {
		t.Fatalf("unexpected document %q", doc)
	}
	if strings.Count(eng.Document("hi"), "\\begin{document}") != 1 {
		t.Fatalf("expected a single document body")
	}
}
