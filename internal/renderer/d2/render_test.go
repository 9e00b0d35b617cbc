package d2_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/euforicio/wikitikz/internal/renderer/d2"
)

func TestRenderRejectsEmptySource(t *testing.T) {
	t.Parallel()
	r := d2.New(nil, nil)
	if _, err := r.Render(context.Background(), "  \n"); !errors.Is(err, d2.ErrEmptyDiagram) {
		t.Fatalf("expected ErrEmptyDiagram, got %v", err)
	}
}

func TestRenderProducesSVG(t *testing.T) {
	t.Parallel()
	r := d2.New(nil, nil)
	res, err := r.Render(context.Background(), "a -> b")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(res.SVG, "<svg") {
		t.Fatalf("expected svg output, got %.80q", res.SVG)
	}
}

func TestRenderRejectsUnknownLayout(t *testing.T) {
	t.Parallel()
	r := d2.New(nil, nil)
	_, err := r.Render(context.Background(), "vars: {\n  d2-config: {\n    layout-engine: tala\n  }\n}\na -> b\n")
	if err == nil || !strings.Contains(err.Error(), "unsupported d2 layout") {
		t.Fatalf("expected layout error, got %v", err)
	}
}

func TestRenderHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	r := d2.New(nil, &d2.Options{MaxConcurrent: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, "a -> b"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
