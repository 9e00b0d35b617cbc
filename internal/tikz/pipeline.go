// Package tikz wires the block render pipeline: normalize, resolve the
// preamble, merge, hand the text to the TeX engine, classify its log stream
// and post-process the SVG.
package tikz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/euforicio/wikitikz/internal/tikz/diag"
	"github.com/euforicio/wikitikz/internal/tikz/engine"
	"github.com/euforicio/wikitikz/internal/tikz/postprocess"
	"github.com/euforicio/wikitikz/internal/tikz/preamble"
	"github.com/euforicio/wikitikz/internal/tikz/source"
)

// Block is one fenced tikz block and the wiki-relative path of its document.
type Block struct {
	// Invert overrides the global dark-mode setting when non-nil.
	Invert  *bool
	Source  string
	DocPath string
}

// BlockResult is what the page renderer needs to display a block.
type BlockResult struct {
	Err      error
	Report   *diag.Report
	SVG      string
	Duration time.Duration
	Cached   bool
}

// Options configure a Pipeline.
type Options struct {
	// Invert reports the current dark-mode inversion setting.
	Invert func() bool
}

// Pipeline renders tikz blocks one at a time. The classifier belongs to the
// render holding the lock.
type Pipeline struct {
	resolver   *preamble.Resolver
	engine     *engine.Engine
	classifier *diag.Classifier
	post       *postprocess.Processor
	invert     func() bool
	logger     *slog.Logger
	detach     func()
	cache      sync.Map // map[string]BlockResult
	mu         sync.Mutex
}

// New assembles a pipeline and subscribes the classifier to the engine's
// diagnostic sink. Call Close to unsubscribe.
func New(resolver *preamble.Resolver, eng *engine.Engine, classifier *diag.Classifier, post *postprocess.Processor, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	invert := opts.Invert
	if invert == nil {
		invert = func() bool { return false }
	}
	return &Pipeline{
		resolver:   resolver,
		engine:     eng,
		classifier: classifier,
		post:       post,
		invert:     invert,
		logger:     logger.With("component", "tikz"),
		detach:     classifier.Attach(eng.Sink()),
	}
}

// Close detaches the classifier from the engine's sink.
func (p *Pipeline) Close() {
	p.detach()
}

// Prepare returns the exact text the engine will receive for block.
func (p *Pipeline) Prepare(ctx context.Context, block Block) string {
	src := source.Wrap(source.Normalize(block.Source))
	return source.Merge(src, p.resolver.Resolve(ctx, block.DocPath))
}

// RenderBlock runs the full pipeline for block. Errors are reported on the
// result so one failing block never aborts the page.
func (p *Pipeline) RenderBlock(ctx context.Context, block Block) BlockResult {
	if source.Normalize(block.Source) == "" {
		return BlockResult{Err: engine.ErrEmptyDiagram}
	}
	invert := p.invert()
	if block.Invert != nil {
		invert = *block.Invert
	}

	merged := p.Prepare(ctx, block)
	key := cacheKey(merged, invert)
	if v, ok := p.cache.Load(key); ok {
		if cached, ok := v.(BlockResult); ok {
			cached.Cached = true
			return cached
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	target := &reportTarget{}
	p.classifier.Begin(target)

	start := time.Now()
	completion := p.engine.Start(ctx, merged)
	// The toolchain dies with ctx, but the render only resolves once its
	// output has been pumped into the sink. Holding the lock until then keeps
	// late lines out of the next block's buffer.
	<-completion.Done()
	res, err := completion.Wait(context.WithoutCancel(ctx))
	if waitErr := p.classifier.Wait(ctx); waitErr != nil {
		p.logger.Debug("diagnostics incomplete", slog.String("path", block.DocPath), slog.Any("err", waitErr))
	}

	out := BlockResult{
		Report:   target.get(),
		Duration: time.Since(start),
	}
	if err != nil {
		out.Err = err
		p.logger.Warn("tikz render failed", slog.String("path", block.DocPath), slog.Any("err", err))
	} else {
		out.SVG = p.post.Process(res.SVG, invert)
	}

	if cacheable(out) {
		p.cache.Store(key, out)
	}
	p.logger.Debug("tikz block rendered",
		slog.String("path", block.DocPath),
		slog.Duration("duration", out.Duration),
		slog.Bool("report", out.Report != nil),
	)
	return out
}

// Invalidate drops every cached block result.
func (p *Pipeline) Invalidate() {
	p.cache.Range(func(key, _ any) bool {
		p.cache.Delete(key)
		return true
	})
}

func cacheable(r BlockResult) bool {
	if r.Err == nil {
		return true
	}
	if errors.Is(r.Err, context.DeadlineExceeded) || errors.Is(r.Err, context.Canceled) {
		return false
	}
	return errors.Is(r.Err, engine.ErrRenderFailed) && r.Report != nil
}

func cacheKey(merged string, invert bool) string {
	sum := sha256.Sum256([]byte(strconv.FormatBool(invert) + "\x00" + merged))
	return hex.EncodeToString(sum[:])
}

type reportTarget struct {
	report *diag.Report
	mu     sync.Mutex
}

// SetReport replaces any earlier report for this block.
func (t *reportTarget) SetReport(r diag.Report) {
	t.mu.Lock()
	t.report = &r
	t.mu.Unlock()
}

func (t *reportTarget) get() *diag.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.report
}
