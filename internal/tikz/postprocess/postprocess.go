// Package postprocess adapts rendered SVG to the page theme and shrinks it.
package postprocess

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"
)

// Theme tokens substituted for fixed black and white when inverting. CSS
// keywords are case-insensitive, and the minifier lowercases currentColor.
const (
	ForegroundToken = "currentColor"
	BackgroundToken = "var(--background-primary)"
)

var (
	blackLiteral = quotedLiteral(`#000000|#000|black`)
	whiteLiteral = quotedLiteral(`#ffffff|#fff|white`)
)

// quotedLiteral matches the alternatives inside a matching pair of double or
// single quotes.
func quotedLiteral(alts string) *regexp.Regexp {
	return regexp.MustCompile(`"(?i:` + alts + `)"|'(?i:` + alts + `)'`)
}

// Optimizer shrinks serialized SVG. Implementations must leave element ids
// alone: several diagrams share one page and their generated ids overlap.
type Optimizer interface {
	Optimize(markup string) (string, error)
}

// OptimizerFunc adapts a function to Optimizer.
type OptimizerFunc func(markup string) (string, error)

// Optimize implements Optimizer.
func (f OptimizerFunc) Optimize(markup string) (string, error) { return f(markup) }

const svgMediaType = "image/svg+xml"

// MinifyOptimizer optimizes with tdewolff/minify, which never rewrites ids.
type MinifyOptimizer struct {
	m *minify.M
}

// NewMinifyOptimizer returns an optimizer configured for SVG with inline CSS.
func NewMinifyOptimizer() *MinifyOptimizer {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add(svgMediaType, &svg.Minifier{})
	return &MinifyOptimizer{m: m}
}

// Optimize implements Optimizer.
func (o *MinifyOptimizer) Optimize(markup string) (string, error) {
	out, err := o.m.String(svgMediaType, markup)
	if err != nil {
		return "", fmt.Errorf("minify svg: %w", err)
	}
	return out, nil
}

// Processor applies theme adaptation followed by optimization.
type Processor struct {
	optimizer Optimizer
	logger    *slog.Logger
}

// New builds a processor. A nil optimizer leaves markup size untouched.
func New(optimizer Optimizer, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		optimizer: optimizer,
		logger:    logger.With("component", "postprocess"),
	}
}

// Process returns markup with black/white literals swapped for theme tokens
// when invert is set, then optimized. If the optimizer fails the themed but
// unoptimized markup is returned.
func (p *Processor) Process(markup string, invert bool) string {
	if invert {
		markup = Invert(markup)
	}
	if p == nil || p.optimizer == nil {
		return markup
	}
	out, err := p.optimizer.Optimize(markup)
	if err != nil {
		p.logger.Warn("optimize markup failed", slog.Any("err", err))
		return markup
	}
	return out
}

// Invert rewrites quoted black and white color literals to theme tokens.
func Invert(markup string) string {
	markup = replaceQuoted(blackLiteral, markup, ForegroundToken)
	return replaceQuoted(whiteLiteral, markup, BackgroundToken)
}

func replaceQuoted(re *regexp.Regexp, markup, token string) string {
	return re.ReplaceAllStringFunc(markup, func(m string) string {
		q := m[:1]
		return q + token + q
	})
}
