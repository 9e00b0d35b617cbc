package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultQuietPeriod is how long the stream must stay silent before the
// buffered lines are classified.
const DefaultQuietPeriod = 250 * time.Millisecond

// Target receives the report produced for the render it was registered with.
type Target interface {
	SetReport(Report)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(Report)

// SetReport implements Target.
func (f TargetFunc) SetReport(r Report) { f(r) }

type stopper interface {
	Stop() bool
}

// Options configure a Classifier.
type Options struct {
	Rules       Rules
	QuietPeriod time.Duration
}

// Classifier buffers log lines and classifies them once the stream goes
// quiet. One render owns the classifier at a time; Begin hands it over.
type Classifier struct {
	logger    *slog.Logger
	target    Target
	timer     stopper
	idle      chan struct{}
	afterFunc func(time.Duration, func()) stopper
	rules     Rules
	buf       []string
	quiet     time.Duration
	gen       uint64
	mu        sync.Mutex
	pending   bool
}

// New builds a classifier. If logger is nil, the default slog logger is used.
func New(logger *slog.Logger, opts Options) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	rules := opts.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	quiet := opts.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Classifier{
		logger: logger.With("component", "diag"),
		rules:  rules,
		quiet:  quiet,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Attach subscribes the classifier to sink. The returned func detaches it.
func (c *Classifier) Attach(sink *Sink) (detach func()) {
	return sink.Subscribe(c.Feed)
}

// Begin starts a new render: any buffered lines, armed flush and stale error
// phase from the previous render are dropped and target becomes the receiver
// of future reports.
func (c *Classifier) Begin(target Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.gen++
	c.buf = nil
	c.target = target
	c.settleLocked()
}

// Feed appends line to the active buffer and re-arms the quiet-period
// trigger. It never blocks on classification.
func (c *Classifier) Feed(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, line)
	c.stopLocked()
	c.gen++
	gen := c.gen
	c.timer = c.afterFunc(c.quiet, func() { c.flush(gen) })
	if !c.pending {
		c.pending = true
		c.idle = make(chan struct{})
	}
}

// Wait blocks until no flush is pending or ctx is done.
func (c *Classifier) Wait(ctx context.Context) error {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Classifier) flush(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	lines := c.buf
	c.buf = nil
	c.timer = nil
	target := c.target
	rules := c.rules
	c.mu.Unlock()

	report, ok := Classify(lines, rules)
	switch {
	case !ok:
		c.logger.Debug("log flushed without findings", slog.Int("lines", len(lines)))
	case target == nil:
		c.logger.Warn("diagnostic report without target", slog.String("title", report.Title))
	default:
		c.logger.Debug("diagnostic report", slog.String("phase", report.Phase.String()), slog.Int("lines", len(report.Lines)))
		target.SetReport(report)
	}

	c.mu.Lock()
	if gen == c.gen {
		c.settleLocked()
	}
	c.mu.Unlock()
}

func (c *Classifier) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Classifier) settleLocked() {
	if c.pending {
		c.pending = false
		close(c.idle)
	}
}
