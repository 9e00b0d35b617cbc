// Package content serves wiki documents from disk and watches the tree for
// changes, including edits to diagram preamble files.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/euforicio/wikitikz/internal/content/tree"
	"github.com/euforicio/wikitikz/internal/renderer"
)

// ErrInvalidPath is returned for document paths that are empty, absolute or
// climb out of the wiki root.
var ErrInvalidPath = errors.New("invalid document path")

// Options configures the content service.
type Options struct {
	// IsPreamble reports whether a wiki-relative path names a preamble file.
	IsPreamble func(rel string) bool
	// OnPreambleChange runs after a preamble file is created, written or
	// removed, before subscribers are notified.
	OnPreambleChange func(rel string)
	IncludeHidden    bool
}

// Service coordinates document rendering, the navigation tree and change
// notifications.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	renderer *renderer.Service
	watcher  *fsnotify.Watcher
	opts     Options
	root     string

	tree      atomic.Pointer[tree.Node]
	rebuildMu sync.Mutex

	hub     hub
	pending pendingChanges
}

// NewService builds the initial tree for root and starts watching it. The
// service stops when parentCtx is canceled or Close is called.
func NewService(parentCtx context.Context, root string, rendererSvc *renderer.Service, logger *slog.Logger, opts Options) (*Service, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	if rendererSvc == nil {
		return nil, errors.New("renderer service must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.IsPreamble == nil {
		opts.IsPreamble = func(string) bool { return false }
	}
	if opts.OnPreambleChange == nil {
		opts.OnPreambleChange = func(string) {}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s := &Service{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("component", "content"),
		renderer: rendererSvc,
		opts:     opts,
		root:     absRoot,
		hub:      hub{subscribers: make(map[uint64]*subscriber)},
	}

	node, err := tree.Build(ctx, absRoot, s.treeOptions())
	if err != nil {
		cancel()
		return nil, err
	}
	s.tree.Store(node)

	if err := s.startWatcher(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Close stops the watcher and closes every subscription.
func (s *Service) Close() error {
	s.cancel()
	s.pending.stop()
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Root returns the absolute wiki root.
func (s *Service) Root() string {
	return s.root
}

// CurrentTree returns the latest tree snapshot.
func (s *Service) CurrentTree(ctx context.Context) (*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := s.tree.Load(); n != nil {
		return n, nil
	}
	return nil, errors.New("tree not initialized")
}

// Source reads a markdown document without rendering it and returns its
// cleaned wiki-relative path.
func (s *Service) Source(ctx context.Context, relPath string) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	rel, abs, err := s.resolve(relPath)
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(abs) //nolint:gosec // abs is confined to the root by resolve
	if err != nil {
		return "", nil, fmt.Errorf("read document: %w", err)
	}
	return rel, data, nil
}

// Document loads and renders a markdown document. The ".md" extension may be
// omitted. Missing documents wrap os.ErrNotExist.
func (s *Service) Document(ctx context.Context, relPath string) (renderer.Document, error) {
	if err := ctx.Err(); err != nil {
		return renderer.Document{}, err
	}
	rel, abs, err := s.resolve(relPath)
	if err != nil {
		return renderer.Document{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return renderer.Document{}, fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return renderer.Document{}, fmt.Errorf("%w: %s is a directory", ErrInvalidPath, rel)
	}
	data, err := os.ReadFile(abs) //nolint:gosec // abs is confined to the root by resolve
	if err != nil {
		return renderer.Document{}, fmt.Errorf("read document: %w", err)
	}

	// The renderer resolves preambles against the wiki-relative path.
	return s.renderer.Render(ctx, rel, info.ModTime(), data)
}

// resolve cleans a wiki-relative document path and maps it under the root.
func (s *Service) resolve(relPath string) (rel string, abs string, err error) {
	raw := strings.TrimSpace(filepath.ToSlash(relPath))
	if raw == "" || path.IsAbs(raw) || filepath.IsAbs(relPath) || filepath.VolumeName(relPath) != "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	rel = path.Clean(raw)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}
	if !isMarkdownPath(rel) {
		rel += ".md"
	}

	abs = filepath.Join(s.root, filepath.FromSlash(rel))
	if back, err := filepath.Rel(s.root, abs); err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q escapes the root", ErrInvalidPath, relPath)
	}
	return rel, abs, nil
}

func (s *Service) treeOptions() tree.Options {
	return tree.Options{
		Inspector:     s.renderer,
		IsPreamble:    s.opts.IsPreamble,
		IncludeHidden: s.opts.IncludeHidden,
	}
}

func isMarkdownPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
