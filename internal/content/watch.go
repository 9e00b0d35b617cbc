package content

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/euforicio/wikitikz/internal/content/tree"
)

// settleDelay coalesces the bursts editors produce on save (truncate, write,
// rename, chmod) into one tree rebuild.
const settleDelay = 100 * time.Millisecond

// unwatchedDirs never hold documents or preambles.
var unwatchedDirs = []string{".git", ".hg", ".svn", ".wikitikz", "node_modules"}

type pendingChanges struct {
	mu    sync.Mutex
	ops   map[string]fsnotify.Op
	timer *time.Timer
}

func (p *pendingChanges) add(rel string, op fsnotify.Op, flush func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ops == nil {
		p.ops = make(map[string]fsnotify.Op)
	}
	p.ops[rel] |= op
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(settleDelay, flush)
}

func (p *pendingChanges) take() map[string]fsnotify.Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := p.ops
	p.ops = nil
	return ops
}

func (p *pendingChanges) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (s *Service) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher
	if err := s.watchTree(s.root); err != nil {
		_ = watcher.Close()
		return err
	}
	go s.runWatcher()
	return nil
}

func (s *Service) runWatcher() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.record(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("watcher error", slog.Any("err", err))
		}
	}
}

func (s *Service) record(event fsnotify.Event) {
	if event.Name == "" || event.Op == fsnotify.Chmod {
		return
	}
	rel := s.relativePath(event.Name)
	s.logger.Debug("fs event", slog.String("path", rel), slog.String("op", event.Op.String()))

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.watchTree(event.Name); err != nil {
				s.logger.Warn("watch new directory failed", slog.String("path", rel), slog.Any("err", err))
			}
		}
	}
	s.pending.add(rel, event.Op, s.flush)
}

// flush applies one settled batch: preamble hooks and cache invalidation
// first, then a single tree rebuild, then one event per changed path.
func (s *Service) flush() {
	if s.ctx.Err() != nil {
		return
	}
	ops := s.pending.take()
	if len(ops) == 0 {
		return
	}
	paths := make([]string, 0, len(ops))
	for rel := range ops {
		paths = append(paths, rel)
	}
	slices.Sort(paths)

	var events []Event
	for _, rel := range paths {
		op := ops[rel]
		switch {
		case s.opts.IsPreamble(rel):
			// Every document below the preamble's directory may render differently.
			s.opts.OnPreambleChange(rel)
			s.renderer.InvalidateAll()
			events = append(events, Event{Type: EventPreambleUpdated, Path: rel})
		case isMarkdownPath(rel):
			s.renderer.Invalidate(rel)
			events = append(events, Event{Type: s.classify(rel, op), Path: rel})
		default:
			events = append(events, Event{Type: EventTreeUpdated, Path: rel})
		}
	}

	if !s.rebuildTree() {
		events = slices.DeleteFunc(events, func(e Event) bool {
			return e.Type == EventTreeUpdated || e.Type == EventDeleted
		})
	}
	for _, evt := range compactTreeEvents(events) {
		s.broadcast(evt)
	}
}

// classify decides what a markdown change means to an open page. Editors
// that save by rename produce Remove followed by Create on the same path.
func (s *Service) classify(rel string, op fsnotify.Op) string {
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		if _, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(rel))); err != nil {
			return EventDeleted
		}
	}
	return EventPageUpdated
}

// compactTreeEvents keeps one treeUpdated per batch; the tree is rebuilt
// once regardless of how many non-document paths changed.
func compactTreeEvents(events []Event) []Event {
	seen := false
	return slices.DeleteFunc(events, func(e Event) bool {
		if e.Type != EventTreeUpdated {
			return false
		}
		if seen {
			return true
		}
		seen = true
		return false
	})
}

func (s *Service) rebuildTree() bool {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	node, err := tree.Build(ctx, s.root, s.treeOptions())
	if err != nil {
		s.logger.Error("rebuild tree failed", slog.Any("err", err))
		return false
	}
	s.tree.Store(node)
	return true
}

func (s *Service) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != s.root {
			name := d.Name()
			if slices.Contains(unwatchedDirs, name) || (!s.opts.IncludeHidden && strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
		}
		if err := s.watcher.Add(p); err != nil {
			s.logger.Warn("watch directory failed", slog.String("path", p), slog.Any("err", err))
		}
		return nil
	})
}

func (s *Service) relativePath(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}
