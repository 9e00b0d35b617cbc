// Package preamble locates the preamble fragment that applies to a document by
// walking its directory ancestry toward the wiki root.
package preamble

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
)

// DefaultNames lists candidate file names, most specific first.
var DefaultNames = []string{".tikz-preamble.tex", ".tikz-preamble", "tikz-preamble.tex"}

// DefaultMaxAscent bounds how many parent directories are visited.
const DefaultMaxAscent = 32

// Lookup reads the content stored at a slash-separated wiki path. Missing
// paths must be reported with an error wrapping fs.ErrNotExist.
type Lookup interface {
	Read(ctx context.Context, name string) (string, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, name string) (string, error)

// Read implements Lookup.
func (f LookupFunc) Read(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// Options configure a Resolver.
type Options struct {
	// OnProbe, when set, observes every candidate path in the order it is queried.
	OnProbe   func(candidate string)
	Names     []string
	MaxAscent int
}

// Resolver finds preamble fragments.
type Resolver struct {
	lookup    Lookup
	logger    *slog.Logger
	onProbe   func(string)
	names     []string
	maxAscent int
}

// New builds a resolver backed by lookup. If logger is nil, the default slog
// logger is used.
func New(lookup Lookup, logger *slog.Logger, opts Options) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(opts.Names))
	for _, name := range opts.Names {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		names = append(names, DefaultNames...)
	}
	maxAscent := opts.MaxAscent
	if maxAscent <= 0 {
		maxAscent = DefaultMaxAscent
	}
	return &Resolver{
		lookup:    lookup,
		logger:    logger.With("component", "preamble"),
		onProbe:   opts.OnProbe,
		names:     names,
		maxAscent: maxAscent,
	}
}

// Names returns the candidate file names in priority order.
func (r *Resolver) Names() []string {
	return append([]string(nil), r.names...)
}

// IsPreamble reports whether the base name of p is one of the candidate names.
func (r *Resolver) IsPreamble(p string) bool {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	for _, name := range r.names {
		if base == name {
			return true
		}
	}
	return false
}

// Resolve returns the fragment for the document at docPath, or "" when no
// candidate exists between the document's directory and the root. Within one
// directory the name priority wins; only when every name misses does the
// search move to the parent. Resolve never fails: read errors count as misses.
func (r *Resolver) Resolve(ctx context.Context, docPath string) string {
	if r == nil || r.lookup == nil {
		return ""
	}
	dir := parentDir(cleanPath(docPath))
	for step := 0; ; step++ {
		for _, name := range r.names {
			if ctx.Err() != nil {
				return ""
			}
			if content, ok := r.probe(ctx, joinPath(dir, name)); ok {
				return content
			}
		}
		if dir == "" || step >= r.maxAscent {
			return ""
		}
		dir = parentDir(dir)
	}
}

func (r *Resolver) probe(ctx context.Context, candidate string) (string, bool) {
	if r.onProbe != nil {
		r.onProbe(candidate)
	}
	content, err := r.lookup.Read(ctx, candidate)
	if err == nil {
		r.logger.Debug("preamble found", slog.String("path", candidate))
		return content, true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		r.logger.Debug("preamble read failed", slog.String("path", candidate), slog.Any("err", err))
	}
	return "", false
}

// FSLookup reads candidates from a filesystem rooted at the wiki directory.
// Only regular files match.
type FSLookup struct {
	FS fs.FS
}

// Read implements Lookup.
func (l FSLookup) Read(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := fs.Stat(l.FS, name)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file: %w", name, fs.ErrNotExist)
	}
	data, err := fs.ReadFile(l.FS, name)
	if err != nil {
		return "", fmt.Errorf("read preamble %s: %w", name, err)
	}
	return string(data), nil
}

func cleanPath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

func parentDir(p string) string {
	if p == "" {
		return ""
	}
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
