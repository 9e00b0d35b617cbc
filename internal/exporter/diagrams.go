package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	d2renderer "github.com/euforicio/wikitikz/internal/renderer/d2"
	"github.com/euforicio/wikitikz/internal/tikz"
)

// diagramLabels maps fence languages the exporter understands to the name
// used in image alt text and text placeholders.
var diagramLabels = map[string]string{
	"tikz":    "TikZ",
	"d2":      "D2",
	"mermaid": "Mermaid",
}

const mermaidTimeout = 15 * time.Second

// diagramEncoder replaces diagram fences with markdown images pointing at
// rasterized PNGs, for renderers that only understand plain markdown.
type diagramEncoder struct {
	tikz   *tikz.Pipeline
	d2     *d2renderer.Renderer
	logger *slog.Logger
}

// encode rewrites the diagram fences of the document at rel into image
// references and returns the PNGs keyed by the referenced file name. Fences
// that fail to render, and everything else, are copied through byte for byte.
func (e *diagramEncoder) encode(ctx context.Context, rel string, raw []byte) ([]byte, map[string][]byte, error) {
	lines := bytes.SplitAfter(raw, []byte("\n"))
	var out bytes.Buffer
	out.Grow(len(raw))
	images := make(map[string][]byte)

	for i := 0; i < len(lines); {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		open, ok := parseOpening(lines[i])
		if !ok {
			out.Write(lines[i])
			i++
			continue
		}

		end := open.closeIn(lines, i+1)
		if end < 0 {
			// An unclosed fence runs to the end of the document.
			writeLines(&out, lines[i:])
			break
		}
		label, diagram := diagramLabels[open.lang]
		if !diagram {
			writeLines(&out, lines[i:end+1])
			i = end + 1
			continue
		}

		body := string(bytes.Join(lines[i+1:end], nil))
		img, err := e.rasterize(ctx, open.lang, rel, body)
		switch {
		case err != nil:
			e.logger.WarnContext(ctx, "diagram left as source",
				slog.String("path", rel), slog.String("lang", open.lang), slog.Int("line", i+1), slog.Any("err", err))
			writeLines(&out, lines[i:end+1])
		case img != nil:
			name := fmt.Sprintf("diagram-%d.png", len(images)+1)
			images[name] = img
			fmt.Fprintf(&out, "![%s diagram](%s)\n\n", label, name)
		}
		i = end + 1
	}
	return out.Bytes(), images, nil
}

// rasterize returns nil without error for a blank diagram.
func (e *diagramEncoder) rasterize(ctx context.Context, lang, rel, body string) ([]byte, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	switch lang {
	case "tikz":
		if e.tikz == nil {
			return nil, errors.New("tikz renderer unavailable")
		}
		noInvert := false
		res := e.tikz.RenderBlock(ctx, tikz.Block{Source: body, DocPath: rel, Invert: &noInvert})
		if res.Err != nil {
			if res.Report != nil {
				return nil, fmt.Errorf("render tikz: %w: %s", res.Err, res.Report.Body)
			}
			return nil, fmt.Errorf("render tikz: %w", res.Err)
		}
		return RasterizeSVG([]byte(res.SVG), 1)
	case "d2":
		if e.d2 == nil {
			return nil, errors.New("d2 renderer unavailable")
		}
		res, err := e.d2.Render(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("render d2: %w", err)
		}
		return RasterizeSVG([]byte(res.SVG), 1)
	case "mermaid":
		return mermaidPNG(ctx, body)
	}
	return nil, fmt.Errorf("no rasterizer for %q", lang)
}

type fenceOpening struct {
	char byte
	size int
	lang string
}

// parseOpening recognizes a ``` or ~~~ fence line and lowercases the first
// word of its info string.
func parseOpening(line []byte) (fenceOpening, bool) {
	s := strings.TrimSpace(string(line))
	if len(s) < 3 || (s[0] != '`' && s[0] != '~') {
		return fenceOpening{}, false
	}
	size := 0
	for size < len(s) && s[size] == s[0] {
		size++
	}
	if size < 3 {
		return fenceOpening{}, false
	}
	info := strings.TrimSpace(s[size:])
	if s[0] == '`' && strings.ContainsRune(info, '`') {
		return fenceOpening{}, false
	}
	f := fenceOpening{char: s[0], size: size}
	if fields := strings.Fields(info); len(fields) > 0 {
		f.lang = strings.ToLower(fields[0])
	}
	return f, true
}

// closeIn returns the index of the line closing f at or after from, or -1.
func (f fenceOpening) closeIn(lines [][]byte, from int) int {
	for j := from; j < len(lines); j++ {
		s := strings.TrimSpace(string(lines[j]))
		if len(s) >= f.size && strings.Trim(s, string(f.char)) == "" {
			return j
		}
	}
	return -1
}

func writeLines(out *bytes.Buffer, lines [][]byte) {
	for _, l := range lines {
		out.Write(l)
	}
}

// RasterizeSVG draws svg onto a canvas scale times its view box and encodes
// it as PNG. An empty view box falls back to an 800x600 canvas.
func RasterizeSVG(svg []byte, scale float64) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	w, h := canvasSize(icon.ViewBox.W, icon.ViewBox.H, scale)
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	dasher := rasterx.NewDasher(w, h, rasterx.NewScannerGV(w, h, img, img.Bounds()))
	icon.Draw(dasher, 1)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func canvasSize(vw, vh, scale float64) (int, int) {
	if scale <= 0 {
		scale = 1
	}
	w, h := int(math.Ceil(vw*scale)), int(math.Ceil(vh*scale))
	if w <= 0 || h <= 0 {
		return 800, 600
	}
	return w, h
}

// mermaidPNG shells out to mermaid-cli. mmdc resolves relative paths against
// its working directory, so it runs inside a scratch directory.
func mermaidPNG(ctx context.Context, source string) ([]byte, error) {
	bin, err := exec.LookPath("mmdc")
	if err != nil {
		return nil, fmt.Errorf("mmdc not found: %w", err)
	}
	dir, err := os.MkdirTemp("", "wikitikz-mermaid-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in, out := filepath.Join(dir, "in.mmd"), filepath.Join(dir, "out.png")
	if err := os.WriteFile(in, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("write mermaid source: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, mermaidTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin, "-i", in, "-o", out, "-b", "white", "-s", "2", "--quiet")
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("mmdc: %w: %s", err, bytes.TrimSpace(output))
	}

	data, err := os.ReadFile(out) //nolint:gosec // path inside our scratch dir
	if err != nil {
		return nil, fmt.Errorf("read mmdc output: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("mmdc produced an empty image")
	}
	return data, nil
}
