// Package main writes the Chroma stylesheet used for highlighted code blocks.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/pflag"
)

func main() {
	styleName := pflag.String("style", "github-dark", "chroma style to export")
	out := pflag.StringP("out", "o", "", "output file (default stdout)")
	pflag.Parse()

	if err := run(*styleName, *out); err != nil {
		fmt.Fprintf(os.Stderr, "generate-chroma-css: %v\n", err)
		os.Exit(1)
	}
}

func run(styleName, out string) error {
	style := styles.Get(styleName)
	if style == nil || (style == styles.Fallback && styleName != style.Name) {
		return fmt.Errorf("style %q not found", styleName)
	}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out) // #nosec G304 -- developer-supplied path
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	formatter := html.New(html.WithClasses(true))
	if err := formatter.WriteCSS(w, style); err != nil {
		return fmt.Errorf("write css: %w", err)
	}
	return nil
}
