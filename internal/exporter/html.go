package exporter

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.gohtml"))

type htmlPage struct {
	Title       string
	Description string
	Tags        []string
	Source      string
	Modified    time.Time
	Body        template.HTML
	Diagrams    int
	Failed      int
}

func (e *Exporter) writeHTML(ctx context.Context, pg page, w io.Writer) error {
	doc, err := e.renderer.Render(ctx, pg.rel, pg.modified, pg.raw)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	data := htmlPage{
		Title:       doc.Metadata.Title,
		Description: doc.Metadata.Description,
		Tags:        doc.Metadata.Tags,
		Source:      pg.rel,
		Modified:    pg.modified,
		Body:        template.HTML(doc.HTML), //nolint:gosec // produced by the renderer, not user input
		Diagrams:    doc.Diagrams,
		Failed:      len(doc.Reports),
	}
	if err := pageTemplate.ExecuteTemplate(w, "page.gohtml", data); err != nil {
		return fmt.Errorf("execute export template: %w", err)
	}
	return nil
}
