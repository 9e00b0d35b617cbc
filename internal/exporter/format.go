package exporter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned by ParseFormat for unknown names.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format names an export flavour.
type Format string

const (
	FormatHTML      Format = "html"
	FormatMarkdown  Format = "markdown"
	FormatPlainText Format = "txt"
	FormatPDF       Format = "pdf"
)

type formatInfo struct {
	format      Format
	contentType string
	extension   string
	aliases     []string
}

var formatTable = []formatInfo{
	{FormatHTML, "text/html; charset=utf-8", ".html", []string{"htm"}},
	{FormatMarkdown, "text/markdown; charset=utf-8", ".md", []string{"md"}},
	{FormatPlainText, "text/plain; charset=utf-8", ".txt", []string{"text", "plain"}},
	{FormatPDF, "application/pdf", ".pdf", nil},
}

// Formats lists the supported formats in display order.
func Formats() []Format {
	out := make([]Format, len(formatTable))
	for i, info := range formatTable {
		out[i] = info.format
	}
	return out
}

// ParseFormat maps a user supplied name onto a Format. The empty string
// selects HTML.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return FormatHTML, nil
	}
	for _, info := range formatTable {
		if name == string(info.format) {
			return info.format, nil
		}
		for _, alias := range info.aliases {
			if name == alias {
				return info.format, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFormat, name, formatList())
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	if info, ok := lookup(f); ok {
		return info.contentType
	}
	return "application/octet-stream"
}

// Extension is the download file extension for f, including the dot.
func (f Format) Extension() string {
	if info, ok := lookup(f); ok {
		return info.extension
	}
	return ""
}

func lookup(f Format) (formatInfo, bool) {
	for _, info := range formatTable {
		if info.format == f {
			return info, true
		}
	}
	return formatInfo{}, false
}

func formatList() string {
	names := make([]string, len(formatTable))
	for i, info := range formatTable {
		names[i] = string(info.format)
	}
	return strings.Join(names, ", ")
}
