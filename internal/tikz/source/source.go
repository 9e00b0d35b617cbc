// Package source cleans raw tikz block text and splices preamble fragments into it.
package source

import "strings"

// BeginMarker opens the document body. Preamble lines must precede it.
const BeginMarker = `\begin{document}`

const nbsp = "&nbsp;"

// Normalize strips non-breaking space escapes, trims every line and drops the
// lines left empty. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	return strings.Join(cleanLines(stripNBSP(raw)), "\n")
}

// stripNBSP repeats until no escape is left, since removing one can join
// the halves of another ("&nb&nbsp;sp;").
func stripNBSP(s string) string {
	for strings.Contains(s, nbsp) {
		s = strings.ReplaceAll(s, nbsp, "")
	}
	return s
}

// Merge splices the fragment's lines into src directly before the first line
// containing BeginMarker, or ahead of everything when no marker is present.
// An empty fragment leaves src untouched.
func Merge(src, fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return src
	}
	pre := cleanLines(fragment)

	var lines []string
	if src != "" {
		lines = strings.Split(src, "\n")
	}
	at := 0
	for i, line := range lines {
		if strings.Contains(line, BeginMarker) {
			at = i
			break
		}
	}

	out := make([]string, 0, len(lines)+len(pre))
	out = append(out, lines[:at]...)
	out = append(out, pre...)
	out = append(out, lines[at:]...)
	return strings.Join(out, "\n")
}

// EndMarker closes the document body.
const EndMarker = `\end{document}`

// Wrap encloses src in a document body unless it already has one, so that
// preamble lines merged afterwards land ahead of the body.
func Wrap(src string) string {
	if HasBeginMarker(src) {
		return src
	}
	if src == "" {
		return BeginMarker + "\n" + EndMarker
	}
	return BeginMarker + "\n" + src + "\n" + EndMarker
}

// HasBeginMarker reports whether src already carries a document body.
func HasBeginMarker(src string) bool {
	return strings.Contains(src, BeginMarker)
}

func cleanLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := raw[:0]
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
