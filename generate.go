// Package wikitikz is a markdown wiki that renders fenced TikZ diagrams
// through a local TeX toolchain.
//
// Regenerate the highlighting stylesheet with:
//
//	go generate
package wikitikz

//go:generate go run ./tools/generate-chroma-css --style github-dark --out static/css/chroma.css
