// Package web holds the page templates and static assets compiled into the
// UI binary.
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates/*.html
var TemplatesFS embed.FS

//go:embed static/*
var StaticFS embed.FS

// ParseTemplates parses every page and partial. The page is named
// "index.html"; partials use their define names.
func ParseTemplates() (*template.Template, error) {
	return template.ParseFS(TemplatesFS, "templates/*.html")
}

// Static returns the asset tree rooted at static/.
func Static() (fs.FS, error) {
	return fs.Sub(StaticFS, "static")
}
