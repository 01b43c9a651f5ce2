package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*
var templatesFS embed.FS

// GetTemplates returns the parsed templates.
func GetTemplates() *template.Template {
	return template.Must(template.ParseFS(templatesFS, "templates/*.html"))
}
