// Package web carries the dashboard's templates and browser assets.
package web

import "embed"

// TemplatesFS holds the pages and the htmx partials they share.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the chart script.
//
//go:embed static/*
var StaticFS embed.FS
