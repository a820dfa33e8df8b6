package web

import "embed"

// Templates embeds HTML templates.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static embeds static assets.
//
//go:embed static/**/*
var Static embed.FS

// PrintCSS is the stylesheet inlined into printable documents.
const PrintCSS = "static/css/print.css"
