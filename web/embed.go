package web

import "embed"

// Templates embeds the invoice document templates.
//
//go:embed templates/invoices/*.html
var Templates embed.FS
