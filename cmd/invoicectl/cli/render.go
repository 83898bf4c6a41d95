package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/odyssey-erp/odyssey-invoice/internal/document"
	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
)

// Exit codes returned by RenderCommand.
const (
	ExitOK       = 0
	ExitUsage    = 1
	ExitInvalid  = 2
	ExitGenerate = 3
)

// Generator is the document pipeline used for local renders.
type Generator interface {
	Generate(ctx context.Context, req invoice.RenderRequest) (document.Document, error)
	Preview(req invoice.RenderRequest) (document.Preview, error)
}

// RenderCLI renders invoice requests from JSON files without the HTTP server.
type RenderCLI struct {
	generator Generator
}

// NewRenderCLI constructs the helper.
func NewRenderCLI(generator Generator) *RenderCLI {
	return &RenderCLI{generator: generator}
}

// RenderOptions defines the flags of the render command.
type RenderOptions struct {
	Input      string
	OutputDir  string
	Template   string
	HTMLOnly   bool
	JSONOutput bool
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// RenderSummary is the JSON output of the render command.
type RenderSummary struct {
	OK       bool   `json:"ok"`
	File     string `json:"file,omitempty"`
	Bytes    int    `json:"bytes,omitempty"`
	Template string `json:"template,omitempty"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RenderCommand reads a render request ("-" for stdin), generates the PDF (or
// the markup with HTMLOnly) and writes it into OutputDir.
func (c *RenderCLI) RenderCommand(ctx context.Context, opts RenderOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if strings.TrimSpace(opts.Input) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "render: --input is required")
		return ExitUsage
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	req, err := readRequest(opts.Input, opts.Stdin)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "render: %v\n", err)
		return ExitUsage
	}
	if opts.Template != "" {
		req.TemplateID = invoice.TemplateID(opts.Template)
	}

	var (
		name       string
		data       []byte
		templateID invoice.TemplateID
		genErr     error
	)
	if opts.HTMLOnly {
		var p document.Preview
		p, genErr = c.generator.Preview(req)
		name = strings.TrimSuffix(req.Invoice.Filename(), ".pdf") + ".html"
		data, templateID = []byte(p.HTML), p.TemplateID
	} else {
		var doc document.Document
		doc, genErr = c.generator.Generate(ctx, req)
		name, data, templateID = doc.Filename, doc.Bytes, doc.TemplateID
	}
	if genErr != nil {
		docErr := document.AsError(genErr)
		summary := RenderSummary{Code: string(docErr.Code), Error: docErr.Error()}
		c.report(opts, summary)
		if docErr.Code == document.CodeInvalidRequest {
			return ExitInvalid
		}
		return ExitGenerate
	}

	path := filepath.Join(opts.OutputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "render: write %s: %v\n", path, err)
		return ExitUsage
	}
	c.report(opts, RenderSummary{OK: true, File: path, Bytes: len(data), Template: string(templateID)})
	return ExitOK
}

func (c *RenderCLI) report(opts RenderOptions, summary RenderSummary) {
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "render: encode json: %v\n", err)
		}
		return
	}
	if !summary.OK {
		_, _ = fmt.Fprintf(opts.Stderr, "render failed (%s): %s\n", summary.Code, summary.Error)
		return
	}
	_, _ = fmt.Fprintf(opts.Stdout, "wrote %s (%d bytes, template %s)\n", summary.File, summary.Bytes, summary.Template)
}

func readRequest(input string, stdin io.Reader) (invoice.RenderRequest, error) {
	var r io.Reader = stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return invoice.RenderRequest{}, err
		}
		defer f.Close()
		r = f
	}
	var req invoice.RenderRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return invoice.RenderRequest{}, fmt.Errorf("decode %s: %w", input, err)
	}
	return req, nil
}
