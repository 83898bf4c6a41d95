package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-invoice/internal/document/markup"
	"github.com/odyssey-erp/odyssey-invoice/internal/document/printer"
	"github.com/odyssey-erp/odyssey-invoice/internal/invoice"
)

// Code is the stable, machine readable failure class of a generation.
type Code string

const (
	CodeInvalidRequest     Code = "invalid_request"
	CodeTemplateResolution Code = "template_resolution"
	CodeMarkupGeneration   Code = "markup_generation"
	CodeBrowserLaunch      Code = "browser_launch"
	CodePageOpen           Code = "page_open"
	CodeContentLoad        Code = "content_load"
	CodeContentLoadTimeout Code = "content_load_timeout"
	CodeStyleInjection     Code = "style_injection"
	CodePrintOperation     Code = "print_operation"
	CodeTimeout            Code = "timeout"
)

// Error is the single failure outcome of Generate.
type Error struct {
	Code    Code
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("document: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("document: %s: %s: %s", e.Code, e.Message, e.Details)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later. Invalid input
// and broken templates never will.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeInvalidRequest, CodeTemplateResolution, CodeMarkupGeneration:
		return false
	default:
		return true
	}
}

// Systemic reports failures that affect every render, not just this one.
func (e *Error) Systemic() bool {
	return e.Code == CodeBrowserLaunch || e.Code == CodeTemplateResolution
}

func newError(code Code, message string, err error) *Error {
	e := &Error{Code: code, Message: message, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// AsError classifies err. Errors that are already *Error are returned as is.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var docErr *Error
	if errors.As(err, &docErr) {
		return docErr
	}
	switch {
	case errors.Is(err, invoice.ErrInvalidRequest):
		return newError(CodeInvalidRequest, "Invalid invoice data", err)
	case errors.Is(err, markup.ErrNoRenderer):
		return newError(CodeTemplateResolution, "Template resolution failed", err)
	case errors.Is(err, markup.ErrMarkupTooShort):
		return newError(CodeMarkupGeneration, "Failed to generate invoice markup", err)
	case errors.Is(err, printer.ErrAborted):
		return newError(CodeTimeout, "Invoice generation timed out or was cancelled", err)
	case errors.Is(err, printer.ErrBrowserLaunch):
		return newError(CodeBrowserLaunch, "Failed to launch browser", err)
	case errors.Is(err, printer.ErrPageOpen):
		return newError(CodePageOpen, "Failed to open browser page", err)
	case errors.Is(err, printer.ErrContentLoadTimeout):
		return newError(CodeContentLoadTimeout, "Timed out loading invoice content", err)
	case errors.Is(err, printer.ErrContentLoad):
		return newError(CodeContentLoad, "Failed to load invoice content", err)
	case errors.Is(err, printer.ErrStyleInjection):
		return newError(CodeStyleInjection, "Failed to apply invoice styles", err)
	case errors.Is(err, printer.ErrPrintOperation):
		return newError(CodePrintOperation, "Failed to print invoice", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return newError(CodeTimeout, "Invoice generation timed out or was cancelled", err)
	default:
		return newError(CodePrintOperation, "Failed to generate PDF", err)
	}
}
