// Package printer drives a headless browser through the
// launch → page → content → style → print sequence and guarantees the
// browser is torn down on every exit path.
package printer

import (
	"context"
	"errors"
	"fmt"
)

// State is a print engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StatePageOpen
	StateContentLoaded
	StateStyled
	StatePrinted
	StateClosed
	StateFailed
)

var stateNames = [...]string{
	StateIdle:          "IDLE",
	StateLaunching:     "LAUNCHING",
	StatePageOpen:      "PAGE_OPEN",
	StateContentLoaded: "CONTENT_LOADED",
	StateStyled:        "STYLED",
	StatePrinted:       "PRINTED",
	StateClosed:        "CLOSED",
	StateFailed:        "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Stage names the step that failed.
type Stage string

const (
	StageLaunch         Stage = "launch"
	StagePageOpen       Stage = "page_open"
	StageContentLoad    Stage = "content_load"
	StageStyleInjection Stage = "style_injection"
	StagePrint          Stage = "print"
	StageCleanupPage    Stage = "close_page"
	StageCleanupPages   Stage = "close_pages"
	StageCleanupBrowser Stage = "close_browser"
)

var (
	ErrBrowserLaunch      = errors.New("printer: browser launch failed")
	ErrPageOpen           = errors.New("printer: page open failed")
	ErrContentLoadTimeout = errors.New("printer: content load timed out")
	ErrContentLoad        = errors.New("printer: content load failed")
	ErrStyleInjection     = errors.New("printer: stylesheet injection failed")
	ErrPrintOperation     = errors.New("printer: print operation failed")
	// ErrAborted is used when the caller's context ends mid-flight.
	ErrAborted = errors.New("printer: aborted")
)

// StageError is the structured failure returned by Engine.Print. It matches
// both its sentinel and its cause with errors.Is.
type StageError struct {
	Stage Stage
	Err   error
	Cause error
}

func (e *StageError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v (stage %s)", e.Err, e.Stage)
	}
	return fmt.Sprintf("%v (stage %s): %v", e.Err, e.Stage, e.Cause)
}

func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// CleanupError reports a teardown step that failed. It is logged and counted,
// never returned as the primary error.
type CleanupError struct {
	Stage Stage
	Err   error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("printer: cleanup %s: %v", e.Stage, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// PrintOptions controls the PDF output. Sizes are in inches.
type PrintOptions struct {
	PaperWidth        float64
	PaperHeight       float64
	MarginTop         float64
	MarginBottom      float64
	MarginLeft        float64
	MarginRight       float64
	PrintBackground   bool
	PreferCSSPageSize bool
}

// A4 returns the options used for invoices: A4 paper, backgrounds printed,
// @page size honoured.
func A4() PrintOptions {
	return PrintOptions{
		PaperWidth:        8.27,
		PaperHeight:       11.69,
		PrintBackground:   true,
		PreferCSSPageSize: true,
	}
}

// Launcher starts a browser process.
type Launcher interface {
	Launch(ctx context.Context, cfg LaunchConfig) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	// ClosePages closes every page still open in the browser.
	ClosePages(ctx context.Context) error
	Close(ctx context.Context) error
}

// Page is a single browser tab.
type Page interface {
	// LoadContent replaces the document and returns once the page is stable:
	// DOM ready, load fired and the network idle.
	LoadContent(ctx context.Context, html string) error
	// InjectStylesheet appends a stylesheet link and waits for it to load.
	InjectStylesheet(ctx context.Context, url string) error
	PrintPDF(ctx context.Context, opts PrintOptions) ([]byte, error)
	Close(ctx context.Context) error
}
