package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultContentLoadTimeout bounds content load and stylesheet injection.
	DefaultContentLoadTimeout = 30 * time.Second
	// DefaultCleanupTimeout bounds the whole teardown sequence.
	DefaultCleanupTimeout = 10 * time.Second
)

// Hooks observe the engine. All fields are optional.
type Hooks struct {
	OnTransition   func(from, to State)
	OnCleanupError func(err *CleanupError)
}

// Options configures an Engine.
type Options struct {
	Launch             LaunchConfig
	StylesheetURL      string
	ContentLoadTimeout time.Duration
	CleanupTimeout     time.Duration
	Print              PrintOptions
	Logger             *slog.Logger
	Hooks              Hooks
}

// Engine prints markup to PDF. It holds no per-request state and is safe for
// concurrent use; every Print call gets its own browser and page.
type Engine struct {
	launcher Launcher
	opts     Options
	logger   *slog.Logger
}

// New constructs an Engine around launcher.
func New(launcher Launcher, opts Options) *Engine {
	if opts.ContentLoadTimeout <= 0 {
		opts.ContentLoadTimeout = DefaultContentLoadTimeout
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = DefaultCleanupTimeout
	}
	if opts.Print == (PrintOptions{}) {
		opts.Print = A4()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{launcher: launcher, opts: opts, logger: logger}
}

// LaunchConfig returns the configuration every browser is launched with.
func (e *Engine) LaunchConfig() LaunchConfig {
	return e.opts.Launch
}

// Print renders html to PDF bytes. On failure the returned error is a
// *StageError and no bytes are returned. Browser resources are released
// before Print returns, whatever the outcome.
func (e *Engine) Print(ctx context.Context, html string) (pdf []byte, err error) {
	j := &job{engine: e, logger: e.logger}
	defer func() {
		j.cleanup(ctx)
		if err != nil {
			pdf = nil
			j.transition(StateFailed)
			return
		}
		j.transition(StateClosed)
	}()

	j.transition(StateLaunching)
	browser, err := e.launcher.Launch(ctx, e.opts.Launch)
	if err != nil {
		e.logger.Error("browser launch failed",
			slog.String("mode", string(e.opts.Launch.Mode)),
			slog.Bool("systemic", true),
			slog.Any("error", err))
		return nil, j.fail(ctx, StageLaunch, ErrBrowserLaunch, err)
	}
	j.browser = browser

	page, err := browser.NewPage(ctx)
	if err != nil {
		return nil, j.fail(ctx, StagePageOpen, ErrPageOpen, err)
	}
	j.page = page
	j.transition(StatePageOpen)

	loadCtx, cancelLoad := context.WithTimeout(ctx, e.opts.ContentLoadTimeout)
	err = page.LoadContent(loadCtx, html)
	cancelLoad()
	if err != nil {
		if errors.Is(loadCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, j.fail(ctx, StageContentLoad, ErrContentLoadTimeout, err)
		}
		return nil, j.fail(ctx, StageContentLoad, ErrContentLoad, err)
	}
	j.transition(StateContentLoaded)

	if url := e.opts.StylesheetURL; url != "" {
		styleCtx, cancelStyle := context.WithTimeout(ctx, e.opts.ContentLoadTimeout)
		err = page.InjectStylesheet(styleCtx, url)
		cancelStyle()
		if err != nil {
			return nil, j.fail(ctx, StageStyleInjection, ErrStyleInjection, err)
		}
	}
	j.transition(StateStyled)

	out, err := page.PrintPDF(ctx, e.opts.Print)
	if err != nil {
		return nil, j.fail(ctx, StagePrint, ErrPrintOperation, err)
	}
	if len(out) == 0 {
		return nil, j.fail(ctx, StagePrint, ErrPrintOperation, errors.New("empty document"))
	}
	j.transition(StatePrinted)
	return out, nil
}

// job tracks the resources of a single Print call.
type job struct {
	engine  *Engine
	logger  *slog.Logger
	state   State
	browser Browser
	page    Page
}

func (j *job) transition(to State) {
	if j.state.Terminal() {
		return
	}
	from := j.state
	j.state = to
	j.logger.Debug("print state", slog.String("from", from.String()), slog.String("to", to.String()))
	if fn := j.engine.opts.Hooks.OnTransition; fn != nil {
		fn(from, to)
	}
}

// fail builds the stage error. A stage that ran out of time because the
// caller's context ended is reported as ErrAborted rather than the stage
// sentinel.
func (j *job) fail(ctx context.Context, stage Stage, sentinel, cause error) error {
	if ctx.Err() != nil {
		return &StageError{Stage: stage, Err: ErrAborted, Cause: ctx.Err()}
	}
	j.logger.Warn("print stage failed",
		slog.String("stage", string(stage)),
		slog.String("state", j.state.String()),
		slog.Any("error", cause))
	return &StageError{Stage: stage, Err: sentinel, Cause: cause}
}

// cleanup closes the page, then any page left in the browser, then the
// browser. Each step runs regardless of the others and never panics out.
func (j *job) cleanup(ctx context.Context) {
	if j.browser == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.engine.opts.CleanupTimeout)
	defer cancel()

	if j.page != nil {
		j.guard(StageCleanupPage, func() error { return j.page.Close(cctx) })
	}
	j.guard(StageCleanupPages, func() error { return j.browser.ClosePages(cctx) })
	j.guard(StageCleanupBrowser, func() error { return j.browser.Close(cctx) })
}

func (j *job) guard(stage Stage, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}
	cerr := &CleanupError{Stage: stage, Err: err}
	j.logger.Warn("print cleanup failed", slog.String("stage", string(stage)), slog.Any("error", err))
	if fn := j.engine.opts.Hooks.OnCleanupError; fn != nil {
		fn(cerr)
	}
}
