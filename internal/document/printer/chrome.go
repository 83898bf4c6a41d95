package printer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const (
	networkIdleWindow = 500 * time.Millisecond
	stabilityPoll     = 100 * time.Millisecond
)

// ChromeLauncher starts Chromium through the DevTools protocol.
type ChromeLauncher struct {
	logger *slog.Logger
}

// NewChromeLauncher constructs the chromedp backed launcher.
func NewChromeLauncher(logger *slog.Logger) *ChromeLauncher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ChromeLauncher{logger: logger}
}

// AllocatorOptions translates cfg into chromedp allocator options.
func AllocatorOptions(cfg LaunchConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if !cfg.Sandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.DisableDevShm {
		opts = append(opts, chromedp.Flag("disable-dev-shm-usage", true))
	}
	for name, value := range cfg.ExtraFlags {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// Launch starts a browser process. The process outlives ctx; it is stopped by
// Browser.Close.
func (l *ChromeLauncher) Launch(ctx context.Context, cfg LaunchConfig) (Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run on browserCtx starts the process.
	if err := runFirst(ctx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start %s: %w", describeExec(cfg), err)
	}
	l.logger.Debug("browser started", slog.String("mode", string(cfg.Mode)), slog.String("exec", describeExec(cfg)))
	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}, nil
}

func describeExec(cfg LaunchConfig) string {
	if cfg.ExecPath == "" {
		return "default browser"
	}
	return cfg.ExecPath
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *slog.Logger
}

func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	pageCtx, cancel := chromedp.NewContext(b.ctx)
	p := &chromePage{ctx: pageCtx, cancel: cancel, inflight: make(map[network.RequestID]struct{})}
	chromedp.ListenTarget(pageCtx, p.observe)

	// The first Run on pageCtx creates the tab.
	if err := runFirst(ctx, pageCtx, network.Enable()); err != nil {
		cancel()
		return nil, err
	}
	return p, nil
}

func (b *chromeBrowser) ClosePages(ctx context.Context) error {
	c := chromedp.FromContext(b.ctx)
	if c == nil || c.Browser == nil {
		return nil
	}
	// every command runs under the cleanup budget, not the browser lifetime
	execCtx := cdp.WithExecutor(ctx, c.Browser)
	infos, err := target.GetTargets().Do(execCtx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	var errs []error
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if err := target.CloseTarget(info.TargetID).Do(execCtx); err != nil {
			errs = append(errs, fmt.Errorf("close target %s: %w", info.TargetID, err))
		}
	}
	return errors.Join(errs...)
}

func (b *chromeBrowser) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(b.ctx) }()
	defer b.allocCancel()

	select {
	case err := <-done:
		b.cancel()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		// give up on a graceful shutdown; allocCancel kills the process
		b.cancel()
		return fmt.Errorf("graceful shutdown: %w", ctx.Err())
	}
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func (p *chromePage) observe(ev any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(p.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(p.inflight, e.RequestID)
	default:
		return
	}
	p.lastActivity = time.Now()
}

func (p *chromePage) networkIdle(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight) == 0 && now.Sub(p.lastActivity) >= networkIdleWindow
}

func (p *chromePage) LoadContent(ctx context.Context, html string) error {
	err := p.run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
	)
	if err != nil {
		return err
	}
	return p.waitStable(ctx)
}

// waitStable polls until the document has loaded and no request has been in
// flight for networkIdleWindow.
func (p *chromePage) waitStable(ctx context.Context) error {
	ticker := time.NewTicker(stabilityPoll)
	defer ticker.Stop()
	for {
		var state string
		if err := p.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return err
		}
		if state == "complete" && p.networkIdle(time.Now()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

const injectStylesheetJS = `new Promise((resolve, reject) => {
	const link = document.createElement('link');
	link.rel = 'stylesheet';
	link.href = %s;
	link.onload = () => resolve(true);
	link.onerror = () => reject(new Error('stylesheet failed to load: ' + link.href));
	document.head.appendChild(link);
})`

// stylesheetScript returns the injection script with url embedded as a JS
// string literal.
func stylesheetScript(url string) (string, error) {
	quoted, err := json.Marshal(url)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(injectStylesheetJS, quoted), nil
}

func (p *chromePage) InjectStylesheet(ctx context.Context, url string) error {
	script, err := stylesheetScript(url)
	if err != nil {
		return err
	}
	var loaded bool
	return p.run(ctx, chromedp.Evaluate(script, &loaded,
		func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
			return params.WithAwaitPromise(true)
		}))
}

func (p *chromePage) PrintPDF(ctx context.Context, opts PrintOptions) ([]byte, error) {
	var out []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		buf, _, err := page.PrintToPDF().
			WithPaperWidth(opts.PaperWidth).
			WithPaperHeight(opts.PaperHeight).
			WithMarginTop(opts.MarginTop).
			WithMarginBottom(opts.MarginBottom).
			WithMarginLeft(opts.MarginLeft).
			WithMarginRight(opts.MarginRight).
			WithPrintBackground(opts.PrintBackground).
			WithPreferCSSPageSize(opts.PreferCSSPageSize).
			Do(ctx)
		out = buf
		return err
	}))
	return out, err
}

func (p *chromePage) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.ctx) }()
	select {
	case err := <-done:
		p.cancel()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// run executes actions on the page, bounded by ctx. Cancelling ctx does not
// close the tab.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(stepCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// runFirst performs the first Run on a chromedp context, which allocates the
// browser or tab. That context must not be cancelled by ctx, so the call is
// raced against ctx instead.
func runFirst(ctx, chromeCtx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(chromeCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
