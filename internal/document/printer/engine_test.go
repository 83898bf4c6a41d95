package printer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeLauncher struct {
	rec       *recorder
	launchErr error
	browser   *fakeBrowser
	gotConfig LaunchConfig
}

func (l *fakeLauncher) Launch(ctx context.Context, cfg LaunchConfig) (Browser, error) {
	l.rec.add("launch")
	l.gotConfig = cfg
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.browser, nil
}

type fakeBrowser struct {
	rec           *recorder
	page          *fakePage
	newPageErr    error
	closePagesErr error
	closeErr      error
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.rec.add("new_page")
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) ClosePages(ctx context.Context) error {
	b.rec.add("close_pages")
	return b.closePagesErr
}

func (b *fakeBrowser) Close(ctx context.Context) error {
	b.rec.add("close_browser")
	return b.closeErr
}

type fakePage struct {
	rec        *recorder
	loadDelay  time.Duration
	loadErr    error
	styleErr   error
	printErr   error
	pdf        []byte
	closeErr   error
	closePanic bool

	gotHTML  string
	gotStyle string
	gotPrint PrintOptions
}

func (p *fakePage) LoadContent(ctx context.Context, html string) error {
	p.rec.add("load")
	p.gotHTML = html
	if p.loadDelay > 0 {
		select {
		case <-time.After(p.loadDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.loadErr
}

func (p *fakePage) InjectStylesheet(ctx context.Context, url string) error {
	p.rec.add("style")
	p.gotStyle = url
	return p.styleErr
}

func (p *fakePage) PrintPDF(ctx context.Context, opts PrintOptions) ([]byte, error) {
	p.rec.add("print")
	p.gotPrint = opts
	if p.printErr != nil {
		return nil, p.printErr
	}
	return p.pdf, nil
}

func (p *fakePage) Close(ctx context.Context) error {
	p.rec.add("close_page")
	if p.closePanic {
		panic("page already detached")
	}
	return p.closeErr
}

func newFakes() (*recorder, *fakeLauncher, *fakePage) {
	rec := &recorder{}
	page := &fakePage{rec: rec, pdf: []byte("%PDF-1.7 " + strings.Repeat("x", 600))}
	browser := &fakeBrowser{rec: rec, page: page}
	return rec, &fakeLauncher{rec: rec, browser: browser}, page
}

func TestPrintSuccess(t *testing.T) {
	rec, launcher, page := newFakes()
	var states []string
	engine := New(launcher, Options{
		Launch:        ProductionLaunch(""),
		StylesheetURL: "https://cdn.example.test/utilities.css",
		Hooks: Hooks{OnTransition: func(from, to State) {
			states = append(states, to.String())
		}},
	})

	pdf, err := engine.Print(context.Background(), "<html></html>")
	require.NoError(t, err)
	assert.Greater(t, len(pdf), 500)

	assert.Equal(t, []string{"launch", "new_page", "load", "style", "print", "close_page", "close_pages", "close_browser"}, rec.calls)
	assert.Equal(t, []string{"LAUNCHING", "PAGE_OPEN", "CONTENT_LOADED", "STYLED", "PRINTED", "CLOSED"}, states)
	assert.Equal(t, "<html></html>", page.gotHTML)
	assert.Equal(t, "https://cdn.example.test/utilities.css", page.gotStyle)
	assert.Equal(t, A4(), page.gotPrint)
	assert.Equal(t, ModeProduction, launcher.gotConfig.Mode)
}

func TestPrintSkipsStylesheetWhenUnset(t *testing.T) {
	rec, launcher, _ := newFakes()
	_, err := New(launcher, Options{}).Print(context.Background(), "<html></html>")
	require.NoError(t, err)
	assert.Zero(t, rec.count("style"))
}

func TestPrintContentLoadTimeout(t *testing.T) {
	rec, launcher, page := newFakes()
	page.loadDelay = time.Second
	var states []string
	engine := New(launcher, Options{
		ContentLoadTimeout: 20 * time.Millisecond,
		Hooks: Hooks{OnTransition: func(from, to State) {
			states = append(states, to.String())
		}},
	})

	pdf, err := engine.Print(context.Background(), "<html></html>")
	require.Error(t, err)
	assert.Nil(t, pdf)
	require.ErrorIs(t, err, ErrContentLoadTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageContentLoad, stageErr.Stage)

	assert.Equal(t, 1, rec.count("close_page"))
	assert.Equal(t, 1, rec.count("close_browser"))
	assert.Zero(t, rec.count("print"))
	assert.Equal(t, "FAILED", states[len(states)-1])
}

func TestPrintLaunchFailure(t *testing.T) {
	rec, launcher, _ := newFakes()
	launcher.launchErr = errors.New("exec: chromium not found")

	_, err := New(launcher, Options{}).Print(context.Background(), "<html></html>")
	require.ErrorIs(t, err, ErrBrowserLaunch)
	assert.Contains(t, err.Error(), "chromium not found")
	assert.Equal(t, []string{"launch"}, rec.calls)
}

func TestPrintPageOpenFailureClosesBrowser(t *testing.T) {
	rec, launcher, _ := newFakes()
	launcher.browser.newPageErr = errors.New("target crashed")

	_, err := New(launcher, Options{}).Print(context.Background(), "<html></html>")
	require.ErrorIs(t, err, ErrPageOpen)
	assert.Zero(t, rec.count("close_page"))
	assert.Equal(t, 1, rec.count("close_pages"))
	assert.Equal(t, 1, rec.count("close_browser"))
}

func TestPrintStyleInjectionFailure(t *testing.T) {
	rec, launcher, page := newFakes()
	page.styleErr = errors.New("stylesheet failed to load")

	_, err := New(launcher, Options{StylesheetURL: "https://cdn.example.test/x.css"}).
		Print(context.Background(), "<html></html>")
	require.ErrorIs(t, err, ErrStyleInjection)
	assert.Zero(t, rec.count("print"))
	assert.Equal(t, 1, rec.count("close_browser"))
}

func TestPrintOperationFailure(t *testing.T) {
	rec, launcher, page := newFakes()
	page.printErr = errors.New("printing failed")

	pdf, err := New(launcher, Options{}).Print(context.Background(), "<html></html>")
	require.ErrorIs(t, err, ErrPrintOperation)
	assert.Nil(t, pdf)
	assert.Equal(t, 1, rec.count("close_page"))
	assert.Equal(t, 1, rec.count("close_browser"))
}

func TestPrintEmptyOutputIsFailure(t *testing.T) {
	_, launcher, page := newFakes()
	page.pdf = nil

	_, err := New(launcher, Options{}).Print(context.Background(), "<html></html>")
	require.ErrorIs(t, err, ErrPrintOperation)
}

func TestCleanupFailuresDoNotMaskResult(t *testing.T) {
	rec, launcher, page := newFakes()
	page.closePanic = true
	launcher.browser.closePagesErr = errors.New("list targets: connection reset")

	var cleanup []Stage
	engine := New(launcher, Options{Hooks: Hooks{OnCleanupError: func(err *CleanupError) {
		cleanup = append(cleanup, err.Stage)
	}}})

	pdf, err := engine.Print(context.Background(), "<html></html>")
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
	assert.Equal(t, []Stage{StageCleanupPage, StageCleanupPages}, cleanup)
	assert.Equal(t, 1, rec.count("close_browser"))
}

func TestCleanupFailureKeepsPrimaryError(t *testing.T) {
	_, launcher, page := newFakes()
	page.printErr = errors.New("printing failed")
	launcher.browser.closeErr = errors.New("browser hung")

	_, err := New(launcher, Options{}).Print(context.Background(), "<html></html>")
	require.ErrorIs(t, err, ErrPrintOperation)
	var cleanupErr *CleanupError
	assert.False(t, errors.As(err, &cleanupErr))
}

func TestPrintCancelledContext(t *testing.T) {
	rec, launcher, page := newFakes()
	page.loadDelay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := New(launcher, Options{}).Print(ctx, "<html></html>")
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rec.count("close_page"))
	assert.Equal(t, 1, rec.count("close_browser"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "CONTENT_LOADED", StateContentLoaded.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StatePrinted.Terminal())
}

func TestLaunchConfigs(t *testing.T) {
	prod := LaunchFor(ModeProduction, "")
	assert.Equal(t, DefaultProductionExecPath, prod.ExecPath)
	assert.False(t, prod.Sandbox)
	assert.True(t, prod.DisableGPU)
	assert.True(t, prod.DisableDevShm)

	dev := LaunchFor(ParseMode("development"), "/usr/bin/chromium")
	assert.Equal(t, ModeDevelopment, dev.Mode)
	assert.Equal(t, "/usr/bin/chromium", dev.ExecPath)
	assert.True(t, dev.Sandbox)

	assert.Equal(t, ModeProduction, ParseMode(" PROD "))
	assert.Equal(t, ModeDevelopment, ParseMode(""))
}

func TestAllocatorOptionsGrowWithFlags(t *testing.T) {
	dev := AllocatorOptions(DevelopmentLaunch(""))
	prod := AllocatorOptions(ProductionLaunch(""))
	// exec path, no-sandbox, disable-gpu and disable-dev-shm-usage
	assert.Equal(t, len(dev)+4, len(prod))
}
