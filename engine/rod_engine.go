package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/pagecount/archive"
	"github.com/use-agent/pagecount/config"
)

// RodEngine renders the detail page in headless Chromium so script-built
// content, such as the BookReader "(N/M)" indicator, is present in the HTML.
// The browser is launched on first use and reused until Close.
type RodEngine struct {
	cfg       config.RenderConfig
	userAgent string
	name      string

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodEngine creates a RodEngine. Stealth mode is reported in the name
// ("rod-stealth").
func NewRodEngine(cfg config.RenderConfig, userAgent string) *RodEngine {
	name := "rod"
	if cfg.Stealth {
		name = "rod-stealth"
	}
	return &RodEngine{cfg: cfg, userAgent: userAgent, name: name}
}

func (e *RodEngine) Name() string { return e.name }

// connect launches and connects the browser once.
func (e *RodEngine) connect() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		return e.browser, nil
	}

	l := launcher.New().
		Headless(e.cfg.Headless).
		NoSandbox(e.cfg.NoSandbox)
	if e.cfg.BrowserBin != "" {
		l = l.Bin(e.cfg.BrowserBin)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%s: launch browser: %w", e.name, err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%s: connect browser: %w", e.name, err)
	}

	e.launcher = l
	e.browser = browser
	return browser, nil
}

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	browser, err := e.connect()
	if err != nil {
		return nil, err
	}

	timeout := e.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%s: open page: %w", e.name, err)
	}
	defer func() { _ = page.Close() }()

	// Stealth and headers must be installed before navigation.
	if e.cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}
	if e.userAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: e.userAgent}.Call(page)
	}
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
	}.Call(page)

	if router := setupHijack(page, e.cfg.BlockResources, e.cfg.BlockTrackers); router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	if err := p.Navigate(req.URL); err != nil {
		return nil, &archive.TransportError{URL: req.URL, Err: err}
	}
	if err := p.WaitLoad(); err != nil {
		return nil, &archive.TransportError{URL: req.URL, Err: err}
	}

	status := navigationStatus(p)
	if status >= 300 {
		return nil, &archive.StatusError{URL: req.URL, StatusCode: status}
	}

	e.settle(p, timeout)

	rawHTML, err := p.HTML()
	if err != nil {
		return nil, &archive.TransportError{URL: req.URL, Err: err}
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	return &FetchResult{
		HTML:       []byte(rawHTML),
		Title:      evalStringOrEmpty(p, `() => document.title`),
		StatusCode: status,
		FinalURL:   finalURL,
		EngineName: e.name,
	}, nil
}

// settle waits for the viewer to draw its page indicator. Items without a
// viewer never match; the wait is bounded to half the navigation budget.
func (e *RodEngine) settle(p *rod.Page, budget time.Duration) {
	if e.cfg.SettleSelector == "" {
		return
	}
	wait := budget / 2
	if wait <= 0 {
		wait = 5 * time.Second
	}
	if _, err := p.Timeout(wait).Element(e.cfg.SettleSelector); err != nil {
		slog.Debug("settle selector not found, using current DOM",
			"selector", e.cfg.SettleSelector, "error", err)
	}
}

// Close kills the browser if one was launched.
func (e *RodEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.launcher.Kill()
	e.browser = nil
	e.launcher = nil
	slog.Info("browser closed")
	return err
}

// navigationStatus reads the main document's HTTP status, or 0 when the
// browser does not expose it.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
