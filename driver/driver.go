// Package driver implements the Scraper Driver (C2): a thin wrapper
// around a headless browser session used by the Carrier Adapter (C3).
// Every session is incognito, has images disabled, ignores certificate
// errors, and retries page loads up to three times — the same
// configuration shape the teacher's scraper.NewScraper launches with
// (scraper/scraper.go), generalized to per-operation proxies via a
// dedicated incognito browser context instead of a single global proxy.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
)

// sentinelID is the DOM node id reserved for a loaded carrier script to
// mark itself with. Inject does not look for it: it detects a script
// already run on a session by the script's text alone.
const sentinelID = "op-token-elem"

const maxRetries = 3

// Driver is the contract the Carrier Adapter drives a browser session
// through (spec §4.2).
type Driver interface {
	// Open navigates to url with the given per-call timeout, through the
	// proxy the session was created with (see Pool.Open).
	// On network/proxy failure it returns an *errs.Error with
	// errs.ReasonProxyTimeout.
	Open(ctx context.Context, url string, timeout time.Duration) error

	// Inject runs script against the loaded page exactly once; repeat
	// calls with the same script text on the same session are no-ops.
	Inject(script string) error

	// WaitForAny resolves with the index of the first selector present
	// in the DOM, or transparently retries once on a redirect event.
	WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (int, error)

	// WaitForTitle blocks until the page title contains substring.
	WaitForTitle(ctx context.Context, substring string, timeout time.Duration) error

	// Evaluate runs a JS expression and returns its JSON-decoded value.
	Evaluate(expression string) (any, error)

	// Close releases all resources. Idempotent.
	Close()
}

// Config mirrors the teacher's BrowserConfig (config/config.go), minus
// the fields that only make sense for a single shared global proxy.
type Config struct {
	Headless   bool
	NoSandbox  bool
	BrowserBin string
}

// Pool launches and owns the single headless browser process that every
// scrape operation borrows an incognito browser context from. One Pool
// is constructed at process start, the way the teacher constructs one
// *rod.Browser in scraper.NewScraper.
type Pool struct {
	browser *rod.Browser
	cfg     Config
}

// NewPool launches the shared browser process.
func NewPool(cfg Config) (*Pool, error) {
	l := launcher.New().Headless(cfg.Headless).NoSandbox(cfg.NoSandbox)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	// Stealth flags, same set the teacher applies in scraper.NewScraper.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("ignore-certificate-errors"))
	l.Set(flags.Flag("blink-settings"), "imagesEnabled=false")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errs.ScrapingBrowserError(fmt.Errorf("launch browser: %w", err))
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, errs.ScrapingBrowserError(fmt.Errorf("connect to browser: %w", err))
	}

	return &Pool{browser: browser, cfg: cfg}, nil
}

// Close kills the shared browser process. Call on graceful shutdown.
func (p *Pool) Close() {
	p.browser.MustClose()
}

// Open creates a fresh incognito browser context scoped to proxy (nil
// proxy means "go direct"), the way CDP's Target.createBrowserContext
// accepts a per-context proxyServer — this is how per-operation proxy
// rotation is achieved without relaunching the whole browser process
// for every scrape, unlike the teacher's single process-wide
// BrowserConfig.DefaultProxy.
func (p *Pool) Open(proxy *models.Proxy) (Driver, error) {
	createCtx := proto.TargetCreateBrowserContext{}
	if proxy != nil {
		createCtx.ProxyServer = proxy.URL()
	}
	res, err := createCtx.Call(p.browser)
	if err != nil {
		return nil, errs.ScrapingReturnedError(errs.ReasonProxyTimeout, "failed to create proxied browser context")
	}

	page, err := p.browser.Page(proto.TargetCreateTarget{BrowserContextID: res.BrowserContextID})
	if err != nil {
		_, _ = proto.TargetDisposeBrowserContext{BrowserContextID: res.BrowserContextID}.Call(p.browser)
		return nil, errs.ScrapingBrowserError(fmt.Errorf("create page: %w", err))
	}

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("driver: stealth injection failed, proceeding without it", "error", err)
	}

	return &session{
		browser:         p.browser,
		page:            page,
		browserContextID: res.BrowserContextID,
	}, nil
}

// session is the Driver implementation bound to one browser context.
type session struct {
	browser          *rod.Browser
	page             *rod.Page
	browserContextID proto.BrowserContextID
	injected         map[string]bool
}

func (s *session) Open(ctx context.Context, url string, timeout time.Duration) error {
	p := s.page.Context(ctx)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Context(attemptCtx).Navigate(url)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Debug("driver: navigation attempt failed", "url", url, "attempt", attempt+1, "error", err)
	}
	return errs.ScrapingReturnedError(errs.ReasonProxyTimeout, fmt.Sprintf("navigation to %s timed out after %d attempts: %v", url, maxRetries, lastErr))
}

func (s *session) Inject(script string) error {
	if s.injected == nil {
		s.injected = make(map[string]bool)
	}
	if s.injected[script] {
		return nil
	}
	if _, err := s.page.Eval(script); err != nil {
		return fmt.Errorf("driver: inject script: %w", err)
	}
	s.injected[script] = true
	return nil
}

func (s *session) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	redirected := false

	for {
		select {
		case <-ctx.Done():
			return -1, errs.New(errs.KindScrapingReturnedError, "Page wait timeout", "context canceled while waiting for selectors", 500)
		default:
		}

		for i, sel := range selectors {
			has, _, err := s.page.Has(sel)
			if err == nil && has {
				return i, nil
			}
		}

		if time.Now().After(deadline) {
			if !redirected && s.sawRedirect() {
				// Transparent single retry on a redirect event (spec §4.2).
				redirected = true
				deadline = time.Now().Add(timeout)
				continue
			}
			return -1, errs.New(errs.KindScrapingReturnedError, "Page wait timeout", fmt.Sprintf("none of %v appeared within %s", selectors, timeout), 500)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// sawRedirect is a best-effort check using the page's navigation
// history; a real driver would listen for Page.frameNavigated events.
func (s *session) sawRedirect() bool {
	history, err := proto.PageGetNavigationHistory{}.Call(s.page)
	if err != nil {
		return false
	}
	return len(history.Entries) > 1
}

func (s *session) WaitForTitle(ctx context.Context, substring string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		res, err := s.page.Eval(`() => document.title`)
		if err == nil && contains(res.Value.Str(), substring) {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.KindScrapingReturnedError, "Page wait timeout", fmt.Sprintf("title never contained %q within %s", substring, timeout), 500)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *session) Evaluate(expression string) (any, error) {
	res, err := s.page.Eval(expression)
	if err != nil {
		return nil, fmt.Errorf("driver: evaluate: %w", err)
	}
	var v any
	if err := json.Unmarshal([]byte(res.Value.Raw), &v); err != nil {
		return res.Value.Str(), nil
	}
	return v, nil
}

func (s *session) Close() {
	if s.page != nil {
		_ = s.page.Close()
	}
	_, _ = proto.TargetDisposeBrowserContext{BrowserContextID: s.browserContextID}.Call(s.browser)
}

func contains(haystack, needle string) bool {
	return needle == "" || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
