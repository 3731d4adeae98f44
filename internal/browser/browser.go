package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/amazon-offer-scraper/internal/extractor"
	"github.com/playwright-community/playwright-go"
)

const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"
)

// Session is one isolated browsing context used for a single page
// extraction. Close must be called on every path.
type Session interface {
	// Navigate loads url and returns once the network has gone idle.
	Navigate(ctx context.Context, url string) error
	// Document returns the live document root of the current page.
	Document() (extractor.Node, error)
	// HTML returns the serialised DOM of the current page.
	HTML() (string, error)
	Close() error
}

// Launcher hands out isolated sessions. It is safe for concurrent use.
type Launcher interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

type Options struct {
	Driver         string
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Driver:         DriverPlaywright,
		Headless:       true,
		Timeout:        60 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-IN,en;q=0.9",
		TimezoneID:     "Asia/Kolkata",
		Locale:         "en-IN",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

// NewLauncher starts the driver named by opts.Driver.
func NewLauncher(opts *Options, logger *slog.Logger) (Launcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	switch opts.Driver {
	case "", DriverPlaywright:
		return New(opts, logger)
	case DriverChromedp:
		return NewChromedp(opts, logger)
	default:
		return nil, fmt.Errorf("unknown browser driver %q", opts.Driver)
	}
}

// Browser is a playwright-driven Chromium process. Every session gets its
// own browser context, so cookies and storage are never shared.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "browser", "driver", DriverPlaywright),
	}, nil
}

func (b *Browser) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(b.opts.ExtraHeaders)+1)
	for k, v := range b.opts.ExtraHeaders {
		headers[k] = v
	}
	if b.opts.AcceptLanguage != "" {
		headers["Accept-Language"] = b.opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &b.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	bctx, err := b.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &pageSession{
		context: bctx,
		page:    page,
		timeout: b.opts.Timeout,
		logger:  b.logger,
	}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

type pageSession struct {
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
	logger  *slog.Logger
}

func (s *pageSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	return s.checkBotProtection()
}

// checkBotProtection clicks through Amazon's "continue shopping" interstitial
// and fails on a captcha page.
func (s *pageSession) checkBotProtection() error {
	content, err := s.page.Content()
	if err != nil {
		return fmt.Errorf("failed to get page content: %w", err)
	}

	switch detectBlock(content) {
	case blockCaptcha:
		return ErrCaptcha
	case blockContinue:
		s.logger.Info("bot protection detected, attempting bypass")
		button := s.page.Locator(continueButtonSelector).First()
		if count, err := button.Count(); err != nil || count == 0 {
			return ErrCaptcha
		}
		if err := button.Click(); err != nil {
			return fmt.Errorf("failed to click continue button: %w", err)
		}
		if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateNetworkidle,
		}); err != nil {
			return fmt.Errorf("failed to wait after bypass: %w", err)
		}
		s.logger.Info("bot protection bypassed")
	}

	return nil
}

func (s *pageSession) Document() (extractor.Node, error) {
	root, err := s.page.QuerySelector(":root")
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("page has no document element")
	}
	return &elementNode{handle: root}, nil
}

func (s *pageSession) HTML() (string, error) {
	return s.page.Content()
}

func (s *pageSession) Close() error {
	if err := s.context.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}

// elementNode adapts a playwright element handle. Clicks go through the DOM
// click() method so hidden or covered triggers still fire.
type elementNode struct {
	handle playwright.ElementHandle
}

func (n *elementNode) QuerySelector(selector string) (extractor.Node, error) {
	h, err := n.handle.QuerySelector(selector)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}
	return &elementNode{handle: h}, nil
}

func (n *elementNode) QuerySelectorAll(selector string) ([]extractor.Node, error) {
	handles, err := n.handle.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	nodes := make([]extractor.Node, 0, len(handles))
	for _, h := range handles {
		nodes = append(nodes, &elementNode{handle: h})
	}
	return nodes, nil
}

func (n *elementNode) TextContent() (string, error) {
	return n.handle.TextContent()
}

func (n *elementNode) ImageSource() (string, error) {
	v, err := n.handle.Evaluate(`el => el.src || ""`)
	if err != nil {
		return "", err
	}
	src, _ := v.(string)
	return src, nil
}

func (n *elementNode) Displayed() (bool, error) {
	v, err := n.handle.Evaluate(`el => window.getComputedStyle(el).display !== "none"`)
	if err != nil {
		return false, err
	}
	shown, _ := v.(bool)
	return shown, nil
}

func (n *elementNode) Click() error {
	_, err := n.handle.Evaluate(`el => { el.click(); return true; }`)
	return err
}
