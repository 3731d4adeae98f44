package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/maltedev/amazon-offer-scraper/internal/extractor"
)

// networkIdleWindow is how long no request may be in flight before the page
// counts as loaded.
const networkIdleWindow = 500 * time.Millisecond

// nodeRegistry holds the elements handed out to Go for the current document.
// Index 0 is the document itself.
const nodeRegistry = "window.__scraperNodes"

// Chromedp launches one Chrome process per session from a shared allocator.
type Chromedp struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	opts     *Options
	logger   *slog.Logger
}

func NewChromedp(opts *Options, logger *slog.Logger) (*Chromedp, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("lang", opts.Locale),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
	)
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &Chromedp{
		allocCtx: allocCtx,
		cancel:   cancel,
		opts:     opts,
		logger:   logger.With("component", "browser", "driver", DriverChromedp),
	}, nil
}

func (c *Chromedp) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(c.allocCtx)

	headers := network.Headers{}
	for k, v := range c.opts.ExtraHeaders {
		headers[k] = v
	}
	if c.opts.AcceptLanguage != "" {
		headers["Accept-Language"] = c.opts.AcceptLanguage
	}

	// The first Run starts the browser.
	if err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	s := &tabSession{
		ctx:     tabCtx,
		cancel:  cancel,
		timeout: c.opts.Timeout,
		logger:  c.logger,
	}

	// Tear the browser down if the caller gives up before closing.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-tabCtx.Done():
		}
	}()

	return s, nil
}

func (c *Chromedp) Close() error {
	c.cancel()
	return nil
}

type tabSession struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
}

func (s *tabSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idle := newIdleTracker()
	chromedp.ListenTarget(s.ctx, idle.handle)

	navCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return idle.wait(ctx, networkIdleWindow)
		}),
	); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	return s.checkBotProtection(navCtx, idle)
}

func (s *tabSession) checkBotProtection(ctx context.Context, idle *idleTracker) error {
	content, err := s.HTML()
	if err != nil {
		return fmt.Errorf("failed to get page content: %w", err)
	}

	switch detectBlock(content) {
	case blockCaptcha:
		return ErrCaptcha
	case blockContinue:
		s.logger.Info("bot protection detected, attempting bypass")
		var clicked bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(`(() => {
			for (const el of document.querySelectorAll('button, input[type="submit"], .a-button-primary')) {
				const label = (el.textContent || el.value || "").toLowerCase();
				if (label.includes("continue")) { el.click(); return true; }
			}
			return false;
		})()`, &clicked)); err != nil {
			return fmt.Errorf("failed to click continue button: %w", err)
		}
		if !clicked {
			return ErrCaptcha
		}
		if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return idle.wait(ctx, networkIdleWindow)
		})); err != nil {
			return fmt.Errorf("failed to wait after bypass: %w", err)
		}
		s.logger.Info("bot protection bypassed")
	}

	return nil
}

func (s *tabSession) Document() (extractor.Node, error) {
	var id int
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(nodeRegistry+" = [document]; 0", &id)); err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &tabNode{ctx: s.ctx, id: id}, nil
}

func (s *tabSession) HTML() (string, error) {
	var html string
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *tabSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
	})
	if err != nil && err != context.Canceled {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	return nil
}

// tabNode refers to an element by its index in the page-side registry.
type tabNode struct {
	ctx context.Context
	id  int
}

func (n *tabNode) eval(expr string, res interface{}) error {
	return chromedp.Run(n.ctx, chromedp.Evaluate(expr, res))
}

func (n *tabNode) QuerySelector(selector string) (extractor.Node, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}

	var id int
	expr := fmt.Sprintf(`(() => {
		const r = %s;
		const el = r[%d].querySelector(%s);
		return el ? r.push(el) - 1 : -1;
	})()`, nodeRegistry, n.id, sel)
	if err := n.eval(expr, &id); err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, nil
	}
	return &tabNode{ctx: n.ctx, id: id}, nil
}

func (n *tabNode) QuerySelectorAll(selector string) ([]extractor.Node, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}

	var ids []int
	expr := fmt.Sprintf(`(() => {
		const r = %s;
		return Array.from(r[%d].querySelectorAll(%s), el => r.push(el) - 1);
	})()`, nodeRegistry, n.id, sel)
	if err := n.eval(expr, &ids); err != nil {
		return nil, err
	}

	nodes := make([]extractor.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, &tabNode{ctx: n.ctx, id: id})
	}
	return nodes, nil
}

func (n *tabNode) TextContent() (string, error) {
	var text string
	err := n.eval(fmt.Sprintf(`%s[%d].textContent || ""`, nodeRegistry, n.id), &text)
	return text, err
}

func (n *tabNode) ImageSource() (string, error) {
	var src string
	err := n.eval(fmt.Sprintf(`%s[%d].src || ""`, nodeRegistry, n.id), &src)
	return src, err
}

func (n *tabNode) Displayed() (bool, error) {
	var shown bool
	err := n.eval(fmt.Sprintf(`window.getComputedStyle(%s[%d]).display !== "none"`, nodeRegistry, n.id), &shown)
	return shown, err
}

func (n *tabNode) Click() error {
	var ok bool
	return n.eval(fmt.Sprintf(`(%s[%d].click(), true)`, nodeRegistry, n.id), &ok)
}

// idleTracker counts in-flight requests from network events.
type idleTracker struct {
	mu         sync.Mutex
	inflight   map[network.RequestID]struct{}
	lastChange time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight:   make(map[network.RequestID]struct{}),
		lastChange: time.Now(),
	}
}

func (t *idleTracker) handle(ev interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
		t.lastChange = time.Now()
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
		t.lastChange = time.Now()
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
		t.lastChange = time.Now()
	}
}

// idleFor reports whether nothing has been in flight for at least window.
func (t *idleTracker) idleFor(window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && time.Since(t.lastChange) >= window
}

func (t *idleTracker) wait(ctx context.Context, window time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if t.idleFor(window) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
