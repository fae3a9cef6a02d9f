// Package browser provides Chrome/Chromedp initialization, download
// configuration and the chromedp-backed Session.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"github.com/cantalupo555/statsheet-downloader/internal/poll"
)

// Config holds browser configuration options.
type Config struct {
	ExecPath     string
	ProfilePath  string
	DownloadDir  string
	Headless     bool
	WindowWidth  int
	WindowHeight int
	// Timeout bounds the lifetime of the whole session.
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		WindowWidth:  1920,
		WindowHeight: 1080,
		Timeout:      6 * time.Hour,
	}
}

// Context holds the browser contexts and cancel functions. It implements
// Session.
type Context struct {
	Ctx         context.Context
	AllocCancel context.CancelFunc
	CtxCancel   context.CancelFunc
	log         *slog.Logger
}

var _ Session = (*Context)(nil)

// New launches a browser with the given configuration and points its
// downloads at cfg.DownloadDir.
func New(cfg Config) (*Context, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.ProfilePath != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfilePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	logf := func(format string, args ...any) {
		cfg.Logger.Debug(fmt.Sprintf(format, args...), "source", "chromedp")
	}
	ctx, ctxCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logf))

	ctx, timeoutCancel := context.WithTimeout(ctx, cfg.Timeout)

	// Wrap both cancels
	combinedCancel := func() {
		timeoutCancel()
		ctxCancel()
	}

	c := &Context{
		Ctx:         ctx,
		AllocCancel: allocCancel,
		CtxCancel:   combinedCancel,
		log:         cfg.Logger,
	}

	if cfg.DownloadDir != "" {
		if err := c.ConfigureDownloads(ctx, cfg.DownloadDir); err != nil {
			c.Close()
			return nil, fmt.Errorf("browser: configure downloads: %w", err)
		}
	}
	return c, nil
}

// Close closes all browser contexts. Safe to call more than once.
func (c *Context) Close() {
	if c.CtxCancel != nil {
		c.CtxCancel()
		c.CtxCancel = nil
	}
	if c.AllocCancel != nil {
		c.AllocCancel()
		c.AllocCancel = nil
	}
}

// ConfigureDownloads lets the browser save downloads into downloadDir
// without a dialog.
func (c *Context) ConfigureDownloads(ctx context.Context, downloadDir string) error {
	if err := c.run(ctx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	); err != nil {
		return err
	}
	c.log.Info("downloads will be saved", "dir", downloadDir)
	return nil
}

// run executes actions on ctx when it carries the chromedp target, and on
// the session context otherwise.
func (c *Context) run(ctx context.Context, actions ...chromedp.Action) error {
	if chromedp.FromContext(ctx) == nil {
		ctx = c.Ctx
	}
	return chromedp.Run(ctx, actions...)
}

func (c *Context) bind(ctx context.Context) context.Context {
	if chromedp.FromContext(ctx) == nil {
		return c.Ctx
	}
	return ctx
}

// Navigate navigates to the given URL and waits for the load event.
func (c *Context) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

// Reload reloads the current page.
func (c *Context) Reload(ctx context.Context) error {
	return c.run(ctx, chromedp.Reload())
}

// WaitLoaded polls document.readyState until it is "complete".
func (c *Context) WaitLoaded(ctx context.Context, timeout time.Duration) error {
	ctx = c.bind(ctx)
	return poll.Until(ctx, timeout, poll.DefaultInterval, func(ctx context.Context) (bool, error) {
		var state string
		if err := chromedp.Run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			if IsBrowserClosed(err) {
				return false, err
			}
			// Evaluation fails while the document is being replaced.
			return false, nil
		}
		return state == "complete", nil
	})
}

// WaitClickable waits until the first node matching xpath is visible and
// enabled.
func (c *Context) WaitClickable(ctx context.Context, xpath string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(c.bind(ctx), timeout)
	defer cancel()
	return chromedp.Run(tctx,
		chromedp.WaitVisible(xpath, chromedp.BySearch),
		chromedp.WaitEnabled(xpath, chromedp.BySearch),
	)
}

// WaitPresent waits until a node matching xpath exists in the DOM.
func (c *Context) WaitPresent(ctx context.Context, xpath string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(c.bind(ctx), timeout)
	defer cancel()
	return chromedp.Run(tctx, chromedp.WaitReady(xpath, chromedp.BySearch))
}

// Elements returns a snapshot of every element matching xpath, in
// document order.
func (c *Context) Elements(ctx context.Context, xpath string) ([]Element, error) {
	var out []Element
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(`
		(function(xp) {
			const r = document.evaluate(xp, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			const out = [];
			for (let i = 0; i < r.snapshotLength; i++) {
				const n = r.snapshotItem(i);
				if (n.nodeType !== Node.ELEMENT_NODE) continue;
				out.push({
					tag: n.tagName.toLowerCase(),
					html: n.outerHTML,
					href: n.getAttribute('href') || ''
				});
			}
			return out;
		})(%s)
	`, jsString(xpath)), &out))
	if err != nil {
		return nil, fmt.Errorf("browser: query %s: %w", xpath, err)
	}
	return out, nil
}

// Click calls click() on the first element matching xpath.
func (c *Context) Click(ctx context.Context, xpath string) error {
	var clicked bool
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(`
		(function(xp) {
			const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			if (!n) return false;
			n.click();
			return true;
		})(%s)
	`, jsString(xpath)), &clicked))
	if err != nil {
		return fmt.Errorf("browser: click %s: %w", xpath, err)
	}
	if !clicked {
		return fmt.Errorf("browser: click %s: no such element", xpath)
	}
	return nil
}

// Evaluate runs script in the page and decodes its result into res, which
// may be nil.
func (c *Context) Evaluate(ctx context.Context, script string, res any) error {
	return c.run(ctx, chromedp.Evaluate(script, res))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
