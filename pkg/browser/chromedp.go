package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Chromedp drives a headless Chrome through the DevTools protocol. It is the
// alternative engine for environments without a Playwright installation.
type Chromedp struct {
	ctx        context.Context
	cancels    []context.CancelFunc
	timeout    time.Duration
	currentURL string
}

// NewChromedp launches a headless Chrome with its own allocator.
func NewChromedp(opts Options) (*Chromedp, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
		)...,
	)

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	c := &Chromedp{
		ctx:     browserCtx,
		cancels: []context.CancelFunc{cancelBrowser, cancelAlloc},
		timeout: opts.stepTimeout(),
	}

	// Start the browser now so a broken Chrome install fails fast.
	if err := c.run(context.Background()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to launch chrome: %w", err)
	}

	return c, nil
}

// run executes actions against the browser, bounded by the step timeout and
// by the caller's context.
func (c *Chromedp) run(ctx context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(stepCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Open navigates to url.
func (c *Chromedp) Open(ctx context.Context, url string) error {
	if err := c.run(ctx,
		chromedp.Navigate(url),
		chromedp.Location(&c.currentURL),
	); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Fill types value into the first element matching selector.
func (c *Chromedp) Fill(ctx context.Context, selector, value string) error {
	if err := c.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

// Click clicks the first element matching selector.
func (c *Chromedp) Click(ctx context.Context, selector string) error {
	if err := c.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.Location(&c.currentURL),
	); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression and returns the result as a string.
func (c *Chromedp) Evaluate(ctx context.Context, script string) (string, error) {
	var result string
	wrapped := fmt.Sprintf("String(%s)", script)
	if err := c.run(ctx, chromedp.Evaluate(wrapped, &result)); err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	return result, nil
}

// Cookies returns all cookies held by the browser.
func (c *Chromedp) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	if err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, ck := range raw {
			cookies = append(cookies, Cookie{Name: ck.Name, Value: ck.Value})
		}
		return nil
	})); err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return cookies, nil
}

// SetCookies injects cookies scoped to originURL.
func (c *Chromedp) SetCookies(ctx context.Context, originURL string, cookies []Cookie) error {
	if err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range cookies {
			err := network.SetCookie(ck.Name, ck.Value).
				WithURL(originURL).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

// CurrentURL reports the last observed page location.
func (c *Chromedp) CurrentURL() string {
	return c.currentURL
}

// Close shuts down the browser and its allocator.
func (c *Chromedp) Close() error {
	for _, cancel := range c.cancels {
		cancel()
	}
	return nil
}
