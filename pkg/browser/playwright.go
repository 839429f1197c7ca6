package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Playwright drives a Chromium instance through the Playwright protocol.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
}

// NewPlaywright launches a Chromium browser with a fresh context and page.
// Playwright must already be installed (playwright-go's install command).
func NewPlaywright(opts Options) (*Playwright, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &Playwright{
		pw:      pw,
		browser: browser,
		bctx:    bctx,
		page:    page,
		timeout: opts.stepTimeout(),
	}, nil
}

func (p *Playwright) timeoutMillis() *float64 {
	return playwright.Float(float64(p.timeout.Milliseconds()))
}

// Open navigates to url.
func (p *Playwright) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout: p.timeoutMillis(),
	}); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Fill types value into the first element matching selector.
func (p *Playwright) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: p.timeoutMillis(),
	}); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

// Click clicks the first element matching selector.
func (p *Playwright) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: p.timeoutMillis(),
	}); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression and returns the result as a string.
func (p *Playwright) Evaluate(ctx context.Context, script string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	result, err := p.page.Evaluate(script)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", result), nil
}

// Cookies returns the cookies of the current browser context.
func (p *Playwright) Cookies(ctx context.Context) ([]Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := p.bctx.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

// SetCookies injects cookies scoped to originURL.
func (p *Playwright) SetCookies(ctx context.Context, originURL string, cookies []Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		payload = append(payload, playwright.OptionalCookie{
			Name:  c.Name,
			Value: c.Value,
			URL:   playwright.String(originURL),
		})
	}
	if err := p.bctx.AddCookies(payload); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}
	return nil
}

// CurrentURL reports the page's location.
func (p *Playwright) CurrentURL() string {
	return p.page.URL()
}

// Close shuts down the browser and the Playwright driver.
func (p *Playwright) Close() error {
	if err := p.browser.Close(); err != nil {
		p.pw.Stop()
		return fmt.Errorf("failed to close browser: %w", err)
	}
	if err := p.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}
