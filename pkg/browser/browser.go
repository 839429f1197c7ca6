// Package browser defines the narrow automation port that session management
// and portal providers drive logins through. Two engines implement it:
// Playwright (default) and chromedp. Callers never depend on a specific
// engine, only on the Automation interface.
package browser

import (
	"context"
	"fmt"
	"time"
)

// DefaultStepTimeout bounds every individual automation step. A hung browser
// operation fails the step rather than the whole run.
const DefaultStepTimeout = 30 * time.Second

// Cookie is one persisted session cookie. Only the name/value pair is part
// of the session artifact; engines re-scope cookies to the origin they are
// injected into.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Automation is the port every browser engine implements. Each operation is
// bounded by the engine's step timeout; on expiry the operation returns an
// error and the page is left as-is.
type Automation interface {
	// Open navigates the page to url and waits for the load to settle.
	Open(ctx context.Context, url string) error
	// Fill types value into the first element matching selector.
	Fill(ctx context.Context, selector, value string) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// Evaluate runs a JavaScript expression in the page and returns its
	// result coerced to a string.
	Evaluate(ctx context.Context, script string) (string, error)
	// Cookies returns the cookies visible to the current page.
	Cookies(ctx context.Context) ([]Cookie, error)
	// SetCookies injects cookies scoped to originURL before navigation.
	SetCookies(ctx context.Context, originURL string, cookies []Cookie) error
	// CurrentURL reports the page's current location.
	CurrentURL() string
	// Close releases the underlying browser.
	Close() error
}

// Options configures engine construction.
type Options struct {
	Headless    bool
	StepTimeout time.Duration
}

func (o Options) stepTimeout() time.Duration {
	if o.StepTimeout <= 0 {
		return DefaultStepTimeout
	}
	return o.StepTimeout
}

// Engine names accepted by New.
const (
	EnginePlaywright = "playwright"
	EngineChromedp   = "chromedp"
)

// New launches a browser engine by name.
func New(engine string, opts Options) (Automation, error) {
	switch engine {
	case EnginePlaywright, "":
		return NewPlaywright(opts)
	case EngineChromedp:
		return NewChromedp(opts)
	default:
		return nil, fmt.Errorf("unknown browser engine: %q", engine)
	}
}
