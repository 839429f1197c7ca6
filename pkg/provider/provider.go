// Package provider implements the bill sources behind the fetch
// orchestrator. Three access methods exist: an OAuth2 REST API, plain HTML
// scraping, and an automated browser login against a third-party portal.
// The orchestrator only sees the Provider interface; how a source obtains
// its data is its own business.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pigeonworks-llc/billfetch/pkg/browser"
	"github.com/pigeonworks-llc/billfetch/pkg/config"
	"github.com/pigeonworks-llc/billfetch/pkg/model"
	"github.com/pigeonworks-llc/billfetch/pkg/session"
)

// Provider is one configured bill source. Fetch may fail for any reason;
// the orchestrator recovers per source.
type Provider interface {
	Name() string
	Category() model.Category
	// Fetch obtains the source's current bills. A single-bill source
	// returns a one-element slice.
	Fetch(ctx context.Context) ([]model.Bill, error)
}

// Deps are the shared collaborators injected into provider factories.
type Deps struct {
	// HTTPClient serves api and scrape sources. Left nil, a client with a
	// 30s timeout is used.
	HTTPClient *http.Client
	// SessionStore and SessionTTL back the per-source session managers of
	// portal sources.
	SessionStore *session.Store
	SessionTTL   time.Duration
	// NewBrowser launches a browser for one portal fetch. Each fetch gets
	// its own instance so concurrent sources stay isolated.
	NewBrowser func() (browser.Automation, error)
	// Credentials maps source names to login credentials.
	Credentials map[string]config.Credentials
	// Now is the clock; tests override it.
	Now func() time.Time
}

func (d Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Factory builds a Provider from its configuration.
type Factory func(spec config.ProviderSpec, deps Deps) (Provider, error)

// registry maps a provider kind to its factory. Kinds are registered at
// compile time; sources are resolved from configuration, never discovered
// by filesystem introspection.
var registry = map[string]Factory{}

func register(kind string, factory Factory) {
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("provider kind registered twice: %s", kind))
	}
	registry[kind] = factory
}

// Resolve instantiates a Provider for each spec.
func Resolve(specs []config.ProviderSpec, deps Deps) ([]Provider, error) {
	providers := make([]Provider, 0, len(specs))
	for _, spec := range specs {
		factory, ok := registry[spec.Kind]
		if !ok {
			return nil, fmt.Errorf("no provider registered for kind %q (source %s)", spec.Kind, spec.Name)
		}
		p, err := factory(spec, deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", spec.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}
