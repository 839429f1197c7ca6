package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderSpec describes one configured bill source. Kind selects the access
// method; the remaining fields are interpreted by the matching provider
// implementation.
type ProviderSpec struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // api, scrape, or portal
	Category string `yaml:"category"`
	Currency string `yaml:"currency"`

	// URL is the bills endpoint: the JSON endpoint for api sources, the
	// page to scrape for scrape sources, the authenticated bills page for
	// portal sources.
	URL string `yaml:"url"`

	// TokenFile holds the persisted OAuth2 token for api sources.
	TokenFile string `yaml:"tokenFile,omitempty"`

	// Selectors drive DOM extraction for scrape sources.
	Selectors SelectorSpec `yaml:"selectors,omitempty"`

	// Login drives the browser login flow for portal sources.
	Login LoginSpec `yaml:"login,omitempty"`
}

// SelectorSpec holds the CSS selectors used to extract bill fields from a
// scraped page. Row is matched first; the field selectors are evaluated
// inside each row.
type SelectorSpec struct {
	Row     string `yaml:"row"`
	Amount  string `yaml:"amount"`
	DueDate string `yaml:"dueDate"`
	Account string `yaml:"account,omitempty"`
	PayLink string `yaml:"payLink,omitempty"`
	Paid    string `yaml:"paid,omitempty"`
}

// LoginSpec describes a portal source's login flow.
type LoginSpec struct {
	URL              string `yaml:"url"`
	EmailSelector    string `yaml:"emailSelector"`
	PasswordSelector string `yaml:"passwordSelector"`
	SubmitSelector   string `yaml:"submitSelector"`
	// SuccessPattern is a regexp matched against the post-login URL to
	// verify the session reached an authenticated state.
	SuccessPattern string `yaml:"successPattern"`
	// BillsScript is a JavaScript expression evaluated on the bills page;
	// it must yield a JSON array of bill objects.
	BillsScript string `yaml:"billsScript"`
}

// ProvidersConfig is the top-level providers.yaml document.
type ProvidersConfig struct {
	Providers []ProviderSpec `yaml:"providers"`
}

// LoadProviders parses the providers file and validates each entry.
func LoadProviders(path string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var cfg ProvidersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	seen := make(map[string]bool)
	for i, spec := range cfg.Providers {
		if spec.Name == "" {
			return nil, fmt.Errorf("provider %d: name is required", i)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate provider name: %s", spec.Name)
		}
		seen[spec.Name] = true

		switch spec.Kind {
		case "api", "scrape", "portal":
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", spec.Name, spec.Kind)
		}
		if spec.URL == "" {
			return nil, fmt.Errorf("provider %s: url is required", spec.Name)
		}
		if spec.Kind == "portal" && spec.Login.URL == "" {
			return nil, fmt.Errorf("provider %s: login.url is required for portal sources", spec.Name)
		}
	}

	return &cfg, nil
}

// Select returns the specs whose names are in names, preserving the order of
// the providers file. Unknown names are an error, not silently skipped.
func (c *ProvidersConfig) Select(names []string) ([]ProviderSpec, error) {
	if len(names) == 0 {
		return c.Providers, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	var specs []ProviderSpec
	for _, spec := range c.Providers {
		if wanted[spec.Name] {
			specs = append(specs, spec)
			delete(wanted, spec.Name)
		}
	}

	if len(wanted) > 0 {
		var missing []string
		for n := range wanted {
			missing = append(missing, n)
		}
		return nil, fmt.Errorf("unknown providers: %v", missing)
	}

	return specs, nil
}
