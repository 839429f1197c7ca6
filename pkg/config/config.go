// Package config provides configuration management for billfetch.
// It loads configuration from environment variables and .env files once at
// startup; the resulting Config is passed explicitly to the components that
// need it, nothing reads the environment later.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	// DataDir is the root for cache files, session files, and the history
	// database. Default: ~/.billfetch.
	DataDir string
	// ProvidersFile is the YAML file listing the configured sources.
	ProvidersFile string
	// CacheTTL is the freshness window for cached bills.
	CacheTTL time.Duration
	// SessionTTL is how long a persisted login session is trusted.
	SessionTTL time.Duration
	// Browser selects the automation engine and its behavior.
	Browser BrowserConfig
	// Credentials maps a source name to its login credentials, loaded from
	// BILLFETCH_CRED_<SOURCE>_EMAIL / _PASSWORD variables.
	Credentials map[string]Credentials
	Debug       bool
}

// BrowserConfig represents browser automation configuration.
type BrowserConfig struct {
	Engine      string // "playwright" (default) or "chromedp"
	Headless    bool
	StepTimeout time.Duration
}

// Credentials are a source's login credentials, supplied out of band via
// the environment. They are never written to disk.
type Credentials struct {
	Email    string
	Password string
}

const (
	defaultCacheTTL    = 24 * time.Hour
	defaultSessionTTL  = 24 * time.Hour
	defaultStepTimeout = 30 * time.Second
	credPrefix         = "BILLFETCH_CRED_"
)

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	dataDir := os.Getenv("BILLFETCH_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".billfetch")
	}

	cacheTTL, err := parseDurationEnv("BILLFETCH_CACHE_TTL", defaultCacheTTL)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parseDurationEnv("BILLFETCH_SESSION_TTL", defaultSessionTTL)
	if err != nil {
		return nil, err
	}
	stepTimeout, err := parseDurationEnv("BILLFETCH_STEP_TIMEOUT", defaultStepTimeout)
	if err != nil {
		return nil, err
	}

	config := &Config{
		DataDir:       dataDir,
		ProvidersFile: getEnvOrDefault("BILLFETCH_PROVIDERS_FILE", "providers.yaml"),
		CacheTTL:      cacheTTL,
		SessionTTL:    sessionTTL,
		Browser: BrowserConfig{
			Engine:      getEnvOrDefault("BILLFETCH_BROWSER_ENGINE", "playwright"),
			Headless:    os.Getenv("BILLFETCH_HEADLESS") != "false",
			StepTimeout: stepTimeout,
		},
		Credentials: loadCredentials(os.Environ()),
		Debug:       os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// CacheDir returns the directory holding per-source cache files.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// SessionDir returns the directory holding per-source session files.
func (c *Config) SessionDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// DatabasePath returns the fetch-history database path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "billfetch.db")
}

// loadCredentials extracts per-source credentials from the environment.
// BILLFETCH_CRED_CITY_TEL_EMAIL becomes the email for source "city-tel"
// (underscores in the source segment map to hyphens, lower-cased).
func loadCredentials(environ []string) map[string]Credentials {
	creds := make(map[string]Credentials)

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, credPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, credPrefix)

		var field string
		var source string
		switch {
		case strings.HasSuffix(rest, "_EMAIL"):
			field = "email"
			source = strings.TrimSuffix(rest, "_EMAIL")
		case strings.HasSuffix(rest, "_PASSWORD"):
			field = "password"
			source = strings.TrimSuffix(rest, "_PASSWORD")
		default:
			continue
		}

		name := strings.ToLower(strings.ReplaceAll(source, "_", "-"))
		cred := creds[name]
		if field == "email" {
			cred.Email = value
		} else {
			cred.Password = value
		}
		creds[name] = cred
	}

	return creds
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv parses a duration from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}

	return parsed, nil
}
