package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pigeonworks-llc/billfetch/pkg/config"
	"github.com/pigeonworks-llc/billfetch/pkg/model"
)

func writeTokenFile(t *testing.T, accessToken string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.json")
	data, _ := json.Marshal(map[string]string{
		"access_token": accessToken,
		"token_type":   "Bearer",
	})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAPIFetch(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"bills": []map[string]string{
				{"amount": "1250.00", "currency": "USD", "due_date": "2024-03-05", "account_last4": "4417"},
				{"amount": "35.00", "currency": "USD", "due_date": "2024-02-01", "status": "paid"},
			},
		})
	}))
	defer server.Close()

	spec := config.ProviderSpec{
		Name:      "first-national",
		Kind:      "api",
		Category:  "bank",
		Currency:  "USD",
		URL:       server.URL,
		TokenFile: writeTokenFile(t, "secret-token"),
	}

	p, err := newAPIProvider(spec, Deps{Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}

	bills, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, expected the persisted bearer token", gotAuth)
	}
	if len(bills) != 2 {
		t.Fatalf("Fetch() returned %d bills, expected 2", len(bills))
	}
	if bills[0].Source != "first-national" || bills[0].Category != model.CategoryBank {
		t.Errorf("bill identity = %s/%s", bills[0].Source, bills[0].Category)
	}
	if bills[0].AccountLast4 != "4417" {
		t.Errorf("accountLast4 = %q", bills[0].AccountLast4)
	}
	if bills[1].Status != model.StatusPaid {
		t.Errorf("explicit paid status lost: %q", bills[1].Status)
	}
}

func TestAPIFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	spec := config.ProviderSpec{
		Name: "first-national", Kind: "api", URL: server.URL,
		TokenFile: writeTokenFile(t, "tok"),
	}
	p, _ := newAPIProvider(spec, Deps{Now: fixedNow})

	if _, err := p.Fetch(context.Background()); err == nil {
		t.Error("Fetch() succeeded against a rate-limited endpoint")
	}
}

func TestAPIFetchMissingToken(t *testing.T) {
	spec := config.ProviderSpec{
		Name: "first-national", Kind: "api", URL: "https://api.example.com",
		TokenFile: filepath.Join(t.TempDir(), "missing.json"),
	}
	p, _ := newAPIProvider(spec, Deps{Now: fixedNow})

	if _, err := p.Fetch(context.Background()); err == nil {
		t.Error("Fetch() succeeded without a persisted token")
	}
}

func TestAPIRequiresTokenFile(t *testing.T) {
	spec := config.ProviderSpec{Name: "x", Kind: "api", URL: "https://api.example.com"}
	if _, err := newAPIProvider(spec, Deps{}); err == nil {
		t.Error("newAPIProvider() succeeded without a tokenFile")
	}
}

func TestResolve(t *testing.T) {
	specs := []config.ProviderSpec{
		{
			Name: "metro-power", Kind: "scrape", URL: "https://x",
			Selectors: config.SelectorSpec{Row: "tr", Amount: ".a", DueDate: ".d"},
		},
		{
			Name: "first-national", Kind: "api", URL: "https://y",
			TokenFile: writeTokenFile(t, "tok"),
		},
	}

	providers, err := Resolve(specs, Deps{})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if len(providers) != 2 {
		t.Fatalf("Resolve() returned %d providers, expected 2", len(providers))
	}
	if providers[0].Name() != "metro-power" || providers[1].Name() != "first-national" {
		t.Errorf("provider order: %s, %s", providers[0].Name(), providers[1].Name())
	}
}

func TestResolveUnknownKind(t *testing.T) {
	if _, err := Resolve([]config.ProviderSpec{{Name: "x", Kind: "fax"}}, Deps{}); err == nil {
		t.Error("Resolve() succeeded for an unregistered kind")
	}
}
