package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pigeonworks-llc/billfetch/pkg/browser"
	"github.com/pigeonworks-llc/billfetch/pkg/cache"
	"github.com/pigeonworks-llc/billfetch/pkg/config"
	"github.com/pigeonworks-llc/billfetch/pkg/model"
	"github.com/pigeonworks-llc/billfetch/pkg/orchestrator"
	"github.com/pigeonworks-llc/billfetch/pkg/provider"
	"github.com/pigeonworks-llc/billfetch/pkg/session"
)

func startEmulator(t *testing.T) (*Emulator, *httptest.Server) {
	t.Helper()
	emu := NewEmulator()
	server := httptest.NewServer(emu.Router())
	t.Cleanup(server.Close)
	return emu, server
}

func writeToken(t *testing.T, token string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.json")
	data, _ := json.Marshal(map[string]string{"access_token": token, "token_type": "Bearer"})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func scrapeSpec(base string) config.ProviderSpec {
	return config.ProviderSpec{
		Name:     "metro-power",
		Kind:     "scrape",
		Category: "utility",
		Currency: "USD",
		URL:      base + "/billing",
		Selectors: config.SelectorSpec{
			Row:     "table.bills tr.bill",
			Amount:  "td.amount",
			DueDate: "td.due",
			Account: "td.account",
			Paid:    "td.status",
		},
	}
}

func apiSpec(base, tokenFile string) config.ProviderSpec {
	return config.ProviderSpec{
		Name:      "first-national",
		Kind:      "api",
		Category:  "bank",
		Currency:  "USD",
		URL:       base + "/api/v1/bills",
		TokenFile: tokenFile,
	}
}

func portalSpec(base string) config.ProviderSpec {
	return config.ProviderSpec{
		Name:     "city-tel",
		Kind:     "portal",
		Category: "subscription",
		Currency: "USD",
		URL:      base + "/account/bills.json",
		Login: config.LoginSpec{
			URL:              base + "/login",
			EmailSelector:    "input[name='email']",
			PasswordSelector: "input[name='password']",
			SubmitSelector:   "button[type='submit']",
			SuccessPattern:   `/account`,
			BillsScript:      "document.body.innerText",
		},
	}
}

func TestScrapeAgainstEmulator(t *testing.T) {
	_, server := startEmulator(t)

	providers, err := provider.Resolve([]config.ProviderSpec{scrapeSpec(server.URL)}, provider.Deps{})
	if err != nil {
		t.Fatal(err)
	}

	bills, err := providers[0].Fetch(context.Background())
	if err != nil {
		t.Fatalf("scrape fetch failed: %v", err)
	}
	if len(bills) != 2 {
		t.Fatalf("scraped %d bills, expected 2", len(bills))
	}
	if bills[0].AccountLast4 != "4821" {
		t.Errorf("accountLast4 = %q", bills[0].AccountLast4)
	}
	if bills[1].Status != model.StatusPaid {
		t.Errorf("paid marker not picked up: %q", bills[1].Status)
	}
}

func TestAPIAgainstEmulator(t *testing.T) {
	emu, server := startEmulator(t)

	spec := apiSpec(server.URL, writeToken(t, emu.APIToken))
	providers, err := provider.Resolve([]config.ProviderSpec{spec}, provider.Deps{})
	if err != nil {
		t.Fatal(err)
	}

	bills, err := providers[0].Fetch(context.Background())
	if err != nil {
		t.Fatalf("api fetch failed: %v", err)
	}
	if len(bills) != 2 {
		t.Fatalf("fetched %d bills, expected 2", len(bills))
	}

	// A wrong token is a provider failure, not a crash.
	bad := apiSpec(server.URL, writeToken(t, "wrong-token"))
	badProviders, err := provider.Resolve([]config.ProviderSpec{bad}, provider.Deps{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := badProviders[0].Fetch(context.Background()); err == nil {
		t.Error("fetch succeeded with a rejected token")
	}
}

func TestPortalAgainstEmulator(t *testing.T) {
	emu, server := startEmulator(t)
	sessionStore := session.NewStore(t.TempDir())

	deps := provider.Deps{
		SessionStore: sessionStore,
		SessionTTL:   24 * time.Hour,
		NewBrowser: func() (browser.Automation, error) {
			return newHTTPAutomation(server.URL)
		},
		Credentials: map[string]config.Credentials{
			"city-tel": {Email: emu.Email, Password: emu.Password},
		},
	}

	providers, err := provider.Resolve([]config.ProviderSpec{portalSpec(server.URL)}, deps)
	if err != nil {
		t.Fatal(err)
	}

	bills, err := providers[0].Fetch(context.Background())
	if err != nil {
		t.Fatalf("portal fetch failed: %v", err)
	}
	if len(bills) != 2 {
		t.Fatalf("fetched %d bills, expected 2", len(bills))
	}

	// The login left a persisted session behind.
	record, ok := sessionStore.Read("city-tel")
	if !ok || len(record.Data) == 0 {
		t.Fatal("no session persisted after portal login")
	}

	// A second fetch restores the saved session; the login form is never
	// posted again.
	p2, err := provider.Resolve([]config.ProviderSpec{portalSpec(server.URL)}, deps)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p2[0].Fetch(context.Background()); err != nil {
		t.Fatalf("second portal fetch failed: %v", err)
	}
	if got := emu.LoginPosts.Load(); got != 1 {
		t.Errorf("login posted %d times across two fetches, expected the second fetch to restore the saved session", got)
	}
}

func TestOrchestratedRunAgainstEmulator(t *testing.T) {
	emu, server := startEmulator(t)

	specs := []config.ProviderSpec{
		scrapeSpec(server.URL),
		apiSpec(server.URL, writeToken(t, emu.APIToken)),
	}
	providers, err := provider.Resolve(specs, provider.Deps{})
	if err != nil {
		t.Fatal(err)
	}

	// A source that always fails joins the run to prove isolation.
	providers = append(providers, failingProvider{})

	store := cache.New(t.TempDir())
	orch := orchestrator.New(store, cache.DefaultTTL)

	report := orch.FetchAll(context.Background(), providers, false)

	if len(report.Bills) != 4 {
		t.Fatalf("merged %d bills, expected 4 (2 scraped + 2 from the API)", len(report.Bills))
	}
	for i := 1; i < len(report.Bills); i++ {
		if report.Bills[i].DueDate.Before(report.Bills[i-1].DueDate) {
			t.Fatalf("merged bills not sorted by due date at index %d", i)
		}
	}
	if report.Failed() {
		t.Error("run reported as failed although two sources succeeded")
	}

	// A second run is served entirely from cache: the emulator sees no
	// further requests.
	requestsBefore := emu.Requests.Load()
	report2 := orch.FetchAll(context.Background(), providers, false)

	if got := emu.Requests.Load(); got != requestsBefore {
		t.Errorf("cache-satisfied run contacted the biller %d times", got-requestsBefore)
	}
	if len(report2.Bills) != 4 {
		t.Errorf("cached run merged %d bills, expected 4", len(report2.Bills))
	}
	for _, s := range report2.Sources {
		if s.Source == "unreachable" {
			continue
		}
		if s.Outcome != orchestrator.OutcomeCached {
			t.Errorf("source %s outcome = %q, expected cached", s.Source, s.Outcome)
		}
	}
}

type failingProvider struct{}

func (failingProvider) Name() string             { return "unreachable" }
func (failingProvider) Category() model.Category { return model.CategoryOther }
func (failingProvider) Fetch(ctx context.Context) ([]model.Bill, error) {
	return nil, errors.New("connection refused")
}
