package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/pigeonworks-llc/billfetch/pkg/config"
	"github.com/pigeonworks-llc/billfetch/pkg/model"
)

func init() {
	register("api", newAPIProvider)
}

// apiProvider fetches bills from a REST endpoint behind an OAuth2 bearer
// token. The token is persisted to a file out of band (an initial
// authorization flow) and only consumed here.
type apiProvider struct {
	name     string
	category model.Category
	currency string
	url      string
	source   oauth2.TokenSource
	deps     Deps
}

func newAPIProvider(spec config.ProviderSpec, deps Deps) (Provider, error) {
	if spec.TokenFile == "" {
		return nil, fmt.Errorf("api source %s: tokenFile is required", spec.Name)
	}
	return &apiProvider{
		name:     spec.Name,
		category: model.ParseCategory(spec.Category),
		currency: spec.Currency,
		url:      spec.URL,
		source:   &fileTokenSource{path: spec.TokenFile},
		deps:     deps,
	}, nil
}

func (p *apiProvider) Name() string             { return p.name }
func (p *apiProvider) Category() model.Category { return p.category }

// apiBill is the wire format of the bills endpoint.
type apiBill struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	DueDate      string `json:"due_date"`
	Status       string `json:"status,omitempty"`
	AccountLast4 string `json:"account_last4,omitempty"`
	PayURL       string `json:"pay_url,omitempty"`
}

func (p *apiProvider) Fetch(ctx context.Context) ([]model.Bill, error) {
	// Route oauth2's transport through our timeout-bounded client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.deps.httpClient())
	client := oauth2.NewClient(ctx, p.source)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bills: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bills endpoint returned %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Bills []apiBill `json:"bills"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode bills response: %w", err)
	}

	now := p.deps.now()
	bills := make([]model.Bill, 0, len(payload.Bills))
	for i, raw := range payload.Bills {
		bill, err := p.toBill(raw, now)
		if err != nil {
			return nil, fmt.Errorf("bill %d from %s: %w", i, p.name, err)
		}
		bills = append(bills, bill)
	}

	return bills, nil
}

func (p *apiProvider) toBill(raw apiBill, now time.Time) (model.Bill, error) {
	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return model.Bill{}, err
	}
	due, err := ParseDueDate(raw.DueDate)
	if err != nil {
		return model.Bill{}, err
	}

	currency := raw.Currency
	if currency == "" {
		currency = p.currency
	}

	bill := model.Bill{
		Source:       p.name,
		Category:     p.category,
		Amount:       amount,
		Currency:     currency,
		DueDate:      due,
		LastUpdated:  now,
		PayURL:       raw.PayURL,
		AccountLast4: raw.AccountLast4,
	}
	if raw.Status == string(model.StatusPaid) {
		bill.Status = model.StatusPaid
	}
	return model.WithStatus(bill, now), nil
}

// fileTokenSource yields a bearer token persisted as JSON on disk. The
// token is re-read per fetch so an out-of-band refresh is picked up without
// restarting.
type fileTokenSource struct {
	path string
}

func (s *fileTokenSource) Token() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token file %s has no access token", s.path)
	}
	return &token, nil
}
