package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/pigeonworks-llc/billfetch/pkg/browser"
	"github.com/pigeonworks-llc/billfetch/pkg/config"
	"github.com/pigeonworks-llc/billfetch/pkg/model"
	"github.com/pigeonworks-llc/billfetch/pkg/session"
)

func init() {
	register("portal", newPortalProvider)
}

// portalProvider fetches bills from a third-party web portal that requires
// a login. Sessions persist across runs via the session store; a fetch only
// drives the full login flow when no saved session can be restored.
type portalProvider struct {
	name     string
	category model.Category
	currency string
	billsURL string
	login    config.LoginSpec
	flow     *portalFlow
	manager  *session.Manager
	deps     Deps
}

func newPortalProvider(spec config.ProviderSpec, deps Deps) (Provider, error) {
	if deps.NewBrowser == nil {
		return nil, fmt.Errorf("portal source %s: no browser engine configured", spec.Name)
	}
	if deps.SessionStore == nil {
		return nil, fmt.Errorf("portal source %s: no session store configured", spec.Name)
	}
	creds, ok := deps.Credentials[spec.Name]
	if !ok || creds.Email == "" || creds.Password == "" {
		return nil, fmt.Errorf("portal source %s: credentials not configured", spec.Name)
	}

	successRE, err := regexp.Compile(spec.Login.SuccessPattern)
	if err != nil {
		return nil, fmt.Errorf("portal source %s: invalid successPattern: %w", spec.Name, err)
	}

	return &portalProvider{
		name:     spec.Name,
		category: model.ParseCategory(spec.Category),
		currency: spec.Currency,
		billsURL: spec.URL,
		login:    spec.Login,
		flow: &portalFlow{
			login:     spec.Login,
			creds:     creds,
			successRE: successRE,
		},
		manager: session.NewManager(deps.SessionStore, deps.SessionTTL),
		deps:    deps,
	}, nil
}

func (p *portalProvider) Name() string             { return p.name }
func (p *portalProvider) Category() model.Category { return p.category }

func (p *portalProvider) Fetch(ctx context.Context) ([]model.Bill, error) {
	auto, err := p.deps.NewBrowser()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer auto.Close()

	if err := p.manager.EnsureSession(ctx, p.name, p.flow, auto); err != nil {
		return nil, err
	}

	if err := auto.Open(ctx, p.billsURL); err != nil {
		return nil, fmt.Errorf("failed to open bills page: %w", err)
	}

	raw, err := auto.Evaluate(ctx, p.login.BillsScript)
	if err != nil {
		return nil, fmt.Errorf("failed to extract bills: %w", err)
	}

	return p.parseBills(raw, p.deps.now())
}

// portalBill is the shape BillsScript must yield, serialized as JSON.
type portalBill struct {
	Amount       string `json:"amount"`
	DueDate      string `json:"dueDate"`
	Status       string `json:"status,omitempty"`
	AccountLast4 string `json:"accountLast4,omitempty"`
	PayURL       string `json:"payUrl,omitempty"`
}

// parseBills converts the page's extracted JSON into bill records. Pure, so
// a portal's extraction script output is testable without a browser.
func (p *portalProvider) parseBills(raw string, now time.Time) ([]model.Bill, error) {
	var extracted []portalBill
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		// A single-bill portal may yield one object instead of an array.
		var one portalBill
		if err2 := json.Unmarshal([]byte(raw), &one); err2 != nil {
			return nil, fmt.Errorf("bills script yielded invalid JSON: %w", err)
		}
		extracted = []portalBill{one}
	}

	bills := make([]model.Bill, 0, len(extracted))
	for i, pb := range extracted {
		amount, err := ParseAmount(pb.Amount)
		if err != nil {
			return nil, fmt.Errorf("bill %d from %s: %w", i, p.name, err)
		}
		due, err := ParseDueDate(pb.DueDate)
		if err != nil {
			return nil, fmt.Errorf("bill %d from %s: %w", i, p.name, err)
		}

		bill := model.Bill{
			Source:       p.name,
			Category:     p.category,
			Amount:       amount,
			Currency:     p.currency,
			DueDate:      due,
			LastUpdated:  now,
			PayURL:       pb.PayURL,
			AccountLast4: pb.AccountLast4,
		}
		if pb.Status == string(model.StatusPaid) {
			bill.Status = model.StatusPaid
		}
		bills = append(bills, model.WithStatus(bill, now))
	}

	return bills, nil
}

// portalFlow is the session.Flow for one portal source: submit the login
// form, then verify the post-login URL against the configured pattern.
type portalFlow struct {
	login     config.LoginSpec
	creds     config.Credentials
	successRE *regexp.Regexp
}

func (f *portalFlow) OriginURL() string { return f.login.URL }

func (f *portalFlow) Login(ctx context.Context, auto browser.Automation) error {
	if err := auto.Open(ctx, f.login.URL); err != nil {
		return err
	}
	if err := auto.Fill(ctx, f.login.EmailSelector, f.creds.Email); err != nil {
		return err
	}
	if err := auto.Fill(ctx, f.login.PasswordSelector, f.creds.Password); err != nil {
		return err
	}
	return auto.Click(ctx, f.login.SubmitSelector)
}

func (f *portalFlow) Verify(ctx context.Context, auto browser.Automation) (bool, error) {
	return f.successRE.MatchString(auto.CurrentURL()), nil
}
