package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pigeonworks-llc/billfetch/pkg/config"
	"github.com/pigeonworks-llc/billfetch/pkg/model"
)

func init() {
	register("scrape", newScrapeProvider)
}

// scrapeProvider fetches a public (or cookie-less) billing page over plain
// HTTP and extracts bill rows with CSS selectors. Extraction is a pure
// function over the fetched document, so selector changes are testable
// without hitting the live site.
type scrapeProvider struct {
	name      string
	category  model.Category
	currency  string
	url       string
	selectors config.SelectorSpec
	deps      Deps
}

func newScrapeProvider(spec config.ProviderSpec, deps Deps) (Provider, error) {
	if spec.Selectors.Row == "" || spec.Selectors.Amount == "" || spec.Selectors.DueDate == "" {
		return nil, fmt.Errorf("scrape source %s: selectors.row, selectors.amount and selectors.dueDate are required", spec.Name)
	}
	return &scrapeProvider{
		name:      spec.Name,
		category:  model.ParseCategory(spec.Category),
		currency:  spec.Currency,
		url:       spec.URL,
		selectors: spec.Selectors,
		deps:      deps,
	}, nil
}

func (p *scrapeProvider) Name() string             { return p.name }
func (p *scrapeProvider) Category() model.Category { return p.category }

func (p *scrapeProvider) Fetch(ctx context.Context) ([]model.Bill, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.deps.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("billing page returned %d", resp.StatusCode)
	}

	return p.parse(resp.Body, p.deps.now())
}

// parse extracts bills from a billing page snapshot.
func (p *scrapeProvider) parse(r io.Reader, now time.Time) ([]model.Bill, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	var bills []model.Bill
	var rowErr error

	doc.Find(p.selectors.Row).EachWithBreak(func(i int, row *goquery.Selection) bool {
		bill, err := p.parseRow(row, now)
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w", i, err)
			return false
		}
		bills = append(bills, bill)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	if len(bills) == 0 {
		// A page with zero matching rows usually means the markup changed,
		// not that the account has no bills.
		return nil, fmt.Errorf("no bill rows matched %q", p.selectors.Row)
	}

	return bills, nil
}

func (p *scrapeProvider) parseRow(row *goquery.Selection, now time.Time) (model.Bill, error) {
	amount, err := ParseAmount(row.Find(p.selectors.Amount).First().Text())
	if err != nil {
		return model.Bill{}, err
	}
	due, err := ParseDueDate(row.Find(p.selectors.DueDate).First().Text())
	if err != nil {
		return model.Bill{}, err
	}

	bill := model.Bill{
		Source:      p.name,
		Category:    p.category,
		Amount:      amount,
		Currency:    p.currency,
		DueDate:     due,
		LastUpdated: now,
	}

	if p.selectors.Account != "" {
		bill.AccountLast4 = ParseAccountLast4(row.Find(p.selectors.Account).First().Text())
	}
	if p.selectors.PayLink != "" {
		if href, ok := row.Find(p.selectors.PayLink).First().Attr("href"); ok {
			bill.PayURL = href
		}
	}
	if p.selectors.Paid != "" {
		marker := strings.ToLower(strings.TrimSpace(row.Find(p.selectors.Paid).First().Text()))
		if strings.Contains(marker, "paid") && !strings.Contains(marker, "unpaid") {
			bill.Status = model.StatusPaid
		}
	}

	return model.WithStatus(bill, now), nil
}
