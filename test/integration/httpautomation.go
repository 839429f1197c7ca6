package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/pigeonworks-llc/billfetch/pkg/browser"
)

// httpAutomation implements the browser port over a plain HTTP client with
// a cookie jar. It understands only the emulator's login form, which is
// enough to exercise the portal provider and session manager end to end
// without a real browser.
type httpAutomation struct {
	client     *http.Client
	baseURL    *url.URL
	currentURL string
	lastBody   string
	filled     map[string]string
}

func newHTTPAutomation(base string) (*httpAutomation, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	return &httpAutomation{
		client:  &http.Client{Jar: jar},
		baseURL: u,
		filled:  make(map[string]string),
	}, nil
}

func (h *httpAutomation) Open(ctx context.Context, pageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	h.lastBody = string(body)
	h.currentURL = resp.Request.URL.String()
	return nil
}

func (h *httpAutomation) Fill(ctx context.Context, selector, value string) error {
	// Map the form selectors to field names the way a browser would.
	switch {
	case strings.Contains(selector, "email"):
		h.filled["email"] = value
	case strings.Contains(selector, "password"):
		h.filled["password"] = value
	default:
		return fmt.Errorf("unknown field selector: %s", selector)
	}
	return nil
}

func (h *httpAutomation) Click(ctx context.Context, selector string) error {
	// The only clickable element in the emulator is the login submit.
	form := url.Values{}
	for k, v := range h.filled {
		form.Set(k, v)
	}

	loginURL := h.baseURL.JoinPath("/login").String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	h.lastBody = string(body)
	h.currentURL = resp.Request.URL.String()
	return nil
}

func (h *httpAutomation) Evaluate(ctx context.Context, script string) (string, error) {
	// The portal's bills script reads the account bills endpoint.
	if err := h.Open(ctx, h.baseURL.JoinPath("/account/bills.json").String()); err != nil {
		return "", err
	}
	return h.lastBody, nil
}

func (h *httpAutomation) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	var cookies []browser.Cookie
	for _, c := range h.client.Jar.Cookies(h.baseURL) {
		cookies = append(cookies, browser.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

func (h *httpAutomation) SetCookies(ctx context.Context, originURL string, cookies []browser.Cookie) error {
	u, err := url.Parse(originURL)
	if err != nil {
		return err
	}
	var httpCookies []*http.Cookie
	for _, c := range cookies {
		httpCookies = append(httpCookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	h.client.Jar.SetCookies(u, httpCookies)
	return nil
}

func (h *httpAutomation) CurrentURL() string { return h.currentURL }
func (h *httpAutomation) Close() error       { return nil }
