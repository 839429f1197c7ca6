// Package integration hosts a fake biller behind a chi router so the
// provider access methods can be exercised end to end without touching a
// real utility or bank.
package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// EmulatorBill is a bill as the fake biller exposes it, both on its JSON
// API and its account page.
type EmulatorBill struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	DueDate      string `json:"due_date"`
	Status       string `json:"status,omitempty"`
	AccountLast4 string `json:"account_last4,omitempty"`
}

// Emulator simulates one biller with three surfaces: a public billing page
// (scrape targets), a bearer-token JSON API, and a cookie-gated account
// portal behind a login form.
type Emulator struct {
	Bills    []EmulatorBill
	APIToken string
	Email    string
	Password string

	// Requests counts every HTTP request, so tests can assert that a
	// cache-satisfied run never contacts the biller.
	Requests atomic.Int64

	// LoginPosts counts credential submissions, so tests can assert that a
	// restored session never triggers a second login.
	LoginPosts atomic.Int64

	sessionCookie string
}

// NewEmulator creates an Emulator with fixed credentials and sample bills.
func NewEmulator() *Emulator {
	return &Emulator{
		Bills: []EmulatorBill{
			{Amount: "84.20", Currency: "USD", DueDate: "2024-03-01", AccountLast4: "4821"},
			{Amount: "1120.00", Currency: "USD", DueDate: "2024-02-10", Status: "paid"},
		},
		APIToken:      "emulator-api-token",
		Email:         "user@example.com",
		Password:      "hunter2",
		sessionCookie: "emulator-session",
	}
}

// Router builds the chi router for all three surfaces.
func (e *Emulator) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			e.Requests.Add(1)
			next.ServeHTTP(w, req)
		})
	})

	// Public billing page, scrapeable without auth.
	r.Get("/billing", e.handleBillingPage)

	// JSON API behind a bearer token.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(e.requireBearer)
		r.Get("/bills", e.handleAPIBills)
	})

	// Cookie-gated account portal.
	r.Get("/login", e.handleLoginPage)
	r.Post("/login", e.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(e.requireSession)
		r.Get("/account", e.handleAccountPage)
		r.Get("/account/bills.json", e.handleAccountBills)
	})

	return r
}

func (e *Emulator) handleBillingPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body><table class="bills">`)
	for _, b := range e.Bills {
		status := b.Status
		if status == "" {
			status = "unpaid"
		}
		fmt.Fprintf(w, `<tr class="bill"><td class="account">Account ****%s</td><td class="amount">$%s</td><td class="due">%s</td><td class="status">%s</td></tr>`,
			b.AccountLast4, b.Amount, b.DueDate, status)
	}
	fmt.Fprint(w, `</table></body></html>`)
}

func (e *Emulator) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+e.APIToken {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (e *Emulator) handleAPIBills(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"bills": e.Bills})
}

func (e *Emulator) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// An already-authenticated visitor is sent straight to the account
	// page, the way real portals behave.
	if cookie, err := r.Cookie("sid"); err == nil && cookie.Value == e.sessionCookie {
		http.Redirect(w, r, "/account", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body><form method="post" action="/login">
<input name="email" type="email"><input name="password" type="password">
<button type="submit">Sign in</button></form></body></html>`)
}

func (e *Emulator) handleLogin(w http.ResponseWriter, r *http.Request) {
	e.LoginPosts.Add(1)
	if r.FormValue("email") != e.Email || r.FormValue("password") != e.Password {
		http.Redirect(w, r, "/login?error=bad_credentials", http.StatusFound)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:  "sid",
		Value: e.sessionCookie,
		Path:  "/",
	})
	http.Redirect(w, r, "/account", http.StatusFound)
}

func (e *Emulator) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("sid")
		if err != nil || cookie.Value != e.sessionCookie {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (e *Emulator) handleAccountPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body><h1>Your account</h1></body></html>`)
}

func (e *Emulator) handleAccountBills(w http.ResponseWriter, r *http.Request) {
	type portalBill struct {
		Amount       string `json:"amount"`
		DueDate      string `json:"dueDate"`
		Status       string `json:"status,omitempty"`
		AccountLast4 string `json:"accountLast4,omitempty"`
	}

	out := make([]portalBill, 0, len(e.Bills))
	for _, b := range e.Bills {
		out = append(out, portalBill{
			Amount:       b.Amount,
			DueDate:      b.DueDate,
			Status:       b.Status,
			AccountLast4: b.AccountLast4,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
