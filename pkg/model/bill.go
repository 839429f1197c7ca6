// Package model defines the normalized bill record shared by providers,
// the cache layer, and the fetch orchestrator.
package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies the kind of biller a record came from.
type Category string

const (
	CategoryUtility      Category = "utility"
	CategoryBank         Category = "bank"
	CategoryCredit       Category = "credit"
	CategoryInsurance    Category = "insurance"
	CategorySubscription Category = "subscription"
	CategoryOther        Category = "other"
)

// ParseCategory maps a string to a known Category, falling back to "other".
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryUtility, CategoryBank, CategoryCredit, CategoryInsurance, CategorySubscription:
		return Category(s)
	default:
		return CategoryOther
	}
}

// Status is derived from the due date at display time. A provider may set
// StatusPaid directly; once paid, the status is never recomputed.
type Status string

const (
	StatusPending Status = "pending"
	StatusDue     Status = "due"
	StatusOverdue Status = "overdue"
	StatusPaid    Status = "paid"
)

// dueSoonWindow is how far ahead of the due date a bill is reported as "due".
const dueSoonWindow = 7 * 24 * time.Hour

// Bill is a normalized fact about money owed to one source. A Bill is
// immutable once produced by a fetch; a later fetch produces a new value.
type Bill struct {
	Source       string          `json:"source"`
	Category     Category        `json:"category"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	DueDate      time.Time       `json:"dueDate"`
	Status       Status          `json:"status"`
	LastUpdated  time.Time       `json:"lastUpdated"`
	PayURL       string          `json:"payUrl,omitempty"`
	AccountLast4 string          `json:"accountLast4,omitempty"`
}

// DeriveStatus computes the display status of a bill relative to now.
// An explicit paid status is sticky and returned unchanged.
func DeriveStatus(b Bill, now time.Time) Status {
	if b.Status == StatusPaid {
		return StatusPaid
	}
	if b.DueDate.Before(now) {
		return StatusOverdue
	}
	if !b.DueDate.After(now.Add(dueSoonWindow)) {
		return StatusDue
	}
	return StatusPending
}

// WithStatus returns a copy of b with its status derived relative to now.
func WithStatus(b Bill, now time.Time) Bill {
	b.Status = DeriveStatus(b, now)
	return b
}

// SortByDueDate orders bills ascending by due date in place. The sort is
// stable: bills sharing a due date keep their merge-arrival order.
func SortByDueDate(bills []Bill) {
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].DueDate.Before(bills[j].DueDate)
	})
}
