// Package render formats merged bill reports for the CLI: an aligned text
// table, JSON, or CSV. Status is recomputed from the due date at render
// time so cached bills display correctly.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pigeonworks-llc/billfetch/pkg/model"
)

// Formats accepted by Render.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// Render writes bills to w in the requested format.
func Render(w io.Writer, bills []model.Bill, format string, now time.Time) error {
	switch format {
	case FormatTable, "":
		return Table(w, bills, now)
	case FormatJSON:
		return JSON(w, bills, now)
	case FormatCSV:
		return CSV(w, bills, now)
	default:
		return fmt.Errorf("unknown output format: %q", format)
	}
}

// Table writes an aligned text table.
func Table(w io.Writer, bills []model.Bill, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "SOURCE\tCATEGORY\tAMOUNT\tDUE\tSTATUS\tACCOUNT")
	for _, b := range bills {
		b = model.WithStatus(b, now)
		account := ""
		if b.AccountLast4 != "" {
			account = "****" + b.AccountLast4
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
			b.Source,
			b.Category,
			b.Amount.StringFixed(2),
			b.Currency,
			b.DueDate.Format("2006-01-02"),
			b.Status,
			account,
		)
	}

	return tw.Flush()
}

// JSON writes the bills as a JSON array with ISO-8601 timestamps.
func JSON(w io.Writer, bills []model.Bill, now time.Time) error {
	out := make([]model.Bill, len(bills))
	for i, b := range bills {
		out[i] = model.WithStatus(b, now)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// CSV writes one record per bill with a header row.
func CSV(w io.Writer, bills []model.Bill, now time.Time) error {
	cw := csv.NewWriter(w)

	header := []string{"source", "category", "amount", "currency", "dueDate", "status", "accountLast4", "payUrl"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, b := range bills {
		b = model.WithStatus(b, now)
		record := []string{
			b.Source,
			string(b.Category),
			b.Amount.StringFixed(2),
			b.Currency,
			b.DueDate.Format("2006-01-02"),
			string(b.Status),
			b.AccountLast4,
			b.PayURL,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
