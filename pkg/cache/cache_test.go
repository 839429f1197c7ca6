package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/billfetch/pkg/model"
)

func testBills() []model.Bill {
	return []model.Bill{
		{
			Source:   "acme-power",
			Category: model.CategoryUtility,
			Amount:   decimal.NewFromFloat(84.20),
			Currency: "USD",
			DueDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriteThenReadFresh(t *testing.T) {
	store := New(t.TempDir())

	if err := store.Write("Acme-Power", testBills()); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	bills, ok := store.ReadFresh("acme-power", DefaultTTL)
	if !ok {
		t.Fatal("ReadFresh() reported absent for a just-written entry")
	}
	if len(bills) != 1 || bills[0].Source != "acme-power" {
		t.Errorf("ReadFresh() returned unexpected bills: %+v", bills)
	}
}

func TestReadFreshExpired(t *testing.T) {
	store := New(t.TempDir())
	store.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := store.Write("acme-power", testBills()); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	// Advance the clock past the TTL.
	store.now = func() time.Time { return time.Date(2024, 3, 2, 13, 0, 0, 0, time.UTC) }

	if _, ok := store.ReadFresh("acme-power", DefaultTTL); ok {
		t.Error("ReadFresh() returned an entry older than the TTL")
	}

	// The expired entry is still available as a stale fallback.
	bills, ok := store.ReadStale("acme-power")
	if !ok {
		t.Fatal("ReadStale() reported absent for an expired entry")
	}
	if len(bills) != 1 {
		t.Errorf("ReadStale() returned %d bills, expected 1", len(bills))
	}
}

func TestReadMissing(t *testing.T) {
	store := New(t.TempDir())

	if _, ok := store.ReadFresh("nonexistent", DefaultTTL); ok {
		t.Error("ReadFresh() reported present for a missing entry")
	}
	if _, ok := store.ReadStale("nonexistent"); ok {
		t.Error("ReadStale() reported present for a missing entry")
	}
}

func TestCorruptFileTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, ok := store.ReadFresh("broken", DefaultTTL); ok {
		t.Error("ReadFresh() returned data from a corrupt file")
	}
	if _, ok := store.ReadStale("broken"); ok {
		t.Error("ReadStale() returned data from a corrupt file")
	}
}

func TestWriteOverwrites(t *testing.T) {
	store := New(t.TempDir())

	if err := store.Write("acme-power", testBills()); err != nil {
		t.Fatal(err)
	}

	updated := testBills()
	updated[0].Amount = decimal.NewFromFloat(91.00)
	if err := store.Write("acme-power", updated); err != nil {
		t.Fatal(err)
	}

	bills, ok := store.ReadStale("acme-power")
	if !ok {
		t.Fatal("ReadStale() reported absent after overwrite")
	}
	if !bills[0].Amount.Equal(decimal.NewFromFloat(91.00)) {
		t.Errorf("amount = %s, expected 91", bills[0].Amount)
	}
}

func TestFileFormat(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	if err := store.Write("Acme-Power", testBills()); err != nil {
		t.Fatal(err)
	}

	// File name is the lower-cased source.
	data, err := os.ReadFile(filepath.Join(dir, "acme-power.json"))
	if err != nil {
		t.Fatalf("cache file not found under lower-cased name: %v", err)
	}

	var raw struct {
		Timestamp int64             `json:"timestamp"`
		Provider  string            `json:"provider"`
		Bills     []json.RawMessage `json:"bills"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("cache file is not valid JSON: %v", err)
	}
	if raw.Provider != "acme-power" {
		t.Errorf("provider = %q, expected %q", raw.Provider, "acme-power")
	}
	if raw.Timestamp == 0 {
		t.Error("timestamp missing from cache entry")
	}
	if len(raw.Bills) != 1 {
		t.Errorf("bills length = %d, expected 1", len(raw.Bills))
	}
}

func TestInvalidSourceName(t *testing.T) {
	store := New(t.TempDir())

	for _, source := range []string{"", "../escape", "a/b", "name with spaces"} {
		if err := store.Write(source, testBills()); err == nil {
			t.Errorf("Write(%q) succeeded, expected error", source)
		}
		if _, ok := store.ReadStale(source); ok {
			t.Errorf("ReadStale(%q) reported present", source)
		}
	}
}
