package matcher

import (
	"testing"
	"time"

	"cashflow-reconciler/internal/models"
)

func createTestLedger() []models.LedgerEntry {
	return []models.LedgerEntry{
		ledger("L1", 10, models.LedgerKindIn, "100.50"),
		ledger("L2", 10, models.LedgerKindOut, "250.00"),
		ledger("L3", 11, models.LedgerKindIn, "100.50"),
		ledger("L4", 15, models.LedgerKindIn, "75.25"),
	}
}

func TestNewLedgerIndex(t *testing.T) {
	index := NewLedgerIndex(createTestLedger())

	stats := index.GetIndexStats()
	if stats.TotalEntries != 4 {
		t.Errorf("expected 4 entries, got %d", stats.TotalEntries)
	}
	if stats.InEntries != 3 || stats.OutEntries != 1 {
		t.Errorf("unexpected side split: in=%d out=%d", stats.InEntries, stats.OutEntries)
	}
	if stats.UniqueDates != 3 {
		t.Errorf("expected 3 unique dates, got %d", stats.UniqueDates)
	}
}

func TestLedgerIndex_GetByDateRange(t *testing.T) {
	index := NewLedgerIndex(createTestLedger())

	tests := []struct {
		name  string
		kind  models.LedgerKind
		start time.Time
		end   time.Time
		want  int
	}{
		{"single day in", models.LedgerKindIn, models.Date(2024, time.March, 10), models.Date(2024, time.March, 10), 1},
		{"two days in", models.LedgerKindIn, models.Date(2024, time.March, 10), models.Date(2024, time.March, 11), 2},
		{"out only", models.LedgerKindOut, models.Date(2024, time.March, 1), models.Date(2024, time.March, 31), 1},
		{"empty range", models.LedgerKindIn, models.Date(2024, time.March, 12), models.Date(2024, time.March, 14), 0},
		{"time of day ignored", models.LedgerKindIn, time.Date(2024, time.March, 15, 23, 0, 0, 0, time.UTC), time.Date(2024, time.March, 15, 1, 0, 0, 0, time.UTC), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := index.GetByDateRange(tt.kind, tt.start, tt.end)
			if len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestLedgerIndex_GetWindow(t *testing.T) {
	index := NewLedgerIndex(createTestLedger())

	credit := statement("s1", 12, models.DirectionCredit, "100.50")
	got := index.GetWindow(&credit, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 credit-side entries in window, got %d", len(got))
	}
	for _, e := range got {
		if e.Kind != models.LedgerKindIn {
			t.Errorf("unexpected kind %s in credit window", e.Kind)
		}
	}

	debit := statement("s2", 12, models.DirectionDebit, "250.00")
	if got := index.GetWindow(&debit, 1); len(got) != 0 {
		t.Errorf("expected empty debit window, got %d", len(got))
	}
}

func TestLedgerIndex_AddEntry(t *testing.T) {
	index := NewLedgerIndex(nil)
	entry := ledger("L9", 20, models.LedgerKindOut, "10.00")
	index.AddEntry(&entry)

	got := index.GetByDateRange(models.LedgerKindOut, entry.EntryDate, entry.EntryDate)
	if len(got) != 1 || got[0].ID != "L9" {
		t.Errorf("expected L9 to be indexed, got %v", got)
	}
}
