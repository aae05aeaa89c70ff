package matcher

import (
	"time"

	"cashflow-reconciler/internal/models"
)

// LedgerIndex provides date lookups over the ledger entries of one run
type LedgerIndex struct {
	// DateIndex maps kind and date (YYYY-MM-DD) to ledger entries
	DateIndex map[models.LedgerKind]map[string][]*models.LedgerEntry

	// AllEntries holds all indexed ledger entries, in load order
	AllEntries []*models.LedgerEntry
}

// IndexStats provides statistics about an index
type IndexStats struct {
	TotalEntries int
	InEntries    int
	OutEntries   int
	UniqueDates  int
}

// NewLedgerIndex creates a new ledger index
func NewLedgerIndex(entries []models.LedgerEntry) *LedgerIndex {
	index := &LedgerIndex{
		DateIndex: map[models.LedgerKind]map[string][]*models.LedgerEntry{
			models.LedgerKindIn:  {},
			models.LedgerKindOut: {},
		},
		AllEntries: make([]*models.LedgerEntry, 0, len(entries)),
	}

	for i := range entries {
		index.AddEntry(&entries[i])
	}
	return index
}

// AddEntry adds a ledger entry to the index
func (li *LedgerIndex) AddEntry(entry *models.LedgerEntry) {
	byDate, ok := li.DateIndex[entry.Kind]
	if !ok {
		byDate = make(map[string][]*models.LedgerEntry)
		li.DateIndex[entry.Kind] = byDate
	}
	key := models.FormatDate(entry.EntryDate)
	byDate[key] = append(byDate[key], entry)
	li.AllEntries = append(li.AllEntries, entry)
}

// GetByDateRange returns entries of the given kind dated within [startDate, endDate]
func (li *LedgerIndex) GetByDateRange(kind models.LedgerKind, startDate, endDate time.Time) []*models.LedgerEntry {
	var result []*models.LedgerEntry

	byDate := li.DateIndex[kind]
	current := models.CalendarDay(startDate)
	end := models.CalendarDay(endDate)
	for !current.After(end) {
		if entries, exists := byDate[current.Format(models.ISODate)]; exists {
			result = append(result, entries...)
		}
		current = current.AddDate(0, 0, 1)
	}

	return result
}

// GetWindow returns the entries a statement entry may be compared with:
// same side, dated within windowDays of the movement date
func (li *LedgerIndex) GetWindow(stmt *models.StatementEntry, windowDays int) []*models.LedgerEntry {
	return li.GetByDateRange(
		stmt.Direction.LedgerKind(),
		stmt.MovementDate.AddDate(0, 0, -windowDays),
		stmt.MovementDate.AddDate(0, 0, windowDays),
	)
}

// GetIndexStats returns statistics about the index
func (li *LedgerIndex) GetIndexStats() IndexStats {
	dates := make(map[string]struct{})
	for _, byDate := range li.DateIndex {
		for date := range byDate {
			dates[date] = struct{}{}
		}
	}

	stats := IndexStats{
		TotalEntries: len(li.AllEntries),
		UniqueDates:  len(dates),
	}
	for _, entry := range li.AllEntries {
		if entry.Kind == models.LedgerKindIn {
			stats.InEntries++
		} else {
			stats.OutEntries++
		}
	}
	return stats
}
