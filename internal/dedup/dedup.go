// Package dedup removes repeated statement entries, both inside one batch and
// against rows that were already persisted.
package dedup

import (
	"fmt"

	"cashflow-reconciler/internal/models"
)

// Key identifies a statement entry for in-batch deduplication: movement date,
// amount, and the description (or the external document id when the
// description is empty).
type Key struct {
	Date          string
	Amount        string
	Discriminator string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Date, k.Amount, k.Discriminator)
}

// KeyOf returns the composite key of an entry
func KeyOf(e models.StatementEntry) Key {
	discriminator := e.Description
	if discriminator == "" {
		discriminator = e.ExternalDocumentID
	}
	return Key{
		Date:          models.FormatDate(e.MovementDate),
		Amount:        e.Amount.String(),
		Discriminator: discriminator,
	}
}

// DuplicateGroup collects entries sharing one key; Entries[0] is the one kept
type DuplicateGroup struct {
	Key     Key
	Entries []models.StatementEntry
}

// Result of a deduplication pass
type Result struct {
	Unique []models.StatementEntry
	Groups []DuplicateGroup
}

// Removed returns how many entries were dropped as duplicates
func (r *Result) Removed() int {
	removed := 0
	for _, g := range r.Groups {
		removed += len(g.Entries) - 1
	}
	return removed
}

// Detect keeps the first occurrence of each key, preserving input order,
// and reports every key seen more than once.
func Detect(entries []models.StatementEntry) *Result {
	result := &Result{Unique: make([]models.StatementEntry, 0, len(entries))}
	firstIndex := make(map[Key]int, len(entries))
	groupIndex := make(map[Key]int)

	for _, entry := range entries {
		key := KeyOf(entry)
		idx, seen := firstIndex[key]
		if !seen {
			firstIndex[key] = len(result.Unique)
			result.Unique = append(result.Unique, entry)
			continue
		}

		g, grouped := groupIndex[key]
		if !grouped {
			g = len(result.Groups)
			groupIndex[key] = g
			result.Groups = append(result.Groups, DuplicateGroup{
				Key:     key,
				Entries: []models.StatementEntry{result.Unique[idx]},
			})
		}
		result.Groups[g].Entries = append(result.Groups[g].Entries, entry)
	}

	return result
}

// Statements returns entries with duplicates removed, first occurrence wins
func Statements(entries []models.StatementEntry) []models.StatementEntry {
	return Detect(entries).Unique
}

// PersistedKey identifies an imported row against the persisted statement
// table: movement date, amount and external document id.
func PersistedKey(e models.StatementEntry) string {
	return fmt.Sprintf("%s|%s|%s", models.FormatDate(e.MovementDate), e.Amount.String(), e.ExternalDocumentID)
}

// FilterPersisted drops entries whose PersistedKey is already stored.
// Entries are only compared with existing rows, never with each other.
func FilterPersisted(entries []models.StatementEntry, existing map[string]struct{}) ([]models.StatementEntry, int) {
	fresh := make([]models.StatementEntry, 0, len(entries))
	duplicates := 0
	for _, entry := range entries {
		if _, found := existing[PersistedKey(entry)]; found {
			duplicates++
			continue
		}
		fresh = append(fresh, entry)
	}
	return fresh, duplicates
}
