package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cashflow-reconciler/internal/dedup"
	"cashflow-reconciler/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept in process memory
type MemoryStore struct {
	mu              sync.RWMutex
	ledger          []models.LedgerEntry
	statements      []models.StatementEntry
	reconciliations []models.Reconciliation
	alerts          []models.FinancialAlert

	// FailInsert, when set, is consulted before every statement insert
	FailInsert func(entries []models.StatementEntry) error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SeedLedger appends ledger entries, standing in for upstream ingestion
func (m *MemoryStore) SeedLedger(entries ...models.LedgerEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = append(m.ledger, entries...)
}

// LedgerEntries implements LedgerReader
func (m *MemoryStore) LedgerEntries(ctx context.Context, companyID string, from, to time.Time) ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.LedgerEntry
	for _, e := range m.ledger {
		if e.CompanyID == companyID && withinDays(e.EntryDate, from, to) {
			result = append(result, e)
		}
	}
	return result, nil
}

// Companies implements LedgerReader
func (m *MemoryStore) Companies(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range m.ledger {
		seen[e.CompanyID] = struct{}{}
	}
	for _, s := range m.statements {
		seen[s.CompanyID] = struct{}{}
	}

	companies := make([]string, 0, len(seen))
	for id := range seen {
		companies = append(companies, id)
	}
	sort.Strings(companies)
	return companies, nil
}

// InsertStatements implements StatementStore
func (m *MemoryStore) InsertStatements(ctx context.Context, entries []models.StatementEntry) error {
	if m.FailInsert != nil {
		if err := m.FailInsert(entries); err != nil {
			return err
		}
	}

	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		m.statements = append(m.statements, entries[i])
	}
	return nil
}

// ExistingStatementKeys implements StatementStore
func (m *MemoryStore) ExistingStatementKeys(ctx context.Context, companyID string, dates []time.Time) (map[string]struct{}, error) {
	wanted := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		wanted[models.FormatDate(d)] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make(map[string]struct{})
	for _, s := range m.statements {
		if s.CompanyID != companyID {
			continue
		}
		if _, ok := wanted[models.FormatDate(s.MovementDate)]; ok {
			keys[dedup.PersistedKey(s)] = struct{}{}
		}
	}
	return keys, nil
}

// UnreconciledStatements implements StatementStore
func (m *MemoryStore) UnreconciledStatements(ctx context.Context, companyID string, from, to time.Time) ([]models.StatementEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.StatementEntry
	for _, s := range m.statements {
		if s.CompanyID == companyID && !s.Reconciled && withinDays(s.MovementDate, from, to) {
			result = append(result, s)
		}
	}
	return result, nil
}

// MarkReconciled implements StatementStore
func (m *MemoryStore) MarkReconciled(ctx context.Context, ids []string) error {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.statements {
		if _, ok := set[m.statements[i].ID]; ok {
			m.statements[i].Reconciled = true
		}
	}
	return nil
}

// Statements returns a copy of every stored statement row
func (m *MemoryStore) Statements() []models.StatementEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.StatementEntry(nil), m.statements...)
}

// InsertReconciliations implements ReconciliationStore
func (m *MemoryStore) InsertReconciliations(ctx context.Context, records []models.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciliations = append(m.reconciliations, records...)
	return nil
}

// ReconciledRefs implements ReconciliationStore
func (m *MemoryStore) ReconciledRefs(ctx context.Context, companyID string) (*Consumed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	consumed := NewConsumed()
	for _, r := range m.reconciliations {
		if r.CompanyID == companyID {
			consumed.Add(r.StatementEntryID, r.LedgerEntryID)
		}
	}
	return consumed, nil
}

// Reconciliations returns a copy of every stored reconciliation
func (m *MemoryStore) Reconciliations() []models.Reconciliation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Reconciliation(nil), m.reconciliations...)
}

// InsertAlerts implements AlertStore
func (m *MemoryStore) InsertAlerts(ctx context.Context, alerts []models.FinancialAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alerts...)
	return nil
}

// ListAlerts implements AlertStore
func (m *MemoryStore) ListAlerts(ctx context.Context, companyID string) ([]models.FinancialAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.FinancialAlert
	for _, a := range m.alerts {
		if a.CompanyID == companyID {
			result = append(result, a)
		}
	}
	return result, nil
}

// Close implements Store
func (m *MemoryStore) Close() error {
	return nil
}

// withinDays compares calendar days; a zero bound is open
func withinDays(t, from, to time.Time) bool {
	day := models.CalendarDay(t)
	if !from.IsZero() && day.Before(models.CalendarDay(from)) {
		return false
	}
	if !to.IsZero() && day.After(models.CalendarDay(to)) {
		return false
	}
	return true
}
