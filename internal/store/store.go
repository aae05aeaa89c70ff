// Package store persists statements, reconciliations and alerts, and reads the
// cashflow ledger. Two backends exist: an in-memory store for tests and local
// runs, and PostgreSQL.
package store

import (
	"context"
	"time"

	"cashflow-reconciler/internal/models"
)

// LedgerReader reads the cashflow ledger, which this service never writes
type LedgerReader interface {
	// LedgerEntries returns entries dated within [from, to], both inclusive.
	// No rows is not an error.
	LedgerEntries(ctx context.Context, companyID string, from, to time.Time) ([]models.LedgerEntry, error)

	// Companies lists every company that has ledger entries or uploaded statements
	Companies(ctx context.Context) ([]string, error)
}

// StatementStore keeps uploaded bank statement rows
type StatementStore interface {
	// InsertStatements writes all entries or none, assigning IDs to entries without one
	InsertStatements(ctx context.Context, entries []models.StatementEntry) error

	// ExistingStatementKeys returns the dedup.PersistedKey of every stored row
	// for the company on any of the given movement dates
	ExistingStatementKeys(ctx context.Context, companyID string, dates []time.Time) (map[string]struct{}, error)

	// UnreconciledStatements returns stored rows not yet reconciled, dated within [from, to]
	UnreconciledStatements(ctx context.Context, companyID string, from, to time.Time) ([]models.StatementEntry, error)

	// MarkReconciled flags stored rows as reconciled. Unknown ids are ignored.
	MarkReconciled(ctx context.Context, ids []string) error
}

// ReconciliationStore keeps reconciliation records
type ReconciliationStore interface {
	InsertReconciliations(ctx context.Context, records []models.Reconciliation) error

	// ReconciledRefs returns the statement and ledger references already paired for a company
	ReconciledRefs(ctx context.Context, companyID string) (*Consumed, error)
}

// AlertStore keeps financial alerts
type AlertStore interface {
	InsertAlerts(ctx context.Context, alerts []models.FinancialAlert) error
	ListAlerts(ctx context.Context, companyID string) ([]models.FinancialAlert, error)
}

// Store is the full persistence surface used by the reconciler
type Store interface {
	LedgerReader
	StatementStore
	ReconciliationStore
	AlertStore
	Close() error
}

// Consumed holds references paired by earlier runs
type Consumed struct {
	StatementRefs map[string]struct{}
	LedgerIDs     map[string]struct{}
}

// NewConsumed returns an empty set
func NewConsumed() *Consumed {
	return &Consumed{
		StatementRefs: make(map[string]struct{}),
		LedgerIDs:     make(map[string]struct{}),
	}
}

// Add records one pairing
func (c *Consumed) Add(statementRef, ledgerID string) {
	c.StatementRefs[statementRef] = struct{}{}
	c.LedgerIDs[ledgerID] = struct{}{}
}

// HasStatement reports whether a statement reference was already reconciled
func (c *Consumed) HasStatement(ref string) bool {
	_, ok := c.StatementRefs[ref]
	return ok
}

// LedgerIDList returns the consumed ledger ids in no particular order
func (c *Consumed) LedgerIDList() []string {
	ids := make([]string, 0, len(c.LedgerIDs))
	for id := range c.LedgerIDs {
		ids = append(ids, id)
	}
	return ids
}
