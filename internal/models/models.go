// Package models holds the records exchanged by the reconciliation engine:
// external statement entries, internal ledger entries, and the
// reconciliations and alerts produced from them.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a bank movement as reported by the bank
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// IsValid checks if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// LedgerKind returns the ledger kind a movement in this direction must match
func (d Direction) LedgerKind() LedgerKind {
	if d == DirectionCredit {
		return LedgerKindIn
	}
	return LedgerKindOut
}

// LedgerKind is the side of an internal cashflow entry
type LedgerKind string

const (
	LedgerKindIn  LedgerKind = "in"
	LedgerKindOut LedgerKind = "out"
)

// IsValid checks if the ledger kind is valid
func (k LedgerKind) IsValid() bool {
	return k == LedgerKindIn || k == LedgerKindOut
}

// StatementEntry is a single bank movement reported by an external source
type StatementEntry struct {
	ID                 string           `json:"id,omitempty"`
	CompanyID          string           `json:"company_id"`
	AccountCode        string           `json:"account_code"`
	Branch             string           `json:"branch,omitempty"`
	Account            string           `json:"account,omitempty"`
	MovementDate       time.Time        `json:"movement_date"`
	Direction          Direction        `json:"direction"`
	Amount             decimal.Decimal  `json:"amount"`
	Description        string           `json:"description"`
	ExternalDocumentID string           `json:"external_document_id,omitempty"`
	RunningBalance     *decimal.Decimal `json:"running_balance,omitempty"`
	Source             string           `json:"source,omitempty"`
	Reconciled         bool             `json:"reconciled,omitempty"`
	// MirroredLedgerID is set on rows an ERP source derived from a ledger entry
	MirroredLedgerID string `json:"mirrored_ledger_id,omitempty"`
}

// Validate performs basic validation on the StatementEntry
func (s *StatementEntry) Validate() error {
	if strings.TrimSpace(s.CompanyID) == "" {
		return fmt.Errorf("statement company id cannot be empty")
	}
	if s.MovementDate.IsZero() {
		return fmt.Errorf("statement movement date cannot be zero")
	}
	if !s.Direction.IsValid() {
		return fmt.Errorf("invalid statement direction: %q", s.Direction)
	}
	if s.Amount.IsNegative() {
		return fmt.Errorf("statement amount cannot be negative: %s", s.Amount.String())
	}
	return nil
}

// Reference returns the identifier recorded on reconciliations and alerts
func (s *StatementEntry) Reference() string {
	if s.ID != "" {
		return s.ID
	}
	return s.ExternalDocumentID
}

// String returns a string representation of the StatementEntry
func (s *StatementEntry) String() string {
	return fmt.Sprintf("StatementEntry{ID: %s, Date: %s, %s %s, %q}",
		s.Reference(), FormatDate(s.MovementDate), s.Direction, s.Amount.StringFixed(2), s.Description)
}

// MarshalJSON renders amounts as strings and dates without a time component
func (s StatementEntry) MarshalJSON() ([]byte, error) {
	type Alias StatementEntry
	aux := struct {
		MovementDate   string  `json:"movement_date"`
		Amount         string  `json:"amount"`
		RunningBalance *string `json:"running_balance,omitempty"`
		Alias
	}{
		MovementDate: FormatDate(s.MovementDate),
		Amount:       s.Amount.StringFixed(2),
		Alias:        Alias(s),
	}
	if s.RunningBalance != nil {
		balance := s.RunningBalance.StringFixed(2)
		aux.RunningBalance = &balance
	}
	return json.Marshal(aux)
}

// UnmarshalJSON accepts the representation produced by MarshalJSON
func (s *StatementEntry) UnmarshalJSON(data []byte) error {
	type Alias StatementEntry
	aux := &struct {
		MovementDate   string           `json:"movement_date"`
		Amount         decimal.Decimal  `json:"amount"`
		RunningBalance *decimal.Decimal `json:"running_balance,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	parsed := NormalizeDate(aux.MovementDate)
	if !parsed.Valid {
		return fmt.Errorf("invalid movement date %q", aux.MovementDate)
	}
	s.MovementDate = parsed.Time
	s.Amount = aux.Amount
	s.RunningBalance = aux.RunningBalance
	return nil
}

// LedgerEntry is an internally recorded cashflow movement
type LedgerEntry struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"company_id"`
	EntryDate time.Time       `json:"entry_date"`
	Kind      LedgerKind      `json:"kind"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
}

// Validate performs basic validation on the LedgerEntry
func (l *LedgerEntry) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("ledger entry id cannot be empty")
	}
	if !l.Kind.IsValid() {
		return fmt.Errorf("invalid ledger kind: %q", l.Kind)
	}
	if l.Amount.IsNegative() {
		return fmt.Errorf("ledger amount cannot be negative: %s", l.Amount.String())
	}
	return nil
}

// MarshalJSON renders amounts as strings and dates without a time component
func (l LedgerEntry) MarshalJSON() ([]byte, error) {
	type Alias LedgerEntry
	return json.Marshal(struct {
		EntryDate string `json:"entry_date"`
		Amount    string `json:"amount"`
		Alias
	}{
		EntryDate: FormatDate(l.EntryDate),
		Amount:    l.Amount.StringFixed(2),
		Alias:     Alias(l),
	})
}

// Outcome classifies an accepted match
type Outcome string

const (
	OutcomeExact     Outcome = "exact"
	OutcomeDivergent Outcome = "divergent"
)

// ReconciliationKindBank marks reconciliations of bank movements
const ReconciliationKindBank = "bank"

// Reconciliation is the immutable record of one statement entry paired with one ledger entry
type Reconciliation struct {
	ID               string          `json:"id"`
	CompanyID        string          `json:"company_id"`
	Kind             string          `json:"kind"`
	StatementEntryID string          `json:"statement_entry_id"`
	LedgerEntryID    string          `json:"ledger_entry_id"`
	ReconciledOn     time.Time       `json:"reconciled_on"`
	StatementAmount  decimal.Decimal `json:"statement_amount"`
	LedgerAmount     decimal.Decimal `json:"ledger_amount"`
	AmountDifference decimal.Decimal `json:"amount_difference"`
	Outcome          Outcome         `json:"outcome"`
	Confidence       float64         `json:"confidence"`
	Score            int             `json:"score"`
}

// MarshalJSON renders amounts as strings and dates without a time component
func (r Reconciliation) MarshalJSON() ([]byte, error) {
	type Alias Reconciliation
	return json.Marshal(struct {
		ReconciledOn     string `json:"reconciled_on"`
		StatementAmount  string `json:"statement_amount"`
		LedgerAmount     string `json:"ledger_amount"`
		AmountDifference string `json:"amount_difference"`
		Alias
	}{
		ReconciledOn:     FormatDate(r.ReconciledOn),
		StatementAmount:  r.StatementAmount.StringFixed(2),
		LedgerAmount:     r.LedgerAmount.StringFixed(2),
		AmountDifference: r.AmountDifference.StringFixed(2),
		Alias:            Alias(r),
	})
}

// AlertType classifies a financial alert
type AlertType string

const (
	AlertOrphanStatementEntry  AlertType = "orphan_statement_entry"
	AlertDivergentAmount       AlertType = "divergent_amount"
	AlertPendingReconciliation AlertType = "pending_reconciliation"
)

// Priority of a financial alert
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// AlertStatus is the workflow state of a financial alert.
// Only external workflows move an alert out of AlertStatusPending.
type AlertStatus string

const (
	AlertStatusPending  AlertStatus = "pending"
	AlertStatusInReview AlertStatus = "in_review"
	AlertStatusResolved AlertStatus = "resolved"
	AlertStatusIgnored  AlertStatus = "ignored"
)

// FinancialAlert is an exception surfaced for human attention
type FinancialAlert struct {
	ID         string                 `json:"id"`
	CompanyID  string                 `json:"company_id"`
	AlertType  AlertType              `json:"alert_type"`
	Priority   Priority               `json:"priority"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	Status     AlertStatus            `json:"status"`
	Notified   bool                   `json:"notified"`
	CreatedAt  time.Time              `json:"created_at"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
}
