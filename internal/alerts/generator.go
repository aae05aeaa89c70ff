// Package alerts turns matching outcomes that need human attention into
// FinancialAlert records.
package alerts

import (
	"fmt"
	"time"

	"cashflow-reconciler/internal/matcher"
	"cashflow-reconciler/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	titleOrphan    = "Movimento bancário sem lançamento correspondente"
	titlePending   = "Conciliação pendente"
	titleDivergent = "Valores divergentes em conciliação"

	pendingSuffix = "Nenhum lançamento correspondente encontrado"
)

// Generator builds alerts. Clock and IDs are injectable for tests.
type Generator struct {
	Now   func() time.Time
	NewID func() string
}

// NewGenerator creates a generator using the wall clock and random UUIDs
func NewGenerator() *Generator {
	return &Generator{
		Now:   time.Now,
		NewID: func() string { return uuid.NewString() },
	}
}

// ForResult returns the alert a match result calls for, if any.
// Exact matches produce no alert.
func (g *Generator) ForResult(result *matcher.MatchResult) (models.FinancialAlert, bool) {
	switch result.Disposition {
	case matcher.DispositionNoCandidates:
		return g.Orphan(result.Statement), true
	case matcher.DispositionBelowThreshold:
		return g.Pending(result.Statement, result.CandidateCount), true
	case matcher.DispositionMatched:
		if result.Outcome == models.OutcomeDivergent && result.Best != nil {
			return g.Divergent(result.Statement, *result.Best.Ledger), true
		}
	}
	return models.FinancialAlert{}, false
}

// Generate returns the alerts for a whole matching pass, in result order
func (g *Generator) Generate(results []*matcher.MatchResult) []models.FinancialAlert {
	var generated []models.FinancialAlert
	for _, r := range results {
		if alert, ok := g.ForResult(r); ok {
			generated = append(generated, alert)
		}
	}
	return generated
}

// Orphan is raised when no ledger entry could even be considered
func (g *Generator) Orphan(stmt models.StatementEntry) models.FinancialAlert {
	alert := g.newAlert(stmt.CompanyID, models.AlertOrphanStatementEntry, models.PriorityMedium, titleOrphan)
	alert.Message = movementLine(stmt)
	alert.Details = map[string]interface{}{
		"statement_entry_id": stmt.Reference(),
		"account_code":       stmt.AccountCode,
		"movement_date":      models.FormatDate(stmt.MovementDate),
		"amount":             stmt.Amount.StringFixed(2),
		"description":        stmt.Description,
		"direction":          string(stmt.Direction),
	}
	return alert
}

// Pending is raised when candidates existed but none reached the acceptance threshold
func (g *Generator) Pending(stmt models.StatementEntry, candidates int) models.FinancialAlert {
	alert := g.newAlert(stmt.CompanyID, models.AlertPendingReconciliation, models.PriorityMedium, titlePending)
	alert.Message = movementLine(stmt) + " - " + pendingSuffix
	alert.Details = map[string]interface{}{
		"statement_entry_id": stmt.Reference(),
		"account_code":       stmt.AccountCode,
		"movement_date":      models.FormatDate(stmt.MovementDate),
		"amount":             stmt.Amount.StringFixed(2),
		"description":        stmt.Description,
		"candidates":         candidates,
	}
	return alert
}

// Divergent is raised next to the reconciliation of a pair whose amounts differ
func (g *Generator) Divergent(stmt models.StatementEntry, ledger models.LedgerEntry) models.FinancialAlert {
	alert := g.newAlert(stmt.CompanyID, models.AlertDivergentAmount, models.PriorityHigh, titleDivergent)
	alert.Message = fmt.Sprintf("Extrato: %s | Lançamento: %s (Diferença: %s%%)",
		models.FormatBRL(stmt.Amount), models.FormatBRL(ledger.Amount), signedPercent(stmt.Amount, ledger.Amount))
	alert.Details = map[string]interface{}{
		"statement_entry_id": stmt.Reference(),
		"ledger_entry_id":    ledger.ID,
		"statement_amount":   stmt.Amount.StringFixed(2),
		"ledger_amount":      ledger.Amount.StringFixed(2),
		"difference":         stmt.Amount.Sub(ledger.Amount).StringFixed(2),
		"movement_date":      models.FormatDate(stmt.MovementDate),
		"entry_date":         models.FormatDate(ledger.EntryDate),
	}
	return alert
}

func (g *Generator) newAlert(companyID string, alertType models.AlertType, priority models.Priority, title string) models.FinancialAlert {
	return models.FinancialAlert{
		ID:        g.NewID(),
		CompanyID: companyID,
		AlertType: alertType,
		Priority:  priority,
		Title:     title,
		Status:    models.AlertStatusPending,
		CreatedAt: g.Now(),
	}
}

// movementLine renders "<date>: <description> - R$ <amount>"
func movementLine(stmt models.StatementEntry) string {
	return fmt.Sprintf("%s: %s - %s", models.FormatDate(stmt.MovementDate), stmt.Description, models.FormatBRL(stmt.Amount))
}

// signedPercent is (statement - ledger) / max * 100 with one decimal place
func signedPercent(statementAmount, ledgerAmount decimal.Decimal) string {
	larger := decimal.Max(statementAmount, ledgerAmount)
	if larger.IsZero() {
		return decimal.Zero.StringFixed(1)
	}
	return statementAmount.Sub(ledgerAmount).Div(larger).Mul(decimal.NewFromInt(100)).StringFixed(1)
}
