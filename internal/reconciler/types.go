package reconciler

import (
	"encoding/json"
	"time"

	"cashflow-reconciler/internal/matcher"
	"cashflow-reconciler/internal/models"
)

// FetchRequest selects the statements of a company. Explicit dates win over
// DaysBack; the end date defaults to today.
type FetchRequest struct {
	CompanyID   string `json:"company_id" validate:"required"`
	AccountCode string `json:"account_code,omitempty"`
	DateFrom    string `json:"date_from,omitempty"`
	DateTo      string `json:"date_to,omitempty"`
	DaysBack    int    `json:"days_back,omitempty" validate:"gte=0,lte=3660"`
}

// Period is an inclusive range of calendar days
type Period struct {
	From time.Time
	To   time.Time
}

// MarshalJSON renders both ends as YYYY-MM-DD
func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"from": models.FormatDate(p.From),
		"to":   models.FormatDate(p.To),
	})
}

// FetchResult is the merged statement list of one company
type FetchResult struct {
	Success       bool                    `json:"success"`
	Total         int                     `json:"total"`
	Statements    []models.StatementEntry `json:"statements"`
	Period        Period                  `json:"period"`
	FailedSources []string                `json:"failed_sources,omitempty"`
}

// ImportRequest carries an uploaded statement file
type ImportRequest struct {
	CompanyID   string `json:"company_id" validate:"required"`
	AccountCode string `json:"account_code" validate:"required"`
	FileName    string `json:"file_name,omitempty"`
	Content     []byte `json:"-"`
}

// ImportResult reports what an import stored. Errors counts rows in failed
// batches and Details holds one message per failed batch.
type ImportResult struct {
	Success     bool     `json:"success"`
	Imported    int      `json:"imported"`
	Duplicates  int      `json:"duplicates"`
	Errors      int      `json:"errors"`
	Details     []string `json:"details,omitempty"`
	DroppedRows int      `json:"dropped_rows"`
	Format      string   `json:"format"`
}

// RunRequest triggers a reconciliation; an empty company means all companies
type RunRequest struct {
	CompanyID string `json:"company_id,omitempty"`
}

// RunResult is the outcome of reconciling one company
type RunResult struct {
	Success             bool   `json:"success"`
	CompanyID           string `json:"company_id"`
	StatementsProcessed int    `json:"statements_processed"`
	Reconciled          int    `json:"reconciled"`
	AlertsCreated       int    `json:"alerts_created"`
	Error               string `json:"error,omitempty"`
	// FailedSources names the sources that contributed nothing to this run
	FailedSources []string `json:"failed_sources,omitempty"`

	Period          Period                        `json:"-"`
	Summary         matcher.ReconciliationSummary `json:"-"`
	Reconciliations []models.Reconciliation       `json:"-"`
	Alerts          []models.FinancialAlert       `json:"-"`
	SkippedAlerts   int                           `json:"-"`
	Duration        time.Duration                 `json:"-"`
}
