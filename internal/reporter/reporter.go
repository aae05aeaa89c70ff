// Package reporter renders reconciliation run results for the CLI.
//
// Supported output formats:
//   - Console: per company summary for terminal display
//   - JSON: the runs with their reconciliations and alerts
//   - CSV: one row per reconciliation and per alert
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"cashflow-reconciler/internal/models"
	"cashflow-reconciler/internal/reconciler"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeReconciliations bool `json:"include_reconciliations"`
	IncludeAlerts          bool `json:"include_alerts"`

	// MaxListItems caps the console lists; 0 means no limit
	MaxListItems int `json:"max_list_items"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeReconciliations: false,
		IncludeAlerts:          true,
		MaxListItems:           10,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator renders run results in the configured format
type ReportGenerator struct {
	config *ReportConfig
	now    func() time.Time
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config, now: time.Now}, nil
}

// GenerateReport writes a report of runs to writer
func (rg *ReportGenerator) GenerateReport(runs []*reconciler.RunResult, writer io.Writer) error {
	if runs == nil {
		return fmt.Errorf("run results cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(runs, writer)
	case FormatJSON:
		return rg.generateJSONReport(runs, writer)
	case FormatCSV:
		return rg.generateCSVReport(runs, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(runs []*reconciler.RunResult, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Generated: %s\n", rg.now().Format(time.RFC3339))
	fmt.Fprintf(writer, "Companies: %d (failed: %d)\n\n", len(runs), failedRuns(runs))

	for _, run := range runs {
		rg.printRun(run, writer)
	}
	return nil
}

func (rg *ReportGenerator) printRun(run *reconciler.RunResult, writer io.Writer) {
	status := "OK"
	if !run.Success {
		status = "FAILED"
	}
	fmt.Fprintf(writer, "=== COMPANY %s [%s] ===\n", run.CompanyID, status)
	if !run.Period.From.IsZero() {
		fmt.Fprintf(writer, "Period: %s to %s\n", models.FormatDate(run.Period.From), models.FormatDate(run.Period.To))
	}
	if run.Error != "" {
		fmt.Fprintf(writer, "Error: %s\n", run.Error)
	}

	s := run.Summary
	fmt.Fprintf(writer, "Statements Processed: %d\n", run.StatementsProcessed)
	fmt.Fprintf(writer, "  Reconciled:      %d (%.1f%%)\n", run.Reconciled, percentage(run.Reconciled, run.StatementsProcessed))
	fmt.Fprintf(writer, "  Exact:           %d\n", s.ExactMatches)
	fmt.Fprintf(writer, "  Divergent:       %d\n", s.DivergentMatches)
	fmt.Fprintf(writer, "  No Candidates:   %d\n", s.NoCandidates)
	fmt.Fprintf(writer, "  Below Threshold: %d\n", s.BelowThreshold)
	fmt.Fprintf(writer, "Amount Matched:   %s\n", models.FormatBRL(s.TotalAmountMatched))
	fmt.Fprintf(writer, "Amount Unmatched: %s\n", models.FormatBRL(s.TotalAmountUnmatched))
	fmt.Fprintf(writer, "Alerts Created: %d (skipped repeats: %d)\n", run.AlertsCreated, run.SkippedAlerts)
	if run.Duration > 0 {
		fmt.Fprintf(writer, "Duration: %v\n", run.Duration.Round(time.Millisecond))
	}

	if rg.config.IncludeReconciliations && len(run.Reconciliations) > 0 {
		fmt.Fprintf(writer, "\nReconciliations (%d):\n", len(run.Reconciliations))
		for i, rec := range run.Reconciliations {
			if rg.truncated(writer, i, len(run.Reconciliations)) {
				break
			}
			fmt.Fprintf(writer, "  %d. %s <-> %s, %s vs %s, %s (%.0f%%)\n",
				i+1, rec.StatementEntryID, rec.LedgerEntryID,
				rec.StatementAmount.StringFixed(2), rec.LedgerAmount.StringFixed(2),
				rec.Outcome, rec.Confidence*100)
		}
	}

	if rg.config.IncludeAlerts && len(run.Alerts) > 0 {
		fmt.Fprintf(writer, "\nAlerts (%d):\n", len(run.Alerts))
		for i, alert := range run.Alerts {
			if rg.truncated(writer, i, len(run.Alerts)) {
				break
			}
			fmt.Fprintf(writer, "  %d. [%s] %s: %s\n", i+1, strings.ToUpper(string(alert.Priority)), alert.Title, alert.Message)
		}
	}
	fmt.Fprintf(writer, "\n")
}

// truncated prints the remainder marker once the list limit is reached
func (rg *ReportGenerator) truncated(writer io.Writer, i, total int) bool {
	if rg.config.MaxListItems == 0 || i < rg.config.MaxListItems {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-i)
	return true
}

type jsonRun struct {
	*reconciler.RunResult
	Period          reconciler.Period       `json:"period"`
	Summary         jsonSummary             `json:"summary"`
	SkippedAlerts   int                     `json:"skipped_alerts"`
	DurationMS      int64                   `json:"duration_ms"`
	Reconciliations []models.Reconciliation `json:"reconciliations,omitempty"`
	Alerts          []models.FinancialAlert `json:"alerts,omitempty"`
}

type jsonSummary struct {
	Exact          int    `json:"exact"`
	Divergent      int    `json:"divergent"`
	NoCandidates   int    `json:"no_candidates"`
	BelowThreshold int    `json:"below_threshold"`
	AmountMatched  string `json:"amount_matched"`
	AmountLeftOver string `json:"amount_unmatched"`
}

func (rg *ReportGenerator) generateJSONReport(runs []*reconciler.RunResult, writer io.Writer) error {
	out := make([]jsonRun, 0, len(runs))
	for _, run := range runs {
		jr := jsonRun{
			RunResult: run,
			Period:    run.Period,
			Summary: jsonSummary{
				Exact:          run.Summary.ExactMatches,
				Divergent:      run.Summary.DivergentMatches,
				NoCandidates:   run.Summary.NoCandidates,
				BelowThreshold: run.Summary.BelowThreshold,
				AmountMatched:  run.Summary.TotalAmountMatched.StringFixed(2),
				AmountLeftOver: run.Summary.TotalAmountUnmatched.StringFixed(2),
			},
			SkippedAlerts: run.SkippedAlerts,
			DurationMS:    run.Duration.Milliseconds(),
		}
		if rg.config.IncludeReconciliations {
			jr.Reconciliations = run.Reconciliations
		}
		if rg.config.IncludeAlerts {
			jr.Alerts = run.Alerts
		}
		out = append(out, jr)
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{
		"generated_at": rg.now().Format(time.RFC3339),
		"runs":         out,
	})
}

var csvHeaders = []string{
	"Record",
	"Company",
	"Statement_Entry",
	"Ledger_Entry",
	"Amount",
	"Difference",
	"Outcome",
	"Confidence",
	"Alert_Type",
	"Priority",
	"Message",
}

func (rg *ReportGenerator) generateCSVReport(runs []*reconciler.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, run := range runs {
		if rg.config.IncludeReconciliations {
			for _, rec := range run.Reconciliations {
				record := []string{
					"reconciliation",
					run.CompanyID,
					rec.StatementEntryID,
					rec.LedgerEntryID,
					rec.StatementAmount.StringFixed(2),
					rec.AmountDifference.StringFixed(2),
					string(rec.Outcome),
					strconv.FormatFloat(rec.Confidence, 'f', 2, 64),
					"",
					"",
					"",
				}
				if err := csvWriter.Write(record); err != nil {
					return fmt.Errorf("failed to write reconciliation record: %w", err)
				}
			}
		}

		if rg.config.IncludeAlerts {
			for _, alert := range run.Alerts {
				record := []string{
					"alert",
					run.CompanyID,
					detail(alert, "statement_entry_id"),
					detail(alert, "ledger_entry_id"),
					detailAmount(alert),
					detail(alert, "difference"),
					"",
					"",
					string(alert.AlertType),
					string(alert.Priority),
					alert.Message,
				}
				if err := csvWriter.Write(record); err != nil {
					return fmt.Errorf("failed to write alert record: %w", err)
				}
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func detail(alert models.FinancialAlert, key string) string {
	v, ok := alert.Details[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// detailAmount prefers the statement side of divergent alerts
func detailAmount(alert models.FinancialAlert) string {
	if v := detail(alert, "statement_amount"); v != "" {
		return v
	}
	return detail(alert, "amount")
}

func failedRuns(runs []*reconciler.RunResult) int {
	failed := 0
	for _, r := range runs {
		if !r.Success {
			failed++
		}
	}
	return failed
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return decimal.NewFromInt(int64(part)).Div(decimal.NewFromInt(int64(total))).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
