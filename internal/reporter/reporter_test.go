package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cashflow-reconciler/internal/matcher"
	"cashflow-reconciler/internal/models"
	"cashflow-reconciler/internal/reconciler"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

func sampleRuns() []*reconciler.RunResult {
	return []*reconciler.RunResult{
		{
			Success:             true,
			CompanyID:           "c1",
			StatementsProcessed: 3,
			Reconciled:          2,
			AlertsCreated:       1,
			Period:              reconciler.Period{From: models.Date(2025, time.January, 1), To: models.Date(2025, time.January, 31)},
			Summary: matcher.ReconciliationSummary{
				TotalStatements:      3,
				Matched:              2,
				ExactMatches:         1,
				DivergentMatches:     1,
				NoCandidates:         1,
				TotalAmountMatched:   decimal.RequireFromString("2000"),
				TotalAmountUnmatched: decimal.RequireFromString("940"),
			},
			Reconciliations: []models.Reconciliation{
				{
					StatementEntryID: "S1",
					LedgerEntryID:    "L1",
					StatementAmount:  decimal.RequireFromString("1000"),
					LedgerAmount:     decimal.RequireFromString("1000"),
					Outcome:          models.OutcomeExact,
					Confidence:       0.9,
				},
				{
					StatementEntryID: "S2",
					LedgerEntryID:    "L2",
					StatementAmount:  decimal.RequireFromString("1000"),
					LedgerAmount:     decimal.RequireFromString("1003"),
					AmountDifference: decimal.RequireFromString("3"),
					Outcome:          models.OutcomeDivergent,
					Confidence:       0.6,
				},
			},
			Alerts: []models.FinancialAlert{
				{
					AlertType: models.AlertOrphanStatementEntry,
					Priority:  models.PriorityHigh,
					Title:     "Movimento bancário sem lançamento",
					Message:   "Sem correspondência",
					Details:   map[string]interface{}{"statement_entry_id": "S3", "amount": "940.00"},
				},
			},
		},
		{
			Success:   false,
			CompanyID: "c2",
			Error:     "reconciliation already running",
		},
	}
}

func quietLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: logger.TextFormat, Output: logger.DiscardOutput})
	if err != nil {
		t.Fatal(err)
	}
	return log
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{"default config", nil, false},
		{"valid config", DefaultReportConfig(), false},
		{"invalid format", &ReportConfig{Format: "xml"}, true},
		{"negative list limit", &ReportConfig{Format: FormatConsole, MaxListItems: -1}, true},
		{"csv without delimiter", &ReportConfig{Format: FormatCSV}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil || generator == nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v, want %v", tt.format, got, tt.valid)
		}
	}
}

func TestConsoleReport(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeReconciliations = true
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleRuns(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Companies: 2 (failed: 1)",
		"=== COMPANY c1 [OK] ===",
		"Period: 2025-01-01 to 2025-01-31",
		"Reconciled:      2 (66.7%)",
		"Divergent:       1",
		"Amount Unmatched: R$ 940.00",
		"S2 <-> L2, 1000.00 vs 1003.00, divergent (60%)",
		"[HIGH] Movimento bancário sem lançamento",
		"=== COMPANY c2 [FAILED] ===",
		"Error: reconciliation already running",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console report missing %q\n%s", want, out)
		}
	}
}

func TestConsoleReport_ListLimit(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeReconciliations = true
	config.MaxListItems = 1
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleRuns(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "... and 1 more") {
		t.Errorf("expected truncated list, got\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "S2 <-> L2") {
		t.Error("second reconciliation should be cut")
	}
}

func TestJSONReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleRuns(), &buf); err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Runs []struct {
			Success         bool              `json:"success"`
			CompanyID       string            `json:"company_id"`
			Reconciled      int               `json:"reconciled"`
			Error           string            `json:"error"`
			Period          map[string]string `json:"period"`
			Summary         map[string]interface{}
			Reconciliations []json.RawMessage `json:"reconciliations"`
			Alerts          []json.RawMessage `json:"alerts"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(decoded.Runs))
	}

	first := decoded.Runs[0]
	if !first.Success || first.Reconciled != 2 || first.Period["from"] != "2025-01-01" {
		t.Errorf("unexpected first run %+v", first)
	}
	if first.Summary["amount_unmatched"] != "940.00" {
		t.Errorf("unexpected summary %v", first.Summary)
	}
	if len(first.Reconciliations) != 0 {
		t.Error("reconciliations are excluded by default")
	}
	if len(first.Alerts) != 1 {
		t.Errorf("expected alerts in output, got %d", len(first.Alerts))
	}
	if decoded.Runs[1].Error == "" {
		t.Error("expected failed run error in output")
	}
}

func TestCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.IncludeReconciliations = true
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(sampleRuns(), &buf); err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 2 reconciliations + 1 alert, got %d rows", len(rows))
	}
	if rows[0][0] != "Record" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[2][6] != "divergent" || rows[2][7] != "0.60" || rows[2][5] != "3.00" {
		t.Errorf("unexpected reconciliation row %v", rows[2])
	}
	alert := rows[3]
	if alert[0] != "alert" || alert[2] != "S3" || alert[4] != "940.00" || alert[8] != string(models.AlertOrphanStatementEntry) {
		t.Errorf("unexpected alert row %v", alert)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, stderrors.New("broken pipe") }

func TestSafeReportGenerator(t *testing.T) {
	safe, err := NewSafeReportGenerator(nil, quietLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := safe.GenerateReportSafely(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil runs")
	}

	err = safe.GenerateReportSafely(sampleRuns(), failingWriter{})
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Category != errors.CategoryFile {
		t.Errorf("expected file error for broken writer, got %v", err)
	}

	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf"}, quietLogger(t)); err == nil {
		t.Error("expected configuration error")
	}
}

func TestWriteReportFile(t *testing.T) {
	safe, err := NewSafeReportGenerator(&ReportConfig{Format: FormatCSV, CSVDelimiter: ';', CSVHeaders: true, IncludeAlerts: true}, quietLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "report.csv")
	written, err := safe.WriteReportFile(sampleRuns(), path)
	if err != nil || written != path {
		t.Fatalf("WriteReportFile() = %q, %v", written, err)
	}
	content, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(content), "Record;Company;") {
		t.Errorf("unexpected file content %q", content)
	}

	missing := filepath.Join(t.TempDir(), "missing", "fallback_report.csv")
	written, err = safe.WriteReportFile(sampleRuns(), missing)
	if err != nil {
		t.Fatalf("expected backup write, got %v", err)
	}
	defer os.Remove(written)
	if written != filepath.Join(os.TempDir(), "fallback_report_backup.csv") {
		t.Errorf("unexpected backup path %q", written)
	}
}
