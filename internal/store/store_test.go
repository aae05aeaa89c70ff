package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"cashflow-reconciler/internal/dedup"
	"cashflow-reconciler/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func day(d int) time.Time {
	return models.Date(2025, time.January, d)
}

func sampleStatement(company string, d int, amount, doc string) models.StatementEntry {
	return models.StatementEntry{
		CompanyID:          company,
		AccountCode:        "341",
		MovementDate:       day(d),
		Direction:          models.DirectionCredit,
		Amount:             decimal.RequireFromString(amount),
		Description:        "PIX",
		ExternalDocumentID: doc,
		Source:             "upload",
	}
}

// exerciseStore runs the behaviour every backend must share
func exerciseStore(t *testing.T, s Store, company string) {
	ctx := context.Background()

	entries := []models.StatementEntry{
		sampleStatement(company, 10, "100.00", "D1"),
		sampleStatement(company, 11, "250.50", "D2"),
	}
	if err := s.InsertStatements(ctx, entries); err != nil {
		t.Fatalf("InsertStatements() error = %v", err)
	}
	for _, e := range entries {
		if e.ID == "" {
			t.Fatal("expected InsertStatements to assign ids")
		}
	}

	keys, err := s.ExistingStatementKeys(ctx, company, []time.Time{day(10)})
	if err != nil {
		t.Fatalf("ExistingStatementKeys() error = %v", err)
	}
	if _, ok := keys[dedup.PersistedKey(entries[0])]; !ok || len(keys) != 1 {
		t.Errorf("expected only the 10th row key, got %v", keys)
	}

	pending, err := s.UnreconciledStatements(ctx, company, day(1), day(31))
	if err != nil {
		t.Fatalf("UnreconciledStatements() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 unreconciled rows, got %d", len(pending))
	}

	if err := s.MarkReconciled(ctx, []string{entries[0].ID}); err != nil {
		t.Fatalf("MarkReconciled() error = %v", err)
	}
	pending, _ = s.UnreconciledStatements(ctx, company, day(1), day(31))
	if len(pending) != 1 || pending[0].ID != entries[1].ID {
		t.Errorf("expected only the second row to stay unreconciled, got %+v", pending)
	}

	record := models.Reconciliation{
		ID:               uuid.NewString(),
		CompanyID:        company,
		Kind:             models.ReconciliationKindBank,
		StatementEntryID: entries[0].ID,
		LedgerEntryID:    "cf-1",
		ReconciledOn:     day(15),
		StatementAmount:  decimal.RequireFromString("100"),
		LedgerAmount:     decimal.RequireFromString("100"),
		AmountDifference: decimal.Zero,
		Outcome:          models.OutcomeExact,
		Confidence:       0.9,
		Score:            90,
	}
	if err := s.InsertReconciliations(ctx, []models.Reconciliation{record}); err != nil {
		t.Fatalf("InsertReconciliations() error = %v", err)
	}
	consumed, err := s.ReconciledRefs(ctx, company)
	if err != nil {
		t.Fatalf("ReconciledRefs() error = %v", err)
	}
	if !consumed.HasStatement(entries[0].ID) {
		t.Error("expected reconciled statement to be reported")
	}
	if ids := consumed.LedgerIDList(); len(ids) != 1 || ids[0] != "cf-1" {
		t.Errorf("unexpected consumed ledger ids %v", ids)
	}

	alert := models.FinancialAlert{
		ID:        uuid.NewString(),
		CompanyID: company,
		AlertType: models.AlertOrphanStatementEntry,
		Priority:  models.PriorityMedium,
		Title:     "t",
		Message:   "m",
		Details:   map[string]interface{}{"amount": "250.50"},
		Status:    models.AlertStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.InsertAlerts(ctx, []models.FinancialAlert{alert}); err != nil {
		t.Fatalf("InsertAlerts() error = %v", err)
	}
	alerts, err := s.ListAlerts(ctx, company)
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(alerts) != 1 || alerts[0].Details["amount"] != "250.50" {
		t.Errorf("unexpected alerts %+v", alerts)
	}

	companies, err := s.Companies(ctx)
	if err != nil {
		t.Fatalf("Companies() error = %v", err)
	}
	found := false
	for _, c := range companies {
		found = found || c == company
	}
	if !found {
		t.Errorf("expected %s in companies %v", company, companies)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(), "c1")
}

func TestMemoryStore_LedgerEntries(t *testing.T) {
	s := NewMemoryStore()
	s.SeedLedger(
		models.LedgerEntry{ID: "1", CompanyID: "c1", EntryDate: day(5), Kind: models.LedgerKindIn, Amount: decimal.NewFromInt(1)},
		models.LedgerEntry{ID: "2", CompanyID: "c1", EntryDate: day(10), Kind: models.LedgerKindIn, Amount: decimal.NewFromInt(1)},
		models.LedgerEntry{ID: "3", CompanyID: "c1", EntryDate: day(11), Kind: models.LedgerKindOut, Amount: decimal.NewFromInt(1)},
		models.LedgerEntry{ID: "4", CompanyID: "c2", EntryDate: day(10), Kind: models.LedgerKindIn, Amount: decimal.NewFromInt(1)},
	)

	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"inclusive bounds", day(5), day(10), 2},
		{"single day", day(11), day(11), 1},
		{"empty window", day(20), day(25), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.LedgerEntries(context.Background(), "c1", tt.from, tt.to)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestMemoryStore_InsertRejectsInvalidRows(t *testing.T) {
	s := NewMemoryStore()
	bad := sampleStatement("c1", 10, "1", "")
	bad.Amount = decimal.NewFromInt(-5)

	err := s.InsertStatements(context.Background(), []models.StatementEntry{sampleStatement("c1", 10, "1", ""), bad})
	if err == nil {
		t.Fatal("expected negative amount to be rejected")
	}
	if len(s.Statements()) != 0 {
		t.Errorf("expected batch to be all-or-nothing, stored %d rows", len(s.Statements()))
	}
}

func TestSchema(t *testing.T) {
	for _, table := range []string{"bank_statements", "cashflow_entries", "reconciliations", "financial_alerts"} {
		if !strings.Contains(Schema(), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema is missing table %s", table)
		}
	}
}

// TestPostgresStore runs against a real database when RECONCILER_TEST_DSN is set
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("RECONCILER_TEST_DSN")
	if dsn == "" {
		t.Skip("RECONCILER_TEST_DSN not set")
	}

	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer s.Close()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	exerciseStore(t, s, "test-"+uuid.NewString())
}
