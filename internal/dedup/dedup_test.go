package dedup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cashflow-reconciler/internal/models"
)

func entry(day int, amount, description, document string) models.StatementEntry {
	return models.StatementEntry{
		CompanyID:          "c1",
		MovementDate:       models.Date(2024, time.January, day),
		Direction:          models.DirectionCredit,
		Amount:             decimal.RequireFromString(amount),
		Description:        description,
		ExternalDocumentID: document,
	}
}

func TestStatements(t *testing.T) {
	tests := []struct {
		name    string
		input   []models.StatementEntry
		wantLen int
	}{
		{
			name:    "empty input",
			input:   nil,
			wantLen: 0,
		},
		{
			name: "same key collapses",
			input: []models.StatementEntry{
				entry(10, "100.00", "PIX", "A"),
				entry(10, "100", "PIX", "B"),
			},
			wantLen: 1,
		},
		{
			name: "different description is kept",
			input: []models.StatementEntry{
				entry(10, "100", "PIX", ""),
				entry(10, "100", "TED", ""),
			},
			wantLen: 2,
		},
		{
			name: "empty description falls back to document",
			input: []models.StatementEntry{
				entry(10, "100", "", "DOC1"),
				entry(10, "100", "", "DOC2"),
				entry(10, "100", "", "DOC1"),
			},
			wantLen: 2,
		},
		{
			name: "different date is kept",
			input: []models.StatementEntry{
				entry(10, "100", "PIX", ""),
				entry(11, "100", "PIX", ""),
			},
			wantLen: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Statements(tt.input)
			if len(got) != tt.wantLen {
				t.Errorf("Statements() returned %d entries, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestStatements_FirstOccurrenceWinsAndIdempotent(t *testing.T) {
	input := []models.StatementEntry{
		entry(12, "50", "BOLETO", "first"),
		entry(11, "10", "TARIFA", ""),
		entry(12, "50", "BOLETO", "second"),
	}

	once := Statements(input)
	if len(once) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(once))
	}
	if once[0].ExternalDocumentID != "first" {
		t.Errorf("expected first occurrence to win, got %s", once[0].ExternalDocumentID)
	}
	if once[1].Description != "TARIFA" {
		t.Errorf("expected input order to be preserved, got %s", once[1].Description)
	}

	twice := Statements(once)
	if len(twice) != len(once) {
		t.Errorf("expected dedup to be idempotent, got %d then %d", len(once), len(twice))
	}
}

func TestDetect_Groups(t *testing.T) {
	result := Detect([]models.StatementEntry{
		entry(10, "100", "PIX", "a"),
		entry(10, "100", "PIX", "b"),
		entry(10, "100", "PIX", "c"),
		entry(11, "5", "TARIFA", ""),
	})

	if len(result.Groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", len(result.Groups))
	}
	if len(result.Groups[0].Entries) != 3 {
		t.Errorf("expected 3 entries in group, got %d", len(result.Groups[0].Entries))
	}
	if result.Removed() != 2 {
		t.Errorf("expected 2 removed entries, got %d", result.Removed())
	}
	if result.Groups[0].Key.String() != "2024-01-10|100|PIX" {
		t.Errorf("unexpected key: %s", result.Groups[0].Key)
	}
}

func TestFilterPersisted(t *testing.T) {
	stored := entry(10, "100.00", "PIX", "DOC1")
	existing := map[string]struct{}{PersistedKey(stored): {}}

	incoming := []models.StatementEntry{
		entry(10, "100", "PIX RECEBIDO", "DOC1"),
		entry(10, "100", "PIX", "DOC2"),
		entry(10, "100", "PIX", "DOC2"),
	}

	fresh, duplicates := FilterPersisted(incoming, existing)
	if duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", duplicates)
	}
	if len(fresh) != 2 {
		t.Errorf("expected in-file repeats to be kept, got %d fresh entries", len(fresh))
	}
}
