package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDirection_IsValid(t *testing.T) {
	tests := []struct {
		direction Direction
		valid     bool
	}{
		{DirectionCredit, true},
		{DirectionDebit, true},
		{"CREDIT", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.direction), func(t *testing.T) {
			if got := tt.direction.IsValid(); got != tt.valid {
				t.Errorf("Direction.IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestDirection_LedgerKind(t *testing.T) {
	if DirectionCredit.LedgerKind() != LedgerKindIn {
		t.Errorf("expected credit to map to %s", LedgerKindIn)
	}
	if DirectionDebit.LedgerKind() != LedgerKindOut {
		t.Errorf("expected debit to map to %s", LedgerKindOut)
	}
}

func TestStatementEntry_Validate(t *testing.T) {
	validDate := Date(2024, time.March, 10)
	validAmount := decimal.RequireFromString("150.00")

	tests := []struct {
		name      string
		entry     StatementEntry
		wantError bool
	}{
		{
			name:  "Valid entry",
			entry: StatementEntry{CompanyID: "c1", MovementDate: validDate, Direction: DirectionCredit, Amount: validAmount},
		},
		{
			name:  "Zero amount is allowed",
			entry: StatementEntry{CompanyID: "c1", MovementDate: validDate, Direction: DirectionDebit, Amount: decimal.Zero},
		},
		{
			name:      "Negative amount",
			entry:     StatementEntry{CompanyID: "c1", MovementDate: validDate, Direction: DirectionDebit, Amount: validAmount.Neg()},
			wantError: true,
		},
		{
			name:      "Missing company",
			entry:     StatementEntry{MovementDate: validDate, Direction: DirectionCredit, Amount: validAmount},
			wantError: true,
		},
		{
			name:      "Missing date",
			entry:     StatementEntry{CompanyID: "c1", Direction: DirectionCredit, Amount: validAmount},
			wantError: true,
		},
		{
			name:      "Invalid direction",
			entry:     StatementEntry{CompanyID: "c1", MovementDate: validDate, Direction: "sideways", Amount: validAmount},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("StatementEntry.Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestLedgerEntry_Validate(t *testing.T) {
	tests := []struct {
		name      string
		entry     LedgerEntry
		wantError bool
	}{
		{"Valid", LedgerEntry{ID: "L1", Kind: LedgerKindIn, Amount: decimal.NewFromInt(10)}, false},
		{"Missing id", LedgerEntry{Kind: LedgerKindIn, Amount: decimal.NewFromInt(10)}, true},
		{"Bad kind", LedgerEntry{ID: "L1", Kind: "credit", Amount: decimal.NewFromInt(10)}, true},
		{"Negative", LedgerEntry{ID: "L1", Kind: LedgerKindOut, Amount: decimal.NewFromInt(-1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("LedgerEntry.Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestStatementEntry_Reference(t *testing.T) {
	persisted := StatementEntry{ID: "row-1", ExternalDocumentID: "F360-9"}
	if persisted.Reference() != "row-1" {
		t.Errorf("expected persisted id, got %s", persisted.Reference())
	}

	mirrored := StatementEntry{ExternalDocumentID: "F360-9"}
	if mirrored.Reference() != "F360-9" {
		t.Errorf("expected external document id, got %s", mirrored.Reference())
	}
}

func TestStatementEntry_JSON(t *testing.T) {
	balance := decimal.RequireFromString("900.5")
	entry := StatementEntry{
		ID:             "row-1",
		CompanyID:      "c1",
		AccountCode:    "001",
		MovementDate:   Date(2024, time.January, 15),
		Direction:      DirectionDebit,
		Amount:         decimal.RequireFromString("100.5"),
		Description:    "PIX ENVIADO",
		RunningBalance: &balance,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Failed to marshal statement entry: %v", err)
	}

	encoded := string(data)
	for _, want := range []string{`"movement_date":"2024-01-15"`, `"amount":"100.50"`, `"running_balance":"900.50"`} {
		if !strings.Contains(encoded, want) {
			t.Errorf("expected %s in %s", want, encoded)
		}
	}

	var decoded StatementEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal statement entry: %v", err)
	}
	if !decoded.MovementDate.Equal(entry.MovementDate) {
		t.Errorf("expected date %s, got %s", entry.MovementDate, decoded.MovementDate)
	}
	if !decoded.Amount.Equal(entry.Amount) {
		t.Errorf("expected amount %s, got %s", entry.Amount, decoded.Amount)
	}
	if decoded.RunningBalance == nil || !decoded.RunningBalance.Equal(balance) {
		t.Errorf("expected running balance %s, got %v", balance, decoded.RunningBalance)
	}
}

func TestReconciliation_JSON(t *testing.T) {
	rec := Reconciliation{
		ID:               "r1",
		ReconciledOn:     Date(2024, time.May, 2),
		StatementAmount:  decimal.RequireFromString("100"),
		LedgerAmount:     decimal.RequireFromString("99.5"),
		AmountDifference: decimal.RequireFromString("0.5"),
		Outcome:          OutcomeDivergent,
		Confidence:       0.8,
		Score:            80,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Failed to marshal reconciliation: %v", err)
	}
	encoded := string(data)
	for _, want := range []string{`"reconciled_on":"2024-05-02"`, `"ledger_amount":"99.50"`, `"outcome":"divergent"`} {
		if !strings.Contains(encoded, want) {
			t.Errorf("expected %s in %s", want, encoded)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		input   string
		valid   bool
		want    string
		pattern DatePattern
	}{
		{"15/01/2024", true, "2024-01-15", PatternDayMonthYearSlash},
		{"5/1/2024", true, "2024-01-05", PatternDayMonthYearSlash},
		{"2024-01-15", true, "2024-01-15", PatternISO},
		{"2024-01-15T10:30:00", true, "2024-01-15", PatternISO},
		{"15-01-2024", true, "2024-01-15", PatternDayMonthYearDash},
		{"15012024", true, "2024-01-15", PatternCompact},
		{" 29/02/2024 ", true, "2024-02-29", PatternDayMonthYearSlash},
		{"31/02/2024", false, "", ""},
		{"29/02/2023", false, "", ""},
		{"2024-13-01", false, "", ""},
		{"01/15/2024", false, "", ""},
		{"yesterday", false, "", ""},
		{"", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeDate(tt.input)
			if got.Valid != tt.valid {
				t.Fatalf("NormalizeDate(%q).Valid = %v, want %v", tt.input, got.Valid, tt.valid)
			}
			if got.ISO() != tt.want {
				t.Errorf("NormalizeDate(%q) = %s, want %s", tt.input, got.ISO(), tt.want)
			}
			if got.Pattern != tt.pattern {
				t.Errorf("NormalizeDate(%q).Pattern = %s, want %s", tt.input, got.Pattern, tt.pattern)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	a := Date(2024, time.February, 28)
	b := time.Date(2024, time.March, 2, 23, 59, 0, 0, time.UTC)

	if got := DaysBetween(a, b); got != 3 {
		t.Errorf("expected 3 days, got %d", got)
	}
	if got := DaysBetween(b, a); got != 3 {
		t.Errorf("expected symmetric result, got %d", got)
	}
	if got := DaysBetween(a, a); got != 0 {
		t.Errorf("expected 0 days, got %d", got)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1234.56", "1234.56", false},
		{"1.234,56", "1234.56", false},
		{"1,234.56", "1234.56", false},
		{"1234,56", "1234.56", false},
		{"R$ 1.500,00", "1500", false},
		{"R$1.234.567,8", "1234567.8", false},
		{"-150,25", "-150.25", false},
		{"(80.00)", "-80", false},
		{"1.234", "1234", false},
		{"100", "100", false},
		{"", "", true},
		{"R$", "", true},
		{"abc", "", true},
		{"12a,50", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestPercentDifference(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{"equal", "100", "100", "0"},
		{"one percent of larger", "100", "99", "1"},
		{"symmetric", "99", "100", "1"},
		{"both zero", "0", "0", "0"},
		{"one zero", "0", "50", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentDifference(decimal.RequireFromString(tt.a), decimal.RequireFromString(tt.b))
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("PercentDifference(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestFormatBRL(t *testing.T) {
	if got := FormatBRL(decimal.RequireFromString("1500.5")); got != "R$ 1500.50" {
		t.Errorf("unexpected format: %s", got)
	}
}
