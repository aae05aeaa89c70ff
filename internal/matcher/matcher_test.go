package matcher

import (
	"testing"
	"time"

	"cashflow-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

func statement(id string, day int, direction models.Direction, amount string) models.StatementEntry {
	return models.StatementEntry{
		ID:           id,
		CompanyID:    "c1",
		MovementDate: models.Date(2024, time.March, day),
		Direction:    direction,
		Amount:       decimal.RequireFromString(amount),
	}
}

func ledger(id string, day int, kind models.LedgerKind, amount string) models.LedgerEntry {
	return models.LedgerEntry{
		ID:        id,
		CompanyID: "c1",
		EntryDate: models.Date(2024, time.March, day),
		Kind:      kind,
		Amount:    decimal.RequireFromString(amount),
	}
}

func TestMatch_Dispositions(t *testing.T) {
	tests := []struct {
		name            string
		stmt            models.StatementEntry
		ledger          []models.LedgerEntry
		wantDisposition Disposition
		wantScore       int
		wantOutcome     models.Outcome
	}{
		{
			name:            "exact same day",
			stmt:            statement("s1", 10, models.DirectionCredit, "1000.00"),
			ledger:          []models.LedgerEntry{ledger("L1", 10, models.LedgerKindIn, "1000.00")},
			wantDisposition: DispositionMatched,
			wantScore:       90,
			wantOutcome:     models.OutcomeExact,
		},
		{
			name:            "close amount two days apart is divergent",
			stmt:            statement("s1", 10, models.DirectionCredit, "1003.00"),
			ledger:          []models.LedgerEntry{ledger("L1", 12, models.LedgerKindIn, "1000.00")},
			wantDisposition: DispositionMatched,
			wantScore:       60,
			wantOutcome:     models.OutcomeDivergent,
		},
		{
			name:            "next day debit",
			stmt:            statement("s1", 10, models.DirectionDebit, "250.00"),
			ledger:          []models.LedgerEntry{ledger("L1", 9, models.LedgerKindOut, "250.00")},
			wantDisposition: DispositionMatched,
			wantScore:       80,
			wantOutcome:     models.OutcomeExact,
		},
		{
			name:            "amount past cutoff",
			stmt:            statement("s1", 10, models.DirectionCredit, "940.00"),
			ledger:          []models.LedgerEntry{ledger("L1", 10, models.LedgerKindIn, "1000.00")},
			wantDisposition: DispositionNoCandidates,
		},
		{
			name:            "candidate below threshold",
			stmt:            statement("s1", 10, models.DirectionCredit, "1040.00"),
			ledger:          []models.LedgerEntry{ledger("L1", 12, models.LedgerKindIn, "1000.00")},
			wantDisposition: DispositionBelowThreshold,
			wantScore:       50,
		},
		{
			name:            "opposite side never matches",
			stmt:            statement("s1", 10, models.DirectionDebit, "1000.00"),
			ledger:          []models.LedgerEntry{ledger("L1", 10, models.LedgerKindIn, "1000.00")},
			wantDisposition: DispositionNoCandidates,
		},
		{
			name:            "window edge is included",
			stmt:            statement("s1", 10, models.DirectionCredit, "500.00"),
			ledger:          []models.LedgerEntry{ledger("L1", 13, models.LedgerKindIn, "500.00")},
			wantDisposition: DispositionMatched,
			wantScore:       70,
			wantOutcome:     models.OutcomeExact,
		},
		{
			name:            "past the window",
			stmt:            statement("s1", 10, models.DirectionCredit, "500.00"),
			ledger:          []models.LedgerEntry{ledger("L1", 14, models.LedgerKindIn, "500.00")},
			wantDisposition: DispositionNoCandidates,
		},
		{
			name:            "empty ledger",
			stmt:            statement("s1", 10, models.DirectionCredit, "500.00"),
			wantDisposition: DispositionNoCandidates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMatchingEngine(DefaultMatchingConfig())
			engine.LoadLedger(tt.ledger)

			result := engine.Match(tt.stmt)
			if result.Disposition != tt.wantDisposition {
				t.Fatalf("disposition = %s, want %s", result.Disposition, tt.wantDisposition)
			}
			if tt.wantScore == 0 {
				if result.Best != nil {
					t.Errorf("expected no best candidate, got %+v", result.Best)
				}
				return
			}
			if result.Best == nil {
				t.Fatal("expected a best candidate")
			}
			if got := result.Best.Score.Total(); got != tt.wantScore {
				t.Errorf("score = %d, want %d", got, tt.wantScore)
			}
			if result.Matched() && result.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", result.Outcome, tt.wantOutcome)
			}
		})
	}
}

func TestMatch_Confidence(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadLedger([]models.LedgerEntry{ledger("L1", 10, models.LedgerKindIn, "1000.00")})

	result := engine.Match(statement("s1", 10, models.DirectionCredit, "1000.00"))
	if result.Confidence() != 0.9 {
		t.Errorf("confidence = %v, want 0.9", result.Confidence())
	}

	empty := &MatchResult{}
	if empty.Confidence() != 0 {
		t.Errorf("expected zero confidence without candidate, got %v", empty.Confidence())
	}
}

func TestMatchAll_OneToOne(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadLedger([]models.LedgerEntry{ledger("L1", 10, models.LedgerKindIn, "1000.00")})

	result := engine.MatchAll([]models.StatementEntry{
		statement("s1", 10, models.DirectionCredit, "1000.00"),
		statement("s2", 10, models.DirectionCredit, "1000.00"),
	})

	if !result.Results[0].Matched() {
		t.Fatal("expected first statement to win the ledger entry")
	}
	if result.Results[1].Disposition != DispositionNoCandidates {
		t.Errorf("expected second statement to find nothing, got %s", result.Results[1].Disposition)
	}
	if !engine.IsConsumed("L1") {
		t.Error("expected L1 to be consumed")
	}

	if result.Summary.Matched != 1 || result.Summary.NoCandidates != 1 {
		t.Errorf("unexpected summary: %+v", result.Summary)
	}
	if !result.Summary.TotalAmountMatched.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("matched amount = %s", result.Summary.TotalAmountMatched)
	}
	if !result.Summary.TotalAmountUnmatched.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("unmatched amount = %s", result.Summary.TotalAmountUnmatched)
	}
}

func TestMergeResults(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadLedger([]models.LedgerEntry{ledger("L1", 10, models.LedgerKindIn, "1000.00")})

	first := engine.MatchAll([]models.StatementEntry{statement("bank", 10, models.DirectionCredit, "1000.00")})
	second := engine.MatchAll([]models.StatementEntry{statement("mirror", 10, models.DirectionCredit, "1000.00")})
	merged := MergeResults(first, nil, second)

	if len(merged.Results) != 2 || merged.Results[0].Statement.ID != "bank" {
		t.Fatalf("expected passes concatenated in order, got %d results", len(merged.Results))
	}
	if merged.Summary.TotalStatements != 2 || merged.Summary.Matched != 1 || merged.Summary.NoCandidates != 1 {
		t.Errorf("unexpected summary: %+v", merged.Summary)
	}
}

func TestMatchAll_NoLedgerEntryUsedTwice(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadLedger([]models.LedgerEntry{
		ledger("L1", 10, models.LedgerKindIn, "100.00"),
		ledger("L2", 11, models.LedgerKindIn, "100.00"),
		ledger("L3", 12, models.LedgerKindIn, "100.50"),
	})

	var statements []models.StatementEntry
	for i := 0; i < 5; i++ {
		statements = append(statements, statement("s", 11, models.DirectionCredit, "100.00"))
	}

	result := engine.MatchAll(statements)
	seen := make(map[string]bool)
	for _, r := range result.Results {
		if !r.Matched() {
			continue
		}
		if seen[r.Best.Ledger.ID] {
			t.Fatalf("ledger entry %s matched twice", r.Best.Ledger.ID)
		}
		seen[r.Best.Ledger.ID] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 matches, got %d", len(seen))
	}
	if result.Summary.ExactMatches != 2 || result.Summary.DivergentMatches != 1 {
		t.Errorf("unexpected outcome split: %+v", result.Summary)
	}
}

func TestMarkConsumed(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadLedger([]models.LedgerEntry{ledger("L1", 10, models.LedgerKindIn, "1000.00")})
	engine.MarkConsumed("L1")

	result := engine.Match(statement("s1", 10, models.DirectionCredit, "1000.00"))
	if result.Disposition != DispositionNoCandidates {
		t.Errorf("expected consumed entry to be skipped, got %s", result.Disposition)
	}
}

func TestFindCandidates_TieBreak(t *testing.T) {
	tests := []struct {
		name   string
		stmt   models.StatementEntry
		ledger []models.LedgerEntry
		wantID string
	}{
		{
			name: "higher score wins",
			stmt: statement("s1", 10, models.DirectionCredit, "1000.00"),
			ledger: []models.LedgerEntry{
				ledger("A", 11, models.LedgerKindIn, "1000.00"),
				ledger("B", 10, models.LedgerKindIn, "1000.00"),
			},
			wantID: "B",
		},
		{
			name: "smaller date difference wins on equal score",
			stmt: statement("s1", 10, models.DirectionCredit, "1000.00"),
			ledger: []models.LedgerEntry{
				ledger("A", 7, models.LedgerKindIn, "1000.00"),
				ledger("B", 12, models.LedgerKindIn, "1000.00"),
			},
			wantID: "B",
		},
		{
			name: "smaller amount difference wins on equal score and date",
			stmt: statement("s1", 10, models.DirectionCredit, "1000.00"),
			ledger: []models.LedgerEntry{
				ledger("A", 10, models.LedgerKindIn, "1002.00"),
				ledger("B", 10, models.LedgerKindIn, "1001.00"),
			},
			wantID: "B",
		},
		{
			name: "lowest id wins on full tie",
			stmt: statement("s1", 10, models.DirectionCredit, "1000.00"),
			ledger: []models.LedgerEntry{
				ledger("L2", 10, models.LedgerKindIn, "1000.00"),
				ledger("L1", 10, models.LedgerKindIn, "1000.00"),
			},
			wantID: "L1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMatchingEngine(nil)
			engine.LoadLedger(tt.ledger)

			candidates := engine.FindCandidates(&tt.stmt)
			if len(candidates) != len(tt.ledger) {
				t.Fatalf("expected %d candidates, got %d", len(tt.ledger), len(candidates))
			}
			if candidates[0].Ledger.ID != tt.wantID {
				t.Errorf("best = %s, want %s", candidates[0].Ledger.ID, tt.wantID)
			}
		})
	}
}

func TestScorePair_Symmetric(t *testing.T) {
	engine := NewMatchingEngine(nil)

	pairs := []struct {
		stmtDay, ledgerDay       int
		stmtAmount, ledgerAmount string
	}{
		{10, 12, "1003.00", "1000.00"},
		{10, 11, "99.50", "100.00"},
		{10, 10, "1000.00", "1000.00"},
		{10, 7, "200.00", "204.00"},
	}

	for _, p := range pairs {
		s := statement("s", p.stmtDay, models.DirectionCredit, p.stmtAmount)
		l := ledger("l", p.ledgerDay, models.LedgerKindIn, p.ledgerAmount)
		swappedS := statement("s", p.ledgerDay, models.DirectionCredit, p.ledgerAmount)
		swappedL := ledger("l", p.stmtDay, models.LedgerKindIn, p.stmtAmount)

		a, okA := engine.ScorePair(&s, &l)
		b, okB := engine.ScorePair(&swappedS, &swappedL)
		if okA != okB || a.Score != b.Score {
			t.Errorf("asymmetric score for %+v: %+v/%v vs %+v/%v", p, a.Score, okA, b.Score, okB)
		}
		if total := a.Score.Total(); total < 0 || total > 100 {
			t.Errorf("score %d out of range", total)
		}
	}
}

func TestDefaultMatchingConfig_Bands(t *testing.T) {
	config := DefaultMatchingConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	dateTests := map[int]int{0: 40, 1: 30, 2: 20, 3: 20, 4: 0}
	for days, want := range dateTests {
		if got := config.DateScore(days); got != want {
			t.Errorf("DateScore(%d) = %d, want %d", days, got, want)
		}
	}

	amountTests := []struct {
		percent string
		want    int
		ok      bool
	}{
		{"0", 50, true},
		{"0.0099", 50, true},
		{"0.01", 40, true},
		{"0.99", 40, true},
		{"1", 30, true},
		{"4.99", 30, true},
		{"5", 0, false},
		{"12", 0, false},
	}
	for _, tt := range amountTests {
		got, ok := config.AmountScore(decimal.RequireFromString(tt.percent))
		if got != tt.want || ok != tt.ok {
			t.Errorf("AmountScore(%s) = %d/%v, want %d/%v", tt.percent, got, ok, tt.want, tt.ok)
		}
	}

	if !config.IsExact(decimal.RequireFromString("0.009")) {
		t.Error("expected 0.009 to be exact")
	}
	if config.IsExact(decimal.RequireFromString("0.01")) {
		t.Error("expected 0.01 to be divergent")
	}
}

func TestMatchingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*MatchingConfig)
		wantErr bool
	}{
		{"default", func(*MatchingConfig) {}, false},
		{"negative window", func(c *MatchingConfig) { c.WindowDays = -1 }, true},
		{"negative score", func(c *MatchingConfig) { c.CloseScore = -5 }, true},
		{"bands out of order", func(c *MatchingConfig) { c.ClosePercent = 10 }, true},
		{"score above 100", func(c *MatchingConfig) { c.SameDayScore = 60 }, true},
		{"min score above 100", func(c *MatchingConfig) { c.MinScore = 101 }, true},
		{"negative tolerance", func(c *MatchingConfig) { c.ExactTolerance = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultMatchingConfig()
			tt.modify(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

