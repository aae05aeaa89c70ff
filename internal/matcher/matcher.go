package matcher

import (
	"sort"

	"cashflow-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// Disposition is the terminal state of one statement entry after matching
type Disposition int

const (
	// DispositionMatched means the best candidate reached the acceptance threshold
	DispositionMatched Disposition = iota

	// DispositionNoCandidates means no ledger entry of the same side sat in the
	// window within the amount cutoff
	DispositionNoCandidates

	// DispositionBelowThreshold means candidates existed but none scored enough
	DispositionBelowThreshold
)

// String returns the string representation of Disposition
func (d Disposition) String() string {
	switch d {
	case DispositionMatched:
		return "Matched"
	case DispositionNoCandidates:
		return "NoCandidates"
	case DispositionBelowThreshold:
		return "BelowThreshold"
	default:
		return "Unknown"
	}
}

// Score is the two-axis fitness of a statement/ledger pair
type Score struct {
	Date   int
	Amount int
}

// Total returns the combined 0-100 score
func (s Score) Total() int {
	return s.Date + s.Amount
}

// Candidate is a ledger entry that passed the window, side and amount cutoff filters
type Candidate struct {
	Ledger            *models.LedgerEntry
	Score             Score
	DateDifference    int
	AmountDifference  decimal.Decimal
	PercentDifference decimal.Decimal
}

// MatchResult describes how one statement entry was resolved
type MatchResult struct {
	Statement      models.StatementEntry
	Disposition    Disposition
	Best           *Candidate
	CandidateCount int
	Outcome        models.Outcome
}

// Matched reports whether the statement entry was paired
func (mr *MatchResult) Matched() bool {
	return mr.Disposition == DispositionMatched
}

// Confidence returns score/100 of the best candidate, or zero without one
func (mr *MatchResult) Confidence() float64 {
	if mr.Best == nil {
		return 0
	}
	return float64(mr.Best.Score.Total()) / 100
}

// ReconciliationResult represents the result of one matching pass
type ReconciliationResult struct {
	Results []*MatchResult
	Summary ReconciliationSummary
}

// ReconciliationSummary provides aggregate statistics about a matching pass
type ReconciliationSummary struct {
	TotalStatements      int
	Matched              int
	ExactMatches         int
	DivergentMatches     int
	NoCandidates         int
	BelowThreshold       int
	TotalAmountMatched   decimal.Decimal
	TotalAmountUnmatched decimal.Decimal
}

// MatchingEngine pairs statement entries with ledger entries one to one
type MatchingEngine struct {
	Config      *MatchingConfig
	LedgerIndex *LedgerIndex
	consumed    map[string]struct{}
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config:      config,
		LedgerIndex: NewLedgerIndex(nil),
		consumed:    make(map[string]struct{}),
	}
}

// LoadLedger loads ledger entries into the engine and builds the index
func (me *MatchingEngine) LoadLedger(entries []models.LedgerEntry) {
	me.LedgerIndex = NewLedgerIndex(entries)
}

// MarkConsumed excludes ledger entries from future matching, typically those
// already paired by earlier reconciliations
func (me *MatchingEngine) MarkConsumed(ledgerIDs ...string) {
	for _, id := range ledgerIDs {
		me.consumed[id] = struct{}{}
	}
}

// IsConsumed reports whether a ledger entry can no longer be matched
func (me *MatchingEngine) IsConsumed(ledgerID string) bool {
	_, ok := me.consumed[ledgerID]
	return ok
}

// ScorePair scores a statement/ledger pair. ok is false when the pair can
// never match: different side, outside the window, or past the amount cutoff.
// The result depends only on absolute differences.
func (me *MatchingEngine) ScorePair(stmt *models.StatementEntry, ledger *models.LedgerEntry) (Candidate, bool) {
	if stmt.Direction.LedgerKind() != ledger.Kind {
		return Candidate{}, false
	}

	days := models.DaysBetween(stmt.MovementDate, ledger.EntryDate)
	if days > me.Config.WindowDays {
		return Candidate{}, false
	}

	percent := models.PercentDifference(stmt.Amount, ledger.Amount)
	amountScore, ok := me.Config.AmountScore(percent)
	if !ok {
		return Candidate{}, false
	}

	return Candidate{
		Ledger:            ledger,
		Score:             Score{Date: me.Config.DateScore(days), Amount: amountScore},
		DateDifference:    days,
		AmountDifference:  stmt.Amount.Sub(ledger.Amount).Abs(),
		PercentDifference: percent,
	}, true
}

// FindCandidates returns every unconsumed candidate for a statement entry, best first.
// Ordering: score desc, date difference asc, amount difference asc, ledger id asc.
func (me *MatchingEngine) FindCandidates(stmt *models.StatementEntry) []Candidate {
	var candidates []Candidate
	for _, ledger := range me.LedgerIndex.GetWindow(stmt, me.Config.WindowDays) {
		if me.IsConsumed(ledger.ID) {
			continue
		}
		if candidate, ok := me.ScorePair(stmt, ledger); ok {
			candidates = append(candidates, candidate)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score.Total() != b.Score.Total() {
			return a.Score.Total() > b.Score.Total()
		}
		if a.DateDifference != b.DateDifference {
			return a.DateDifference < b.DateDifference
		}
		if cmp := a.AmountDifference.Cmp(b.AmountDifference); cmp != 0 {
			return cmp < 0
		}
		return a.Ledger.ID < b.Ledger.ID
	})

	return candidates
}

// Match resolves one statement entry. An accepted ledger entry is consumed.
func (me *MatchingEngine) Match(stmt models.StatementEntry) *MatchResult {
	candidates := me.FindCandidates(&stmt)
	result := &MatchResult{
		Statement:      stmt,
		CandidateCount: len(candidates),
	}

	if len(candidates) == 0 {
		result.Disposition = DispositionNoCandidates
		return result
	}

	best := candidates[0]
	result.Best = &best

	if best.Score.Total() < me.Config.MinScore {
		result.Disposition = DispositionBelowThreshold
		return result
	}

	result.Disposition = DispositionMatched
	result.Outcome = models.OutcomeDivergent
	if me.Config.IsExact(best.AmountDifference) {
		result.Outcome = models.OutcomeExact
	}
	me.consumed[best.Ledger.ID] = struct{}{}

	return result
}

// MatchAll resolves statement entries in order; earlier entries win contested ledger entries
func (me *MatchingEngine) MatchAll(statements []models.StatementEntry) *ReconciliationResult {
	results := make([]*MatchResult, 0, len(statements))
	for _, stmt := range statements {
		results = append(results, me.Match(stmt))
	}

	return &ReconciliationResult{
		Results: results,
		Summary: calculateSummary(results),
	}
}

// MergeResults concatenates matching passes in order and recomputes the summary
func MergeResults(passes ...*ReconciliationResult) *ReconciliationResult {
	var results []*MatchResult
	for _, pass := range passes {
		if pass != nil {
			results = append(results, pass.Results...)
		}
	}
	return &ReconciliationResult{
		Results: results,
		Summary: calculateSummary(results),
	}
}

// calculateSummary calculates summary statistics for a matching pass
func calculateSummary(results []*MatchResult) ReconciliationSummary {
	summary := ReconciliationSummary{
		TotalStatements:      len(results),
		TotalAmountMatched:   decimal.Zero,
		TotalAmountUnmatched: decimal.Zero,
	}

	for _, r := range results {
		switch r.Disposition {
		case DispositionMatched:
			summary.Matched++
			if r.Outcome == models.OutcomeExact {
				summary.ExactMatches++
			} else {
				summary.DivergentMatches++
			}
			summary.TotalAmountMatched = summary.TotalAmountMatched.Add(r.Statement.Amount)
			continue
		case DispositionNoCandidates:
			summary.NoCandidates++
		case DispositionBelowThreshold:
			summary.BelowThreshold++
		}
		summary.TotalAmountUnmatched = summary.TotalAmountUnmatched.Add(r.Statement.Amount)
	}

	return summary
}

// GetStats returns statistics about the loaded ledger
func (me *MatchingEngine) GetStats() IndexStats {
	return me.LedgerIndex.GetIndexStats()
}
