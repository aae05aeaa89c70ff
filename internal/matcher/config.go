// Package matcher pairs bank statement entries with ledger entries.
//
// Every statement entry is compared with the ledger entries of the same side
// (credit with in, debit with out) dated within a window around its movement
// date. Each candidate gets a 0-100 score from two independent axes:
//   - date proximity: same day, one day apart, or elsewhere inside the window
//   - amount proximity: percentage difference relative to the larger amount,
//     with a hard cutoff above which the candidate is discarded
//
// The best candidate is accepted when its score reaches the acceptance
// threshold. An accepted ledger entry is consumed and cannot be paired again
// in the same run, nor in later runs once the pairing is persisted.
//
// Example usage:
//
//	engine := matcher.NewMatchingEngine(matcher.DefaultMatchingConfig())
//	engine.LoadLedger(ledgerEntries)
//	engine.MarkConsumed(alreadyReconciledLedgerIDs...)
//	result := engine.MatchAll(statements)
package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchingConfig holds the scoring bands and thresholds used by the engine
type MatchingConfig struct {
	// WindowDays is how many calendar days a ledger entry may sit away from
	// the movement date and still be a candidate
	WindowDays int `json:"window_days" mapstructure:"window_days"`

	// Date axis
	SameDayScore  int `json:"same_day_score" mapstructure:"same_day_score"`
	NextDayScore  int `json:"next_day_score" mapstructure:"next_day_score"`
	InWindowScore int `json:"in_window_score" mapstructure:"in_window_score"`

	// Amount axis, percentage bands are exclusive upper bounds
	NearExactPercent  float64 `json:"near_exact_percent" mapstructure:"near_exact_percent"`
	NearExactScore    int     `json:"near_exact_score" mapstructure:"near_exact_score"`
	ClosePercent      float64 `json:"close_percent" mapstructure:"close_percent"`
	CloseScore        int     `json:"close_score" mapstructure:"close_score"`
	CutoffPercent     float64 `json:"cutoff_percent" mapstructure:"cutoff_percent"`
	WithinCutoffScore int     `json:"within_cutoff_score" mapstructure:"within_cutoff_score"`

	// MinScore is the acceptance threshold
	MinScore int `json:"min_score" mapstructure:"min_score"`

	// ExactTolerance is the largest absolute difference still classified as exact (exclusive)
	ExactTolerance float64 `json:"exact_tolerance" mapstructure:"exact_tolerance"`
}

// DefaultMatchingConfig returns the scoring used for bank reconciliation
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		WindowDays:        3,
		SameDayScore:      40,
		NextDayScore:      30,
		InWindowScore:     20,
		NearExactPercent:  0.01,
		NearExactScore:    50,
		ClosePercent:      1,
		CloseScore:        40,
		CutoffPercent:     5,
		WithinCutoffScore: 30,
		MinScore:          60,
		ExactTolerance:    0.01,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.WindowDays < 0 {
		return fmt.Errorf("window days cannot be negative: %d", mc.WindowDays)
	}

	for name, score := range map[string]int{
		"same day score":      mc.SameDayScore,
		"next day score":      mc.NextDayScore,
		"in window score":     mc.InWindowScore,
		"near exact score":    mc.NearExactScore,
		"close score":         mc.CloseScore,
		"within cutoff score": mc.WithinCutoffScore,
	} {
		if score < 0 {
			return fmt.Errorf("%s cannot be negative: %d", name, score)
		}
	}

	if mc.NearExactPercent <= 0 || mc.ClosePercent < mc.NearExactPercent || mc.CutoffPercent < mc.ClosePercent {
		return fmt.Errorf("amount bands must be positive and ascending: %.4f%% < %.4f%% < %.4f%%",
			mc.NearExactPercent, mc.ClosePercent, mc.CutoffPercent)
	}
	if mc.CutoffPercent > 100 {
		return fmt.Errorf("cutoff percent cannot exceed 100: %.2f", mc.CutoffPercent)
	}

	if best := mc.SameDayScore + mc.NearExactScore; best > 100 {
		return fmt.Errorf("best possible score %d exceeds 100", best)
	}
	if mc.MinScore < 0 || mc.MinScore > 100 {
		return fmt.Errorf("minimum score must be between 0 and 100: %d", mc.MinScore)
	}

	if mc.ExactTolerance < 0 {
		return fmt.Errorf("exact tolerance cannot be negative: %f", mc.ExactTolerance)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// DateScore scores the distance in calendar days between the two dates
func (mc *MatchingConfig) DateScore(days int) int {
	switch {
	case days == 0:
		return mc.SameDayScore
	case days == 1:
		return mc.NextDayScore
	case days <= mc.WindowDays:
		return mc.InWindowScore
	default:
		return 0
	}
}

// AmountScore scores a percentage difference. ok is false when the
// difference reaches the cutoff and the candidate must be discarded.
func (mc *MatchingConfig) AmountScore(percent decimal.Decimal) (score int, ok bool) {
	switch {
	case percent.LessThan(decimal.NewFromFloat(mc.NearExactPercent)):
		return mc.NearExactScore, true
	case percent.LessThan(decimal.NewFromFloat(mc.ClosePercent)):
		return mc.CloseScore, true
	case percent.LessThan(decimal.NewFromFloat(mc.CutoffPercent)):
		return mc.WithinCutoffScore, true
	default:
		return 0, false
	}
}

// IsExact reports whether an absolute amount difference is negligible
func (mc *MatchingConfig) IsExact(difference decimal.Decimal) bool {
	return difference.Abs().LessThan(decimal.NewFromFloat(mc.ExactTolerance))
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Window: ±%d days, Date: %d/%d/%d, Amount: <%.2f%%=%d <%.2f%%=%d <%.2f%%=%d, MinScore: %d}",
		mc.WindowDays, mc.SameDayScore, mc.NextDayScore, mc.InWindowScore,
		mc.NearExactPercent, mc.NearExactScore, mc.ClosePercent, mc.CloseScore,
		mc.CutoffPercent, mc.WithinCutoffScore, mc.MinScore)
}
