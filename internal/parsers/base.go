package parsers

import (
	"fmt"
	"strings"

	"cashflow-reconciler/internal/models"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"
)

// RowError describes a statement row that was dropped during parsing
type RowError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *RowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d (%s='%s'): %s: %v", e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("line %d (%s='%s'): %s", e.Line, e.Field, e.Value, e.Message)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Format        Format
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*RowError

	maxErrors int
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*RowError, 0),
	}
}

// AddError records a dropped row
func (ps *ParseStats) AddError(err *RowError) {
	ps.ErrorCount++
	if ps.maxErrors > 0 && len(ps.Errors) >= ps.maxErrors {
		return
	}
	ps.Errors = append(ps.Errors, err)
}

// HasErrors returns true if any row was dropped
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %s: %d lines, %d records (%d valid), %d errors",
		ps.Format, ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the row errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

// rawRecord is the format-neutral shape every per-format reader produces
// before normalization. Values are kept as written in the file.
type rawRecord struct {
	Line        int
	Date        string
	TypeHint    string
	Amount      string
	SignedSide  bool // direction comes from the amount sign instead of TypeHint
	Description string
	Document    string
	Balance     string
}

// normalize turns a raw record into a statement entry, or explains why the row is dropped
func (p *StatementParser) normalize(rec rawRecord) (models.StatementEntry, *RowError) {
	parsed := models.NormalizeDate(rec.Date)
	if !parsed.Valid {
		return models.StatementEntry{}, &RowError{Line: rec.Line, Field: "date", Value: rec.Date, Message: "unparseable date",
			Err: errors.ValidationError(errors.CodeInvalidDate, "date", rec.Date, nil)}
	}

	amount, err := models.ParseAmount(rec.Amount)
	if err != nil {
		return models.StatementEntry{}, &RowError{Line: rec.Line, Field: "amount", Value: rec.Amount, Message: "invalid amount",
			Err: errors.ValidationError(errors.CodeInvalidAmount, "amount", rec.Amount, err)}
	}

	var direction models.Direction
	if rec.SignedSide {
		direction = models.DirectionCredit
		if amount.IsNegative() {
			direction = models.DirectionDebit
		}
	} else {
		direction = models.DirectionDebit
		if p.config.isCredit(rec.TypeHint) {
			direction = models.DirectionCredit
		}
	}

	entry := models.StatementEntry{
		MovementDate:       parsed.Time,
		Direction:          direction,
		Amount:             amount.Abs(),
		Description:        strings.TrimSpace(rec.Description),
		ExternalDocumentID: strings.TrimSpace(rec.Document),
	}

	if strings.TrimSpace(rec.Balance) != "" {
		if balance, err := models.ParseAmount(rec.Balance); err == nil {
			entry.RunningBalance = &balance
		} else {
			p.logger.WithFields(logger.Fields{
				"line":    rec.Line,
				"balance": rec.Balance,
			}).Debug("Ignoring unparseable running balance")
		}
	}

	return entry, nil
}
