package parsers

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"cashflow-reconciler/internal/models"
)

// readCSV reads delimited exports. A semicolon anywhere in the file selects
// ';' as the delimiter, otherwise ','.
func (p *StatementParser) readCSV(text string, stats *ParseStats) []rawRecord {
	delimiter := ','
	if strings.Contains(text, ";") {
		delimiter = ';'
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	cols := p.config.Columns
	required := cols.required()

	var records []rawRecord
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if !stderrors.As(err, &csvErr) {
				break
			}
			stats.TotalLines++
			stats.AddError(&RowError{Line: csvErr.StartLine, Field: "row", Message: "malformed CSV row", Err: err})
			continue
		}

		stats.TotalLines++
		line, _ := reader.FieldPos(0)

		if first {
			first = false
			if p.config.isHeader(row) && !models.NormalizeDate(cell(row, cols.Date)).Valid {
				continue
			}
		}

		if len(row) < required {
			stats.RecordsParsed++
			stats.AddError(&RowError{
				Line:    line,
				Field:   "row",
				Value:   strings.Join(row, string(delimiter)),
				Message: fmt.Sprintf("expected at least %d columns, got %d", required, len(row)),
			})
			continue
		}

		records = append(records, rawRecord{
			Line:        line,
			Date:        cell(row, cols.Date),
			TypeHint:    cell(row, cols.Type),
			Amount:      cell(row, cols.Amount),
			Description: cell(row, cols.Description),
			Document:    cell(row, cols.Document),
			Balance:     cell(row, cols.Balance),
		})
	}

	return records
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
