package parsers

import (
	"regexp"
	"strings"
)

// Data | Tipo | R$ Valor | Descrição, with pipes or tabs between fields.
// The date may be DD/MM/YYYY, YYYY-MM-DD, DD-MM-YYYY or DDMMYYYY.
var plainTextLineRe = regexp.MustCompile(
	`(?i)(\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}-\d{1,2}-\d{4}|\d{8})\s*[|\t]\s*(crédito|débito|credito|debito|c|d)\s*[|\t]\s*r?\$?\s*([\d.,]+)\s*[|\t]\s*(.+?)\s*(?:\||$)`,
)

func (p *StatementParser) readPlainText(text string, stats *ParseStats) []rawRecord {
	var records []rawRecord

	for i, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.TotalLines++

		m := plainTextLineRe.FindStringSubmatch(line)
		if m == nil {
			stats.RecordsParsed++
			stats.AddError(&RowError{
				Line:    i + 1,
				Field:   "line",
				Value:   strings.TrimSpace(line),
				Message: "line does not match date | type | amount | description",
			})
			continue
		}

		records = append(records, rawRecord{
			Line:        i + 1,
			Date:        m[1],
			TypeHint:    m[2],
			Amount:      m[3],
			Description: m[4],
		})
	}

	return records
}
