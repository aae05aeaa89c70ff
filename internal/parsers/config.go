package parsers

import (
	"fmt"
	"strings"
)

// ColumnLayout maps statement fields to zero-based CSV column positions.
// Optional columns use -1 when absent.
type ColumnLayout struct {
	Date        int `json:"date" mapstructure:"date"`
	Type        int `json:"type" mapstructure:"type"`
	Amount      int `json:"amount" mapstructure:"amount"`
	Description int `json:"description" mapstructure:"description"`
	Document    int `json:"document" mapstructure:"document"`
	Balance     int `json:"balance" mapstructure:"balance"`
}

// required returns the number of columns a row needs to carry every mandatory field
func (cl ColumnLayout) required() int {
	n := 0
	for _, idx := range []int{cl.Date, cl.Type, cl.Amount} {
		if idx+1 > n {
			n = idx + 1
		}
	}
	return n
}

// ParserConfig controls how statement files are interpreted
type ParserConfig struct {
	// Columns of CSV exports
	Columns ColumnLayout `json:"columns" mapstructure:"columns"`

	// HeaderTokens mark the first CSV row as a header when any of them
	// appears in it (case-insensitive)
	HeaderTokens []string `json:"header_tokens" mapstructure:"header_tokens"`

	// CreditTokens are substrings of a type hint that mean credit.
	// CreditCodes must match the whole hint.
	CreditTokens []string `json:"credit_tokens" mapstructure:"credit_tokens"`
	CreditCodes  []string `json:"credit_codes" mapstructure:"credit_codes"`

	// MaxRowErrors caps how many dropped rows are kept in ParseStats.Errors
	MaxRowErrors int `json:"max_row_errors" mapstructure:"max_row_errors"`
}

// DefaultParserConfig returns the layout used by Brazilian bank exports:
// data, tipo, valor, descricao, documento, saldo
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		Columns: ColumnLayout{
			Date:        0,
			Type:        1,
			Amount:      2,
			Description: 3,
			Document:    4,
			Balance:     5,
		},
		HeaderTokens: []string{"data", "date", "dt"},
		CreditTokens: []string{"cred", "créd"},
		CreditCodes:  []string{"c", "cr"},
		MaxRowErrors: 1000,
	}
}

// Validate checks if the parser configuration is valid
func (pc *ParserConfig) Validate() error {
	cols := pc.Columns
	if cols.Date < 0 || cols.Type < 0 || cols.Amount < 0 {
		return fmt.Errorf("date, type and amount columns are required")
	}

	seen := make(map[int]string)
	for name, idx := range map[string]int{
		"date":        cols.Date,
		"type":        cols.Type,
		"amount":      cols.Amount,
		"description": cols.Description,
		"document":    cols.Document,
		"balance":     cols.Balance,
	} {
		if idx < 0 {
			continue
		}
		if other, dup := seen[idx]; dup {
			return fmt.Errorf("columns %s and %s share index %d", name, other, idx)
		}
		seen[idx] = name
	}

	if len(pc.HeaderTokens) == 0 {
		return fmt.Errorf("at least one header token is required")
	}
	if len(pc.CreditTokens) == 0 && len(pc.CreditCodes) == 0 {
		return fmt.Errorf("at least one credit token or code is required")
	}
	if pc.MaxRowErrors < 0 {
		return fmt.Errorf("max row errors cannot be negative")
	}

	return nil
}

// isHeader reports whether a CSV row looks like a header
func (pc *ParserConfig) isHeader(row []string) bool {
	for _, cell := range row {
		cell = strings.ToLower(strings.TrimSpace(cell))
		for _, token := range pc.HeaderTokens {
			if strings.Contains(cell, token) {
				return true
			}
		}
	}
	return false
}

// isCredit interprets a free-text type hint; anything not recognized as credit is a debit
func (pc *ParserConfig) isCredit(hint string) bool {
	hint = strings.ToLower(strings.TrimSpace(hint))
	for _, code := range pc.CreditCodes {
		if hint == code {
			return true
		}
	}
	for _, token := range pc.CreditTokens {
		if strings.Contains(hint, token) {
			return true
		}
	}
	return false
}
