// Package parsers turns uploaded bank statement files into statement entries.
//
// Three formats are understood, detected from the content itself:
//   - OFX: XML (2.x) documents and SGML (1.x) exports with unclosed tags
//   - CSV: semicolon or comma separated exports (data, tipo, valor, descricao, documento, saldo)
//   - Plain text: "DD/MM/YYYY | crédito | R$ 1500.00 | descrição" lines, pipe or tab separated
//
// Files may be UTF-8 (with or without BOM) or Windows-1252/Latin-1, which is
// what most Brazilian bank exports use. Rows that cannot be read are dropped
// and reported in ParseStats; a file without a single valid row is an error
// that wraps ErrNoValidRecords.
//
// Example usage:
//
//	parser, err := NewStatementParser(DefaultParserConfig())
//	entries, stats, err := parser.Parse(ctx, "extrato.ofx", data, companyID, accountCode)
package parsers

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"cashflow-reconciler/internal/models"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"
)

// Format is a statement file format
type Format string

const (
	FormatOFX       Format = "ofx"
	FormatCSV       Format = "csv"
	FormatPlainText Format = "text"
)

// SourceUpload tags entries that came from an uploaded file
const SourceUpload = "upload"

// ErrNoValidRecords is returned (wrapped) when a file yields no usable row
var ErrNoValidRecords = stderrors.New("no valid records found")

// ErrUndecodable is returned (wrapped) when the bytes are not text
var ErrUndecodable = stderrors.New("content is not valid text")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StatementParser parses statement files of any supported format
type StatementParser struct {
	config *ParserConfig
	logger logger.Logger
}

// NewStatementParser creates a parser with the given configuration
func NewStatementParser(config *ParserConfig) (*StatementParser, error) {
	if config == nil {
		config = DefaultParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"parser",
			config,
			err,
		)
	}

	return &StatementParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("statement_parser"),
	}, nil
}

// Parse decodes raw file bytes and returns the statement entries they describe.
// Every entry is stamped with companyID and accountCode.
func (p *StatementParser) Parse(ctx context.Context, name string, raw []byte, companyID, accountCode string) ([]models.StatementEntry, *ParseStats, error) {
	stats := NewParseStats()
	stats.maxErrors = p.config.MaxRowErrors

	if len(bytes.TrimSpace(bytes.TrimPrefix(raw, utf8BOM))) == 0 {
		return nil, stats, errors.FileError(errors.CodeEmptyFile, name, nil)
	}

	text, err := DecodeText(raw)
	if err != nil {
		return nil, stats, errors.ParseError(errors.CodeEncodingError, name, "", err)
	}

	format := DetectFormat(text)
	stats.Format = format

	log := p.logger.WithFields(logger.Fields{
		"file":   name,
		"format": format,
	})
	log.Debug("Detected statement format")

	var records []rawRecord
	switch format {
	case FormatOFX:
		records = p.readOFX(text, stats)
	case FormatCSV:
		records = p.readCSV(text, stats)
	default:
		records = p.readPlainText(text, stats)
	}

	entries := make([]models.StatementEntry, 0, len(records))
	for i, rec := range records {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, "parsing cancelled")
			}
		}

		stats.RecordsParsed++
		entry, rowErr := p.normalize(rec)
		if rowErr != nil {
			stats.AddError(rowErr)
			log.WithField("line", rowErr.Line).Debugf("Dropping row: %s", rowErr.Message)
			continue
		}

		entry.CompanyID = companyID
		entry.AccountCode = accountCode
		entry.Source = SourceUpload
		entries = append(entries, entry)
	}
	stats.RecordsValid = len(entries)

	if len(entries) == 0 {
		return nil, stats, errors.ParseError(errors.CodeNoValidRecords, name, "", ErrNoValidRecords).
			WithContext("format", string(format)).
			WithContext("dropped_rows", stats.ErrorCount)
	}

	log.WithFields(logger.Fields{
		"valid":   stats.RecordsValid,
		"dropped": stats.ErrorCount,
	}).Info("Parsed statement file")

	return entries, stats, nil
}

// DecodeText converts file bytes to a string. A UTF-8 BOM is stripped, valid
// UTF-8 is used as is and anything else is read as Windows-1252. Content with
// NUL bytes (UTF-16, binaries) is rejected.
func DecodeText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if bytes.IndexByte(raw, 0) >= 0 {
		return "", fmt.Errorf("%w: NUL byte found", ErrUndecodable)
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return string(decoded), nil
}

// DetectFormat chooses a reader: OFX markers anywhere win, then a delimiter
// on the first non-empty line means CSV, otherwise plain text.
func DetectFormat(text string) Format {
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "<?XML") || strings.Contains(upper, "<OFX>") {
		return FormatOFX
	}

	if strings.ContainsAny(firstNonEmptyLine(text), ";,") {
		return FormatCSV
	}

	return FormatPlainText
}

func firstNonEmptyLine(text string) string {
	for _, line := range splitLines(text) {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
