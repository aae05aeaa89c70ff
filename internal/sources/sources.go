// Package sources gathers statement entries from every configured upstream and
// merges them into one deduplicated, date-ordered list.
package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cashflow-reconciler/internal/models"
	"cashflow-reconciler/internal/store"
	"cashflow-reconciler/pkg/errors"
)

// Source names accepted in configuration
const (
	NameF360     = "f360"
	NameOmie     = "omie"
	NameUploaded = "uploaded"
)

// Query selects the statements of one company over an inclusive date window
type Query struct {
	CompanyID   string
	AccountCode string
	From        time.Time
	To          time.Time
}

// Validate checks the query is usable
func (q Query) Validate() error {
	if strings.TrimSpace(q.CompanyID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "company_id", q.CompanyID, nil)
	}
	if q.From.IsZero() || q.To.IsZero() {
		return errors.ValidationError(errors.CodeMissingField, "period", nil, nil)
	}
	if q.To.Before(q.From) {
		return errors.ValidationError(errors.CodeOutOfRange, "date_to",
			fmt.Sprintf("%s < %s", models.FormatDate(q.To), models.FormatDate(q.From)), nil)
	}
	return nil
}

// Source is one upstream integration
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]models.StatementEntry, error)
}

// Build returns the sources named in configuration, in the given order
func Build(names []string, ledger store.LedgerReader, statements store.StatementStore) ([]Source, error) {
	if len(names) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "sources.enabled", names, nil)
	}

	seen := make(map[string]struct{}, len(names))
	built := make([]Source, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		switch name {
		case NameF360:
			built = append(built, NewF360Source(ledger))
		case NameOmie:
			built = append(built, NewOmieSource(ledger))
		case NameUploaded:
			built = append(built, NewUploadedSource(statements))
		default:
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "sources.enabled", raw,
				fmt.Errorf("unknown source %q", raw))
		}
	}
	return built, nil
}
