package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"cashflow-reconciler/internal/dedup"
	"cashflow-reconciler/internal/models"
	"cashflow-reconciler/pkg/errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Migrate
func Schema() string {
	return schema
}

// PostgresStore is a Store backed by PostgreSQL through lib/pq
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects and pings the database
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.StorageError(errors.CodeConnectionFailed, "", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeConnectionFailed, "", err)
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "schema", err)
	}
	return nil
}

// Close implements Store
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// LedgerEntries implements LedgerReader
func (p *PostgresStore) LedgerEntries(ctx context.Context, companyID string, from, to time.Time) ([]models.LedgerEntry, error) {
	query := `
		SELECT id, company_id, entry_date, kind, category, amount
		FROM cashflow_entries
		WHERE company_id = $1 AND entry_date BETWEEN $2 AND $3
		ORDER BY entry_date, id`
	rows, err := p.db.QueryContext(ctx, query, companyID, models.FormatDate(from), models.FormatDate(to))
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "cashflow_entries", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.EntryDate, &kind, &e.Category, &e.Amount); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "cashflow_entries", err)
		}
		e.Kind = models.LedgerKind(kind)
		e.EntryDate = models.CalendarDay(e.EntryDate)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "cashflow_entries", err)
	}
	return entries, nil
}

// Companies implements LedgerReader
func (p *PostgresStore) Companies(ctx context.Context) ([]string, error) {
	query := `
		SELECT company_id FROM cashflow_entries
		UNION
		SELECT company_id FROM bank_statements
		ORDER BY company_id`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "cashflow_entries", err)
	}
	defer rows.Close()

	var companies []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "cashflow_entries", err)
		}
		companies = append(companies, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "cashflow_entries", err)
	}
	return companies, nil
}

// InsertStatements implements StatementStore. The batch is one transaction.
func (p *PostgresStore) InsertStatements(ctx context.Context, entries []models.StatementEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "bank_statements", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bank_statements (id, company_id, account_code, branch, account, movement_date,
			direction, amount, description, external_document_id, running_balance, source, reconciled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "bank_statements", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		balance := decimal.NullDecimal{}
		if e.RunningBalance != nil {
			balance = decimal.NewNullDecimal(*e.RunningBalance)
		}
		_, err := stmt.ExecContext(ctx, e.ID, e.CompanyID, e.AccountCode, e.Branch, e.Account,
			models.FormatDate(e.MovementDate), string(e.Direction), e.Amount, e.Description,
			e.ExternalDocumentID, balance, e.Source, e.Reconciled)
		if err != nil {
			return errors.StorageError(errors.CodeWriteFailed, "bank_statements", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "bank_statements", err)
	}
	return nil
}

// ExistingStatementKeys implements StatementStore
func (p *PostgresStore) ExistingStatementKeys(ctx context.Context, companyID string, dates []time.Time) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	if len(dates) == 0 {
		return keys, nil
	}

	days := make([]string, len(dates))
	for i, d := range dates {
		days[i] = models.FormatDate(d)
	}

	query := `
		SELECT movement_date, amount, external_document_id
		FROM bank_statements
		WHERE company_id = $1 AND movement_date = ANY($2::date[])`
	rows, err := p.db.QueryContext(ctx, query, companyID, pq.Array(days))
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "bank_statements", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.StatementEntry
		if err := rows.Scan(&e.MovementDate, &e.Amount, &e.ExternalDocumentID); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "bank_statements", err)
		}
		e.MovementDate = models.CalendarDay(e.MovementDate)
		keys[dedup.PersistedKey(e)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "bank_statements", err)
	}
	return keys, nil
}

// UnreconciledStatements implements StatementStore
func (p *PostgresStore) UnreconciledStatements(ctx context.Context, companyID string, from, to time.Time) ([]models.StatementEntry, error) {
	query := `
		SELECT id, company_id, account_code, branch, account, movement_date, direction, amount,
			description, external_document_id, running_balance, source, reconciled
		FROM bank_statements
		WHERE company_id = $1 AND NOT reconciled AND movement_date BETWEEN $2 AND $3
		ORDER BY movement_date, created_at, id`
	rows, err := p.db.QueryContext(ctx, query, companyID, models.FormatDate(from), models.FormatDate(to))
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "bank_statements", err)
	}
	defer rows.Close()

	var entries []models.StatementEntry
	for rows.Next() {
		var e models.StatementEntry
		var direction string
		var balance decimal.NullDecimal
		err := rows.Scan(&e.ID, &e.CompanyID, &e.AccountCode, &e.Branch, &e.Account, &e.MovementDate,
			&direction, &e.Amount, &e.Description, &e.ExternalDocumentID, &balance, &e.Source, &e.Reconciled)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "bank_statements", err)
		}
		e.Direction = models.Direction(direction)
		e.MovementDate = models.CalendarDay(e.MovementDate)
		if balance.Valid {
			b := balance.Decimal
			e.RunningBalance = &b
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "bank_statements", err)
	}
	return entries, nil
}

// MarkReconciled implements StatementStore
func (p *PostgresStore) MarkReconciled(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `UPDATE bank_statements SET reconciled = TRUE WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "bank_statements", err)
	}
	return nil
}

// InsertReconciliations implements ReconciliationStore
func (p *PostgresStore) InsertReconciliations(ctx context.Context, records []models.Reconciliation) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "reconciliations", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reconciliations (id, company_id, kind, statement_entry_id, ledger_entry_id,
			reconciled_on, statement_amount, ledger_amount, amount_difference, outcome, confidence, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "reconciliations", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx, r.ID, r.CompanyID, r.Kind, r.StatementEntryID, r.LedgerEntryID,
			models.FormatDate(r.ReconciledOn), r.StatementAmount, r.LedgerAmount, r.AmountDifference,
			string(r.Outcome), r.Confidence, r.Score)
		if err != nil {
			return errors.StorageError(errors.CodeWriteFailed, "reconciliations", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "reconciliations", err)
	}
	return nil
}

// ReconciledRefs implements ReconciliationStore
func (p *PostgresStore) ReconciledRefs(ctx context.Context, companyID string) (*Consumed, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT statement_entry_id, ledger_entry_id FROM reconciliations WHERE company_id = $1`, companyID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "reconciliations", err)
	}
	defer rows.Close()

	consumed := NewConsumed()
	for rows.Next() {
		var statementRef, ledgerID string
		if err := rows.Scan(&statementRef, &ledgerID); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "reconciliations", err)
		}
		consumed.Add(statementRef, ledgerID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "reconciliations", err)
	}
	return consumed, nil
}

// InsertAlerts implements AlertStore
func (p *PostgresStore) InsertAlerts(ctx context.Context, alerts []models.FinancialAlert) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "financial_alerts", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO financial_alerts (id, company_id, alert_type, priority, title, message, details,
			status, notified, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "financial_alerts", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		details, err := json.Marshal(a.Details)
		if err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "encode alert details", err)
		}
		_, err = stmt.ExecContext(ctx, a.ID, a.CompanyID, string(a.AlertType), string(a.Priority), a.Title,
			a.Message, details, string(a.Status), a.Notified, a.CreatedAt, a.ResolvedAt)
		if err != nil {
			return errors.StorageError(errors.CodeWriteFailed, "financial_alerts", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeWriteFailed, "financial_alerts", err)
	}
	return nil
}

// ListAlerts implements AlertStore
func (p *PostgresStore) ListAlerts(ctx context.Context, companyID string) ([]models.FinancialAlert, error) {
	query := `
		SELECT id, company_id, alert_type, priority, title, message, details, status, notified,
			created_at, resolved_at
		FROM financial_alerts
		WHERE company_id = $1
		ORDER BY created_at, id`
	rows, err := p.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "financial_alerts", err)
	}
	defer rows.Close()

	var alerts []models.FinancialAlert
	for rows.Next() {
		var a models.FinancialAlert
		var alertType, priority, status string
		var details []byte
		var resolvedAt pq.NullTime
		err := rows.Scan(&a.ID, &a.CompanyID, &alertType, &priority, &a.Title, &a.Message, &details,
			&status, &a.Notified, &a.CreatedAt, &resolvedAt)
		if err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "financial_alerts", err)
		}
		a.AlertType = models.AlertType(alertType)
		a.Priority = models.Priority(priority)
		a.Status = models.AlertStatus(status)
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "financial_alerts", err)
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "financial_alerts", err)
	}
	return alerts, nil
}
