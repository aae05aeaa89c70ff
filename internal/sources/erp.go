package sources

import (
	"context"

	"cashflow-reconciler/internal/models"
	"cashflow-reconciler/internal/store"
)

// MirrorAccount is the synthetic bank account an ERP mirror reports under
type MirrorAccount struct {
	BankCode            string
	Branch              string
	Account             string
	DocumentPrefix      string
	FallbackDescription string
}

// LedgerMirrorSource presents ERP-synchronized ledger rows as bank movements
type LedgerMirrorSource struct {
	name    string
	account MirrorAccount
	ledger  store.LedgerReader
}

// NewF360Source mirrors ledger rows synchronized from F360
func NewF360Source(ledger store.LedgerReader) *LedgerMirrorSource {
	return &LedgerMirrorSource{
		name: NameF360,
		account: MirrorAccount{
			BankCode:            "999",
			Branch:              "0001",
			Account:             "F360",
			DocumentPrefix:      "F360-",
			FallbackDescription: "F360 - Movimento sincronizado",
		},
		ledger: ledger,
	}
}

// NewOmieSource mirrors ledger rows synchronized from OMIE
func NewOmieSource(ledger store.LedgerReader) *LedgerMirrorSource {
	return &LedgerMirrorSource{
		name: NameOmie,
		account: MirrorAccount{
			BankCode:            "888",
			Branch:              "0002",
			Account:             "OMIE",
			DocumentPrefix:      "OMIE-",
			FallbackDescription: "OMIE - Movimento sincronizado",
		},
		ledger: ledger,
	}
}

// Name implements Source
func (s *LedgerMirrorSource) Name() string {
	return s.name
}

// Fetch implements Source
func (s *LedgerMirrorSource) Fetch(ctx context.Context, q Query) ([]models.StatementEntry, error) {
	rows, err := s.ledger.LedgerEntries(ctx, q.CompanyID, q.From, q.To)
	if err != nil {
		return nil, err
	}

	accountCode := q.AccountCode
	if accountCode == "" {
		accountCode = s.account.BankCode
	}

	entries := make([]models.StatementEntry, 0, len(rows))
	for _, row := range rows {
		direction := models.DirectionDebit
		if row.Kind == models.LedgerKindIn {
			direction = models.DirectionCredit
		}
		description := row.Category
		if description == "" {
			description = s.account.FallbackDescription
		}

		entries = append(entries, models.StatementEntry{
			CompanyID:          q.CompanyID,
			AccountCode:        accountCode,
			Branch:             s.account.Branch,
			Account:            s.account.Account,
			MovementDate:       row.EntryDate,
			Direction:          direction,
			Amount:             row.Amount,
			Description:        description,
			ExternalDocumentID: s.account.DocumentPrefix + row.ID,
			Source:             s.name,
			MirroredLedgerID:   row.ID,
		})
	}
	return entries, nil
}

// UploadedSource returns uploaded statement rows that are not reconciled yet
type UploadedSource struct {
	statements store.StatementStore
}

// NewUploadedSource creates a source over persisted uploads
func NewUploadedSource(statements store.StatementStore) *UploadedSource {
	return &UploadedSource{statements: statements}
}

// Name implements Source
func (s *UploadedSource) Name() string {
	return NameUploaded
}

// Fetch implements Source. AccountCode, when set, filters the rows.
func (s *UploadedSource) Fetch(ctx context.Context, q Query) ([]models.StatementEntry, error) {
	rows, err := s.statements.UnreconciledStatements(ctx, q.CompanyID, q.From, q.To)
	if err != nil {
		return nil, err
	}
	if q.AccountCode == "" {
		return rows, nil
	}

	filtered := rows[:0]
	for _, row := range rows {
		if row.AccountCode == q.AccountCode {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}
