package cmd

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cashflow-reconciler/cmd/reconciler/config"
	"cashflow-reconciler/internal/reconciler"
	"cashflow-reconciler/internal/store"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"

	"github.com/spf13/cobra"
)

var fetchReq reconciler.FetchRequest

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Print the merged statements of a company as JSON",
	Long: `Fetch merges the statements of every enabled source for one company,
removes duplicates and prints the result as JSON.

Examples:
  reconciler fetch --company acme
  reconciler fetch --company acme --from 2025-01-01 --to 31/01/2025
  reconciler fetch --company acme --account 341 --days-back 7`,
	RunE: runFetch,
}

var (
	importCompany string
	importAccount string
	importFile    string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an OFX, CSV or plain-text statement file",
	Long: `Import parses a statement file, skips rows that were imported before and
stores the rest in batches.

Examples:
  reconciler import --company acme --account 341 --file extrato.ofx
  reconciler import -c acme -a 001 -F movimento.csv`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFileExists(importFile, "statement file")
	},
	RunE: runImport,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	Long:  `Migrate creates the statement, reconciliation and alert tables when they do not exist. It requires the postgres store.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(fetchCmd, importCmd, migrateCmd)

	fetchCmd.Flags().StringVarP(&fetchReq.CompanyID, "company", "c", "", "company id (required)")
	fetchCmd.Flags().StringVarP(&fetchReq.AccountCode, "account", "a", "", "bank account code")
	fetchCmd.Flags().StringVar(&fetchReq.DateFrom, "from", "", "first day (YYYY-MM-DD or DD/MM/YYYY)")
	fetchCmd.Flags().StringVar(&fetchReq.DateTo, "to", "", "last day (default: today)")
	fetchCmd.Flags().IntVar(&fetchReq.DaysBack, "days-back", 0, "days before --to when --from is not set (default from config)")
	fetchCmd.MarkFlagRequired("company")

	importCmd.Flags().StringVarP(&importCompany, "company", "c", "", "company id (required)")
	importCmd.Flags().StringVarP(&importAccount, "account", "a", "", "bank account code (required)")
	importCmd.Flags().StringVarP(&importFile, "file", "F", "", "statement file path (required)")
	importCmd.MarkFlagRequired("company")
	importCmd.MarkFlagRequired("account")
	importCmd.MarkFlagRequired("file")
}

func runFetch(cmd *cobra.Command, args []string) error {
	app, err := buildApplication(cmd.Context(), appConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.service.FetchStatements(cmd.Context(), fetchReq)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// readStatementFile loads an import file, telling a missing file apart from
// one that cannot be read
func readStatementFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		return content, nil
	case stderrors.Is(err, fs.ErrNotExist):
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	case stderrors.Is(err, fs.ErrPermission):
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	content, err := readStatementFile(importFile)
	if err != nil {
		return err
	}

	app, err := buildApplication(cmd.Context(), appConfig, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.service.ImportStatementFile(cmd.Context(), reconciler.ImportRequest{
		CompanyID:   importCompany,
		AccountCode: importAccount,
		FileName:    filepath.Base(importFile),
		Content:     content,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:       %s (%s)\n", filepath.Base(importFile), result.Format)
	fmt.Fprintf(out, "Imported:   %d\n", result.Imported)
	fmt.Fprintf(out, "Duplicates: %d\n", result.Duplicates)
	fmt.Fprintf(out, "Dropped:    %d\n", result.DroppedRows)
	fmt.Fprintf(out, "Errors:     %d\n", result.Errors)
	for _, d := range result.Details {
		fmt.Fprintf(out, "  - %s\n", d)
	}

	if !result.Success {
		return errors.StorageError(errors.CodeWriteFailed, "bank_statements", fmt.Errorf("%d rows failed", result.Errors))
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if appConfig.Store.Driver != config.StorePostgres {
		return errors.ConfigurationError(errors.CodeConfigConflict, "store.driver", appConfig.Store.Driver, nil).
			WithSuggestion("set RECONCILER_STORE_DRIVER=postgres and RECONCILER_STORE_DSN")
	}

	pg, err := store.OpenPostgres(cmd.Context(), appConfig.Store.DSN)
	if err != nil {
		return err
	}
	defer pg.Close()

	return logger.TimedOperation("migrate", logger.GetGlobalLogger(), func() error {
		return pg.Migrate(cmd.Context())
	})
}
