package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cashflow-reconciler/cmd/reconciler/config"
	"cashflow-reconciler/internal/reconciler"
	"cashflow-reconciler/internal/reporter"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	companyID              string
	outputFormat           string
	outputFile             string
	includeReconciliations bool
	showProgress           bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile bank statements with the cashflow ledger",
	Long: `Reconcile pairs the statement entries of the last days with ledger entries,
stores the reconciliations and raises alerts for orphan, pending and divergent
movements.

Without --company every company with ledger entries or uploaded statements is
reconciled in turn; a company that fails does not stop the others.

Examples:
  # One company, console summary
  reconciler reconcile --company acme

  # Every company, JSON report with the reconciliation records
  reconciler reconcile --output-format json --include-reconciliations

  # CSV report written to a file
  reconciler reconcile --output-format csv --output-file runs.csv`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&companyID, "company", "c", "", "company to reconcile (default: all companies)")
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().BoolVar(&includeReconciliations, "include-reconciliations", false, "list every reconciliation in the report")
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("progress", reconcileCmd.Flags().Lookup("progress"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	outputFormat = strings.ToLower(viper.GetString("output-format"))
	outputFile = viper.GetString("output-file")
	showProgress = viper.GetBool("progress")

	if !reporter.OutputFormat(outputFormat).IsValid() {
		return errors.ValidationError(errors.CodeOutOfRange, "output-format", outputFormat, nil).
			WithSuggestion("valid formats: console, json, csv")
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, err).
					WithSuggestion("create the output directory first")
			}
		}
	}
	return nil
}

// validateFileExists checks that path names a readable regular file
func validateFileExists(path, description string) error {
	if path == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}

	info, err := os.Stat(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	file.Close()
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.GetGlobalLogger()

	app, err := buildApplication(ctx, appConfig, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if showProgress {
		app.service.AddProgressCallback(func(p reconciler.RunProgress) {
			fmt.Fprintf(os.Stderr, "\r[%s] %d/%d %s (%.0f%%)   ",
				p.CompanyID, p.CompletedSteps, p.TotalSteps, p.CurrentStep, p.PercentComplete())
			if p.CurrentStep == reconciler.StepCompleted {
				fmt.Fprintln(os.Stderr)
			}
		})
	}

	runs, runErr := reconcileRuns(ctx, app.service, companyID)
	if runs == nil {
		return runErr
	}

	safe, err := reporter.NewSafeReportGenerator(config.CreateReportConfig(outputFormat, includeReconciliations), log)
	if err != nil {
		return err
	}

	if outputFile != "" {
		written, err := safe.WriteReportFile(runs, outputFile)
		if err != nil {
			return err
		}
		if written != outputFile {
			fmt.Fprintf(os.Stderr, "Warning: could not write to %s, report saved to %s\n", outputFile, written)
		}
	} else if err := safe.GenerateReportSafely(runs, cmd.OutOrStdout()); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		for _, r := range runs {
			fmt.Fprintf(os.Stderr, "%s: %d statements, %d reconciled, %d alerts\n",
				r.CompanyID, r.StatementsProcessed, r.Reconciled, r.AlertsCreated)
		}
	}

	if runErr != nil {
		return runErr
	}
	return failedRunsError(runs)
}

// failedRunsError makes the process exit non-zero when a company run failed
func failedRunsError(runs []*reconciler.RunResult) error {
	var failed []string
	for _, r := range runs {
		if !r.Success {
			failed = append(failed, r.CompanyID)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return errors.ReconciliationError(errors.CodeProcessingError, "reconcile",
		fmt.Errorf("%d of %d companies failed: %s", len(failed), len(runs), strings.Join(failed, ", "))).
		WithSuggestion("see the report for the error of each company")
}

// reconcileRuns runs one company or all of them. Runs are returned alongside
// an error when there is something to report.
func reconcileRuns(ctx context.Context, svc *reconciler.Service, company string) ([]*reconciler.RunResult, error) {
	if company == "" {
		return svc.ReconcileAll(ctx)
	}

	result, err := svc.Reconcile(ctx, company)
	if result == nil {
		return nil, err
	}
	return []*reconciler.RunResult{result}, err
}
