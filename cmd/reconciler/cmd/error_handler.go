package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"syscall"

	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler prints command errors and picks the process exit code
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a handler that writes to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     os.Stderr,
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the exit code for it
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			if err.Context[key] == nil {
				continue
			}
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := categoryHelp(err.Category); help != "" {
		fmt.Fprintf(h.out, "\n%s\n", help)
	}

	if err.Cause != nil && (h.verbose || err.Category == errors.CategoryStorage || err.Category == errors.CategoryNetwork) {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: file not found\n")
		fmt.Fprintf(h.out, "Suggestion: check that the file path is correct\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: check file permissions\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: insufficient disk space\n")
		return 2
	}

	// cobra flag and argument errors end up here
	fmt.Fprintf(h.out, "Error: %v\n", err)
	if strings.Contains(err.Error(), "flag") {
		fmt.Fprintf(h.out, "Run 'reconciler --help' for usage.\n")
	}
	return 1
}

func categoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the statement file exists and is readable
• Supported formats are OFX (1.x SGML or 2.x XML), CSV and plain text`

	case errors.CategoryParse:
		return `Parse error help:
• CSV columns are expected as date;type;amount;description;document;balance
• Dates may be YYYY-MM-DD, DD/MM/YYYY, DD-MM-YYYY or DDMMYYYY
• Amounts may use Brazilian (1.234,56) or international (1,234.56) separators`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that the company and account flags are set
• Check date flags and ranges`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Settings come from --config, the .env file and RECONCILER_* variables
• Example: RECONCILER_STORE_DRIVER=postgres RECONCILER_STORE_DSN=postgres://...`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Another run may hold the company lock; retry when it finishes`

	case errors.CategoryStorage, errors.CategoryNetwork:
		return `Connectivity help:
• Check that PostgreSQL and Redis are reachable with the configured addresses
• Rows written before the failure are kept; re-running is safe`

	default:
		return ""
	}
}

func isFileNotFoundError(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, fs.ErrPermission) || strings.Contains(err.Error(), "permission denied")
}

func isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no space left")
}
