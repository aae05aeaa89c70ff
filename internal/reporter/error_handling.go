package reporter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cashflow-reconciler/internal/reconciler"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with validation and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("use --output-format console, json or csv")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders into memory first so a failed format never
// leaves partial output; a failed JSON or CSV report falls back to console.
func (srg *SafeReportGenerator) GenerateReportSafely(runs []*reconciler.RunResult, writer io.Writer) error {
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil)
	}
	if runs == nil {
		return errors.ValidationError(errors.CodeMissingField, "runs", nil, nil).
			WithSuggestion("run a reconciliation before generating a report")
	}

	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"runs":   len(runs),
		"output": describeWriter(writer),
	}).Debug("Generating report")

	var buf bytes.Buffer
	err := srg.GenerateReport(runs, &buf)
	if err != nil {
		if srg.config.Format == FormatConsole {
			return srg.wrapGenerationError(err)
		}
		srg.logger.WithError(err).Warn("Report generation failed, falling back to console format")
		buf.Reset()
		if err := srg.consoleFallback(runs, &buf, err); err != nil {
			return err
		}
	}

	if _, err := buf.WriteTo(writer); err != nil {
		return errors.FileError(errors.CodeFilePermission, describeWriter(writer), err)
	}
	return nil
}

func (srg *SafeReportGenerator) consoleFallback(runs []*reconciler.RunResult, buf *bytes.Buffer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	fallback, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(buf, "NOTE: report generated in console format, %s output failed: %v\n\n", srg.config.Format, originalErr)
	if err := fallback.GenerateReport(runs, buf); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}
	return nil
}

// WriteReportFile writes the report to path. When path cannot be created the
// report goes to a backup file in the temp directory, whose path is returned.
func (srg *SafeReportGenerator) WriteReportFile(runs []*reconciler.RunResult, path string) (string, error) {
	file, err := os.Create(path)
	if err != nil {
		if !isFileError(err) {
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}

		backup := backupPath(path)
		srg.logger.WithError(err).WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   backup,
		}).Warn("Cannot create report file, writing backup")

		file, err = os.Create(backup)
		if err != nil {
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}
		path = backup
	}
	defer file.Close()

	if err := srg.GenerateReportSafely(runs, file); err != nil {
		return path, err
	}
	return path, nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeProcessingError,
		"report_generation",
		err,
	).WithSuggestion("check the output destination and report format settings")
}

func describeWriter(writer io.Writer) string {
	if f, ok := writer.(*os.File); ok && f.Name() != "" {
		return "file:" + f.Name()
	}
	return fmt.Sprintf("writer:%T", writer)
}

func isFileError(err error) bool {
	if os.IsPermission(err) || os.IsNotExist(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "read-only file system")
}

// backupPath maps report.csv to <tmp>/report_backup.csv
func backupPath(original string) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(os.TempDir(), name+"_backup"+ext)
}
