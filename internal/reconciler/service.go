// Package reconciler exposes the three operations of the service: fetching the
// merged statements of a company, importing an uploaded statement file, and
// running a reconciliation for one or every company.
//
// A reconciliation run is a single linear pipeline:
//
//	lock company -> fetch + dedup statements -> load ledger window ->
//	match -> build reconciliations and alerts -> persist in batches
//
// Persistence is batched and not transactional across batches; rows already
// written survive a failed or cancelled run, and a re-run skips statements and
// ledger entries that earlier runs paired.
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cashflow-reconciler/internal/alerts"
	"cashflow-reconciler/internal/dedup"
	"cashflow-reconciler/internal/locking"
	"cashflow-reconciler/internal/matcher"
	"cashflow-reconciler/internal/models"
	"cashflow-reconciler/internal/parsers"
	"cashflow-reconciler/internal/sources"
	"cashflow-reconciler/internal/store"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Dependencies wires a Service. Store and Sources are required.
type Dependencies struct {
	Store    store.Store
	Sources  []sources.Source
	Locker   locking.Locker
	Parser   *parsers.StatementParser
	Matching *matcher.MatchingConfig
	Alerts   *alerts.Generator
	Logger   logger.Logger
	Now      func() time.Time
}

// Service runs fetch, import and reconciliation against a store
type Service struct {
	store      store.Store
	aggregator *sources.Aggregator
	parser     *parsers.StatementParser
	locker     locking.Locker
	matching   *matcher.MatchingConfig
	alerts     *alerts.Generator
	config     *Config
	logger     logger.Logger
	progress   progressTracker
	now        func() time.Time
}

// NewService creates a new reconciliation service
func NewService(deps Dependencies, config *Config) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "store", nil, nil)
	}
	if len(deps.Sources) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "sources.enabled", nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconcile", config, err)
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	if deps.Parser == nil {
		parser, err := parsers.NewStatementParser(parsers.DefaultParserConfig())
		if err != nil {
			return nil, err
		}
		deps.Parser = parser
	}
	if deps.Locker == nil {
		deps.Locker = locking.NewLocalLocker()
	}
	if deps.Matching == nil {
		deps.Matching = matcher.DefaultMatchingConfig()
	}
	if err := deps.Matching.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", deps.Matching.String(), err)
	}
	if deps.Alerts == nil {
		deps.Alerts = alerts.NewGenerator()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Service{
		store:      deps.Store,
		aggregator: sources.NewAggregator(log, deps.Sources...),
		parser:     deps.Parser,
		locker:     deps.Locker,
		matching:   deps.Matching.Clone(),
		alerts:     deps.Alerts,
		config:     config,
		logger:     log.WithComponent("reconciler"),
		now:        deps.Now,
	}, nil
}

// AddProgressCallback registers a callback for reconciliation run steps
func (s *Service) AddProgressCallback(cb ProgressCallback) {
	s.progress.add(cb)
}

// MatchingConfig returns a copy of the scoring configuration in use
func (s *Service) MatchingConfig() *matcher.MatchingConfig {
	return s.matching.Clone()
}

// Sources returns the names of the configured statement sources
func (s *Service) Sources() []string {
	return s.aggregator.Sources()
}

func requireCompany(companyID string) error {
	if strings.TrimSpace(companyID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "company_id", companyID, nil)
	}
	return nil
}

// errorText is the message of err including its cause
func errorText(err error) string {
	if rerr, ok := errors.AsReconcilerError(err); ok && rerr.Cause != nil {
		return rerr.Message + ": " + rerr.Cause.Error()
	}
	return err.Error()
}

// FetchStatements returns the merged, deduplicated statements of a company
func (s *Service) FetchStatements(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if err := requireCompany(req.CompanyID); err != nil {
		return nil, err
	}

	period, err := s.resolvePeriod(req)
	if err != nil {
		return nil, err
	}

	aggregated, err := s.aggregator.Aggregate(ctx, sources.Query{
		CompanyID:   req.CompanyID,
		AccountCode: req.AccountCode,
		From:        period.From,
		To:          period.To,
	})
	if err != nil {
		return nil, err
	}

	result := &FetchResult{
		Success:    true,
		Total:      len(aggregated.Statements),
		Statements: aggregated.Statements,
		Period:     period,
	}
	if result.Statements == nil {
		result.Statements = []models.StatementEntry{}
	}
	for _, f := range aggregated.Failures {
		result.FailedSources = append(result.FailedSources, f.Source)
	}
	return result, nil
}

// resolvePeriod applies explicit dates first, then days back from the end date
func (s *Service) resolvePeriod(req FetchRequest) (Period, error) {
	to := models.CalendarDay(s.now())
	if req.DateTo != "" {
		parsed := models.NormalizeDate(req.DateTo)
		if !parsed.Valid {
			return Period{}, errors.ValidationError(errors.CodeInvalidDate, "date_to", req.DateTo, nil)
		}
		to = parsed.Time
	}

	daysBack := req.DaysBack
	if daysBack <= 0 {
		daysBack = s.config.DefaultDaysBack
	}
	from := to.AddDate(0, 0, -daysBack)
	if req.DateFrom != "" {
		parsed := models.NormalizeDate(req.DateFrom)
		if !parsed.Valid {
			return Period{}, errors.ValidationError(errors.CodeInvalidDate, "date_from", req.DateFrom, nil)
		}
		from = parsed.Time
	}

	if to.Before(from) {
		return Period{}, errors.ValidationError(errors.CodeOutOfRange, "date_from",
			fmt.Sprintf("%s after %s", models.FormatDate(from), models.FormatDate(to)), nil)
	}
	return Period{From: from, To: to}, nil
}

// ImportStatementFile parses an uploaded file and stores rows not stored before.
// Rows are written in batches; a failed batch is reported and the rest continue.
func (s *Service) ImportStatementFile(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if err := requireCompany(req.CompanyID); err != nil {
		return nil, err
	}

	op := logger.NewOperationLogger("import_statement_file", s.logger).WithFields(logger.Fields{
		"company_id":   req.CompanyID,
		"account_code": req.AccountCode,
		"file":         req.FileName,
	})

	op.Step("parse")
	entries, stats, err := s.parser.Parse(ctx, req.FileName, req.Content, req.CompanyID, req.AccountCode)
	if err != nil {
		op.Error(err, "Import failed while parsing")
		return nil, err
	}

	op.Step("check_duplicates")
	existing, err := s.store.ExistingStatementKeys(ctx, req.CompanyID, distinctDates(entries))
	if err != nil {
		op.Error(err, "Import failed while checking duplicates")
		return nil, err
	}
	fresh, duplicates := dedup.FilterPersisted(entries, existing)
	if stats.HasErrors() {
		s.logger.WithFields(logger.Fields{
			"company_id": req.CompanyID,
			"file":       req.FileName,
			"dropped":    stats.ErrorCount,
			"samples":    stats.GetSampleErrors(3),
		}).Warn("Dropped unreadable statement rows")
	}

	result := &ImportResult{
		Duplicates:  duplicates,
		DroppedRows: stats.ErrorCount,
		Format:      string(stats.Format),
	}

	op.Step("persist")
	batches := chunk(len(fresh), s.config.BatchSize)
	for n, r := range batches {
		batch := fresh[r[0]:r[1]]
		if err := s.store.InsertStatements(ctx, batch); err != nil {
			result.Errors += len(batch)
			result.Details = append(result.Details, fmt.Sprintf("Batch %d: %s", n+1, errorText(err)))
			s.logger.WithError(err).WithFields(logger.Fields{
				"company_id": req.CompanyID,
				"batch":      n + 1,
				"rows":       len(batch),
			}).Warn("Statement batch failed")
			continue
		}
		result.Imported += len(batch)
		op.Progress("Statement batch written", int64(r[1]), int64(len(fresh)))
	}
	result.Success = result.Errors == 0 || result.Imported > 0

	op.WithFields(logger.Fields{
		"imported":   result.Imported,
		"duplicates": result.Duplicates,
		"errors":     result.Errors,
	}).Success("Statement file imported")

	return result, nil
}

func distinctDates(entries []models.StatementEntry) []time.Time {
	seen := make(map[string]struct{})
	var dates []time.Time
	for _, e := range entries {
		key := models.FormatDate(e.MovementDate)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dates = append(dates, e.MovementDate)
	}
	return dates
}

// Reconcile runs one reconciliation for a company while holding its lock.
// On persistence failures the partial result is returned alongside the error.
func (s *Service) Reconcile(ctx context.Context, companyID string) (*RunResult, error) {
	if err := requireCompany(companyID); err != nil {
		return nil, err
	}

	started := time.Now()
	op := logger.NewOperationLogger("reconcile", s.logger).WithField("company_id", companyID)
	tracker := newRunTracker(companyID, &s.progress)

	tracker.step(StepLock)
	ctx, release, err := s.locker.Acquire(ctx, companyID)
	if err != nil {
		op.Error(err, "Company is locked")
		return nil, err
	}
	defer release()

	tracker.step(StepFetch)
	fetched, err := s.FetchStatements(ctx, FetchRequest{CompanyID: companyID, DaysBack: s.config.ReconcileDaysBack})
	if err != nil {
		op.Error(err, "Fetching statements failed")
		return nil, err
	}

	consumed, err := s.store.ReconciledRefs(ctx, companyID)
	if err != nil {
		op.Error(err, "Loading prior reconciliations failed")
		return nil, err
	}
	pending := make([]models.StatementEntry, 0, len(fetched.Statements))
	for _, st := range fetched.Statements {
		if !consumed.HasStatement(st.Reference()) {
			pending = append(pending, st)
		}
	}
	tracker.progress.Statements = len(pending)

	tracker.step(StepLoad)
	window := s.matching.WindowDays
	ledger, err := s.store.LedgerEntries(ctx, companyID,
		fetched.Period.From.AddDate(0, 0, -window), fetched.Period.To.AddDate(0, 0, window))
	if err != nil {
		op.Error(err, "Loading ledger failed")
		return nil, err
	}

	engine := matcher.NewMatchingEngine(s.matching.Clone())
	engine.LoadLedger(ledger)
	engine.MarkConsumed(consumed.LedgerIDList()...)
	op.WithField("ledger_entries", engine.GetStats().TotalEntries)

	tracker.step(StepMatch)
	uploaded, mirrored := splitMirrored(pending)
	first := engine.MatchAll(uploaded)
	open, shadowed := openMirrors(engine, mirrored)
	matched := matcher.MergeResults(first, engine.MatchAll(open))
	tracker.progress.Statements = matched.Summary.TotalStatements
	tracker.progress.Matched = matched.Summary.Matched
	if shadowed > 0 {
		op.WithField("mirrors_skipped", shadowed)
	}

	// nothing is written once the lock is gone; another run may own the company
	if cause := context.Cause(ctx); cause != nil {
		op.Error(cause, "Reconciliation aborted before persisting")
		return nil, errors.WrapIfNeeded(cause, errors.CategoryReconciliation, errors.CodeProcessingError, "reconciliation aborted")
	}

	records := s.buildReconciliations(companyID, matched.Results)
	generated := s.alerts.Generate(matched.Results)
	generated, skipped, err := s.dropRepeatedAlerts(ctx, companyID, generated)
	if err != nil {
		op.Error(err, "Loading existing alerts failed")
		return nil, err
	}

	result := &RunResult{
		CompanyID:           companyID,
		StatementsProcessed: matched.Summary.TotalStatements,
		Period:              fetched.Period,
		FailedSources:       fetched.FailedSources,
		Summary:             matched.Summary,
		SkippedAlerts:       skipped,
	}

	tracker.step(StepPersist)
	persistErr := s.persist(ctx, result, records, generated)
	result.Duration = time.Since(started)
	tracker.step(StepCompleted)

	op.WithFields(logger.Fields{
		"statements": result.StatementsProcessed,
		"reconciled": result.Reconciled,
		"alerts":     result.AlertsCreated,
		"exact":      matched.Summary.ExactMatches,
		"divergent":  matched.Summary.DivergentMatches,
	})
	if skipped > 0 {
		op.Warning("Skipped alerts that are already pending")
	}
	if persistErr != nil {
		result.Error = errorText(persistErr)
		op.Error(persistErr, "Reconciliation finished with persistence errors")
		return result, persistErr
	}

	result.Success = true
	op.Success("Reconciliation completed")
	return result, nil
}

// splitMirrored separates bank rows from rows an ERP source mirrored out of the
// ledger. Bank rows are matched first so a mirror never claims the ledger entry
// a real statement line belongs to.
func splitMirrored(entries []models.StatementEntry) (bank, mirrored []models.StatementEntry) {
	for _, e := range entries {
		if e.MirroredLedgerID != "" {
			mirrored = append(mirrored, e)
		} else {
			bank = append(bank, e)
		}
	}
	return bank, mirrored
}

// openMirrors drops mirror rows whose ledger entry is already paired, in this
// run or an earlier one. Such a row has nothing left to reconcile and must not
// raise an orphan alert.
func openMirrors(engine *matcher.MatchingEngine, mirrored []models.StatementEntry) ([]models.StatementEntry, int) {
	open := make([]models.StatementEntry, 0, len(mirrored))
	for _, e := range mirrored {
		if !engine.IsConsumed(e.MirroredLedgerID) {
			open = append(open, e)
		}
	}
	return open, len(mirrored) - len(open)
}

func (s *Service) buildReconciliations(companyID string, results []*matcher.MatchResult) []models.Reconciliation {
	reconciledOn := models.CalendarDay(s.now())

	var records []models.Reconciliation
	for _, r := range results {
		if !r.Matched() {
			continue
		}
		records = append(records, models.Reconciliation{
			ID:               uuid.NewString(),
			CompanyID:        companyID,
			Kind:             models.ReconciliationKindBank,
			StatementEntryID: r.Statement.Reference(),
			LedgerEntryID:    r.Best.Ledger.ID,
			ReconciledOn:     reconciledOn,
			StatementAmount:  r.Statement.Amount,
			LedgerAmount:     r.Best.Ledger.Amount,
			AmountDifference: r.Best.AmountDifference,
			Outcome:          r.Outcome,
			Confidence:       r.Confidence(),
			Score:            r.Best.Score.Total(),
		})
	}
	return records
}

// dropRepeatedAlerts removes alerts whose statement already has a pending alert of the same type
func (s *Service) dropRepeatedAlerts(ctx context.Context, companyID string, generated []models.FinancialAlert) ([]models.FinancialAlert, int, error) {
	if !s.config.SkipDuplicateAlerts || len(generated) == 0 {
		return generated, 0, nil
	}

	existing, err := s.store.ListAlerts(ctx, companyID)
	if err != nil {
		return nil, 0, err
	}
	open := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		if a.Status == models.AlertStatusPending {
			open[alertKey(a)] = struct{}{}
		}
	}

	kept := generated[:0]
	skipped := 0
	for _, a := range generated {
		if _, dup := open[alertKey(a)]; dup {
			skipped++
			continue
		}
		kept = append(kept, a)
	}
	return kept, skipped, nil
}

func alertKey(a models.FinancialAlert) string {
	return fmt.Sprintf("%s|%v", a.AlertType, a.Details["statement_entry_id"])
}

// persist writes reconciliations, then flags uploaded rows, then alerts.
// Each batch is independent; failures are combined into one error.
func (s *Service) persist(ctx context.Context, result *RunResult, records []models.Reconciliation, generated []models.FinancialAlert) error {
	var failures error

	for n, r := range chunk(len(records), s.config.BatchSize) {
		batch := records[r[0]:r[1]]
		if err := s.store.InsertReconciliations(ctx, batch); err != nil {
			failures = multierr.Append(failures, fmt.Errorf("reconciliations batch %d: %s", n+1, errorText(err)))
			continue
		}
		result.Reconciled += len(batch)
		result.Reconciliations = append(result.Reconciliations, batch...)

		ids := make([]string, len(batch))
		for i, rec := range batch {
			ids[i] = rec.StatementEntryID
		}
		if err := s.store.MarkReconciled(ctx, ids); err != nil {
			failures = multierr.Append(failures, fmt.Errorf("statement flags batch %d: %s", n+1, errorText(err)))
		}
	}

	for n, r := range chunk(len(generated), s.config.BatchSize) {
		batch := generated[r[0]:r[1]]
		if err := s.store.InsertAlerts(ctx, batch); err != nil {
			failures = multierr.Append(failures, fmt.Errorf("alerts batch %d: %s", n+1, errorText(err)))
			continue
		}
		result.AlertsCreated += len(batch)
		result.Alerts = append(result.Alerts, batch...)
	}

	if failures == nil {
		return nil
	}
	return errors.StorageError(errors.CodeWriteFailed, "reconciliations", failures).
		WithContext("failed_batches", len(multierr.Errors(failures)))
}

// ReconcileAll reconciles every known company in turn. A failing company is
// reported in its own result and does not stop the others.
func (s *Service) ReconcileAll(ctx context.Context) ([]*RunResult, error) {
	companies, err := s.store.Companies(ctx)
	if err != nil {
		return nil, err
	}

	op := logger.NewOperationLogger("reconcile_all", s.logger).WithField("companies", len(companies))
	results := make([]*RunResult, 0, len(companies))
	var failures []*errors.ReconcilerError

	for i, companyID := range companies {
		if err := ctx.Err(); err != nil {
			op.Error(err, "Run cancelled")
			return results, errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, "reconciliation cancelled")
		}

		result, err := s.Reconcile(ctx, companyID)
		if err != nil {
			failures = append(failures, errors.WrapIfNeeded(err, errors.CategoryReconciliation, errors.CodeProcessingError, "company reconciliation failed"))
			if result == nil {
				result = &RunResult{CompanyID: companyID}
			}
			result.Success = false
			result.Error = errorText(err)
			s.logger.WithError(err).WithCompany(companyID).Warn("Company reconciliation failed")
		}
		results = append(results, result)
		op.Progress("Company reconciled", int64(i+1), int64(len(companies)))
	}

	if len(failures) > 0 {
		summary := errors.NewErrorSummary(failures)
		op.WithFields(logger.Fields{"failed": summary.Total, "by_category": summary.ByCategory}).Warning(summary.Error())
	}
	op.WithField("failed", len(failures)).Success("All companies processed")
	return results, nil
}
