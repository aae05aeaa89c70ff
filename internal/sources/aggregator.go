package sources

import (
	"context"
	"sort"

	"cashflow-reconciler/internal/dedup"
	"cashflow-reconciler/internal/models"
	"cashflow-reconciler/pkg/errors"
	"cashflow-reconciler/pkg/logger"

	"github.com/sourcegraph/conc/pool"
)

// SourceFailure records one upstream that contributed nothing
type SourceFailure struct {
	Source string
	Err    error
}

// Result of one aggregation
type Result struct {
	Statements []models.StatementEntry
	PerSource  map[string]int
	Duplicates int
	Failures   []SourceFailure
}

// Aggregator fans a query out to every source and merges what comes back.
// A failing source is logged and skipped; aggregation itself never fails on it.
type Aggregator struct {
	sources []Source
	logger  logger.Logger
}

// NewAggregator creates an aggregator over sources, queried concurrently
func NewAggregator(log logger.Logger, sources ...Source) *Aggregator {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Aggregator{
		sources: sources,
		logger:  log.WithComponent("aggregator"),
	}
}

// Sources returns the configured source names
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return names
}

// fetched carries one source's outcome; a failed fetch keeps err instead of
// failing the pool so that every failure stays attributed to its source
type fetched struct {
	index   int
	entries []models.StatementEntry
	err     error
}

// Aggregate returns the merged statements for q. Only an invalid query or a
// cancelled context is an error.
func (a *Aggregator) Aggregate(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	log := a.logger.WithFields(logger.Fields{
		"company_id": q.CompanyID,
		"from":       models.FormatDate(q.From),
		"to":         models.FormatDate(q.To),
	})

	p := pool.NewWithResults[fetched]()
	for i, src := range a.sources {
		i, src := i, src
		p.Go(func() fetched {
			entries, err := src.Fetch(ctx, q)
			return fetched{index: i, entries: entries, err: err}
		})
	}
	results := p.Wait()

	if ctx.Err() != nil {
		return nil, errors.Wrap(context.Cause(ctx), errors.CategoryInternal, errors.CodeProcessingError, "statement aggregation cancelled")
	}

	// results arrive in completion order; merge in configuration order
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	result := &Result{PerSource: make(map[string]int, len(a.sources))}
	var merged []models.StatementEntry
	for _, r := range results {
		name := a.sources[r.index].Name()
		if r.err != nil {
			result.Failures = append(result.Failures, SourceFailure{Source: name, Err: r.err})
			log.WithError(r.err).WithField("source", name).Warn("source failed, continuing without it")
			continue
		}
		result.PerSource[name] = len(r.entries)
		merged = append(merged, r.entries...)
	}

	deduped := dedup.Detect(merged)
	result.Duplicates = deduped.Removed()
	result.Statements = deduped.Unique
	sort.SliceStable(result.Statements, func(i, j int) bool {
		return result.Statements[i].MovementDate.Before(result.Statements[j].MovementDate)
	})

	log.WithFields(logger.Fields{
		"total":      len(result.Statements),
		"duplicates": result.Duplicates,
		"failed":     len(result.Failures),
	}).Debug("statements aggregated")

	return result, nil
}
