// Package evaluate orchestrates AI grading: prompt construction, the
// gateway call, schema validation with bounded retry, overall-grade
// derivation, and append-only persistence of results.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jinwoohan/appgrader/internal/errs"
	"github.com/jinwoohan/appgrader/internal/llm"
	"github.com/jinwoohan/appgrader/internal/logger"
	"github.com/jinwoohan/appgrader/internal/store"
)

// Orchestrator grades application records via the LLM gateway.
type Orchestrator struct {
	db          *store.DB
	provider    llm.Provider
	maxAttempts int
	workers     int
	backoff     time.Duration
	log         *zap.Logger
}

// New creates an orchestrator. maxAttempts bounds whole-request retries
// on schema failures; workers caps batch concurrency.
func New(db *store.DB, provider llm.Provider, maxAttempts, workers int, log *zap.Logger) *Orchestrator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		db:          db,
		provider:    provider,
		maxAttempts: maxAttempts,
		workers:     workers,
		backoff:     500 * time.Millisecond,
		log:         log,
	}
}

// Evaluate grades one record and appends the result to its evaluation
// history. A record whose parse failed is refused with ErrNotEvaluable
// before any network call. When every attempt produces an undecodable
// response, a failed-parse result retaining the raw text is persisted
// and returned instead of an error.
func (o *Orchestrator) Evaluate(ctx context.Context, app *store.Application) (*store.EvaluationResult, error) {
	if app.ParseStatus == store.ParseFailed {
		return nil, errs.ErrNotEvaluable
	}

	criteria, err := o.db.ListCriteria()
	if err != nil {
		return nil, err
	}
	if len(criteria) == 0 {
		return nil, fmt.Errorf("no active evaluation criteria configured")
	}

	var dept *store.Department
	if app.DepartmentID != nil {
		if d, err := o.db.GetDepartment(*app.DepartmentID); err == nil {
			dept = d
		}
	}

	prompt := BuildPrompt(app, criteria, dept)
	schema := responseSchema(criteria)

	var lastRaw string
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		raw, err := o.provider.Generate(ctx, systemPrompt, prompt)
		if err != nil {
			if errs.IsTransient(err) {
				lastErr = err
				o.log.Warn("gateway call failed, retrying",
					zap.Int64("application", app.ID),
					zap.Int("attempt", attempt),
					zap.Error(err))
				if attempt < o.maxAttempts {
					if err := o.wait(ctx, attempt); err != nil {
						return nil, err
					}
				}
				continue
			}
			return nil, err
		}

		parsed, err := decodeResponse(raw, schema, criteria)
		if err != nil {
			lastRaw, lastErr = raw, err
			o.log.Warn("response failed schema validation, retrying",
				zap.Int64("application", app.ID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		return o.persist(app, parsed, criteria, raw)
	}

	var se *errs.SchemaError
	if errors.As(lastErr, &se) {
		return o.persistFailedParse(app, lastRaw, se)
	}
	return nil, lastErr
}

// wait sleeps out the exponential backoff before the next gateway
// attempt. 500ms, 1s, 2s, ...
func (o *Orchestrator) wait(ctx context.Context, attempt int) error {
	select {
	case <-time.After(o.backoff << (attempt - 1)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReEvaluate grades a record again. History is append-only, so this is
// the same operation; the name exists for callers expressing intent.
func (o *Orchestrator) ReEvaluate(ctx context.Context, app *store.Application) (*store.EvaluationResult, error) {
	return o.Evaluate(ctx, app)
}

func (o *Orchestrator) persist(app *store.Application, parsed *gradedResponse, criteria []*store.Criterion, raw string) (*store.EvaluationResult, error) {
	overall, remote := overallGrade(parsed, criteria)
	if !remote && parsed.OverallGrade != "" {
		o.log.Warn("remote overall grade invalid, using weighted average",
			zap.Int64("application", app.ID),
			zap.String("remote", parsed.OverallGrade))
	}

	result := &store.EvaluationResult{
		ApplicationID: app.ID,
		Source:        store.SourceAI,
		OverallGrade:  overall,
		Grades:        criterionGrades(parsed, criteria),
		RawResponse:   &raw,
	}
	if parsed.Summary != "" {
		result.Summary = &parsed.Summary
	}

	if _, err := o.db.AppendEvaluationResult(result); err != nil {
		return nil, fmt.Errorf("persisting evaluation: %w", err)
	}
	o.log.Info("application evaluated",
		zap.Int64("application", app.ID),
		zap.String("overall", overall))
	return result, nil
}

func (o *Orchestrator) persistFailedParse(app *store.Application, raw string, se *errs.SchemaError) (*store.EvaluationResult, error) {
	result := &store.EvaluationResult{
		ApplicationID: app.ID,
		Source:        store.SourceAI,
		RawResponse:   &raw,
		FailedParse:   true,
	}
	reason := se.Reason
	result.Summary = &reason

	if _, err := o.db.AppendEvaluationResult(result); err != nil {
		return nil, fmt.Errorf("persisting failed-parse result: %w", err)
	}
	o.log.Warn("all attempts failed schema validation, recorded failed-parse result",
		zap.Int64("application", app.ID),
		zap.String("reason", se.Reason),
		zap.String("raw", logger.Truncate(raw, 200)))
	return result, nil
}

// Failure is one per-record failure inside a batch run.
type Failure struct {
	ApplicationID int64
	Reason        string
}

// Report aggregates a batch evaluation run.
type Report struct {
	Evaluated   int
	FailedParse int
	Failed      int
	Skipped     int
	Failures    []Failure
}

// RunAI evaluates every given record with bounded concurrency, continuing
// past individual failures. Cancellation stops new work; in-flight calls
// drain and their outcomes are still recorded.
func (o *Orchestrator) RunAI(ctx context.Context, apps []*store.Application) *Report {
	report := &Report{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, app := range apps {
		if gctx.Err() != nil {
			break
		}
		app := app
		g.Go(func() error {
			result, err := o.Evaluate(gctx, app)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errs.ErrNotEvaluable):
				report.Skipped++
			case err != nil:
				report.Failed++
				report.Failures = append(report.Failures, Failure{ApplicationID: app.ID, Reason: err.Error()})
			case result.FailedParse:
				report.FailedParse++
			default:
				report.Evaluated++
			}
			return nil
		})
	}
	g.Wait()
	return report
}
