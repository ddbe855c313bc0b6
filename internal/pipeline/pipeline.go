// Package pipeline wires the full run: sync the application pages,
// classify the records, then grade everything still pending.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jinwoohan/appgrader/internal/classify"
	"github.com/jinwoohan/appgrader/internal/config"
	"github.com/jinwoohan/appgrader/internal/confluence"
	"github.com/jinwoohan/appgrader/internal/evaluate"
	"github.com/jinwoohan/appgrader/internal/extract"
	"github.com/jinwoohan/appgrader/internal/ingest"
	"github.com/jinwoohan/appgrader/internal/llm"
	"github.com/jinwoohan/appgrader/internal/ratelimit"
	"github.com/jinwoohan/appgrader/internal/store"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Pipeline orchestrates the sync/classify/evaluate run.
type Pipeline struct {
	cfg    *config.Config
	db     *store.DB
	syncer *ingest.Syncer
	orch   *evaluate.Orchestrator
	log    *zap.Logger
}

// New wires the pipeline from configuration: one rate limiter per
// external service, the wiki client doubling as the image fetcher, and
// the gateway-backed evaluator.
func New(cfg *config.Config, db *store.DB, log *zap.Logger) (*Pipeline, error) {
	wikiLimiter, err := ratelimit.New(cfg.Confluence.Rate.MaxCalls, cfg.Confluence.Rate.Window())
	if err != nil {
		return nil, fmt.Errorf("wiki rate limiter: %w", err)
	}
	llmLimiter, err := ratelimit.New(cfg.LLM.Rate.MaxCalls, cfg.LLM.Rate.Window())
	if err != nil {
		return nil, fmt.Errorf("llm rate limiter: %w", err)
	}

	client := confluence.New(cfg.Confluence.BaseURL, cfg.ConfluenceToken(), wikiLimiter, log)
	extractor := extract.New(client, cfg.ImageDir(), cfg.Extract.PartialThreshold, log)
	syncer := ingest.New(client, extractor, db, cfg.LinkBase(), log)

	provider := llm.NewClient(llm.Options{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLMAPIKey(),
		Credential:  cfg.LLMCredential(),
		SystemName:  cfg.LLM.SystemName,
		UserID:      cfg.LLM.UserID,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, llmLimiter, log)
	orch := evaluate.New(db, provider, cfg.LLM.MaxAttempts, cfg.LLM.Workers, log)

	return &Pipeline{cfg: cfg, db: db, syncer: syncer, orch: orch, log: log}, nil
}

// Syncer returns the wired syncer for single-step commands.
func (p *Pipeline) Syncer() *ingest.Syncer { return p.syncer }

// Orchestrator returns the wired evaluator for single-step commands.
func (p *Pipeline) Orchestrator() *evaluate.Orchestrator { return p.orch }

// Run executes the full pipeline. A sync failure aborts the run; later
// steps always execute over whatever records exist.
func (p *Pipeline) Run(ctx context.Context, force bool) *Result {
	r := &Result{}

	step := p.runSync(ctx, force)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	r.Steps = append(r.Steps, p.runClassify())
	r.Steps = append(r.Steps, p.runEvaluate(ctx))
	return r
}

func (p *Pipeline) runSync(ctx context.Context, force bool) StepResult {
	p.log.Info("step 1/3: syncing application pages")
	report, err := p.syncer.Sync(ctx, p.cfg.Confluence.ParentPageID, force)
	if err != nil {
		return StepResult{Name: "Sync", Err: err}
	}
	return StepResult{
		Name: "Sync",
		Summary: fmt.Sprintf("%d fetched (%d created, %d updated), %d skipped, %d failed",
			report.Fetched, report.Created, report.Updated, report.Skipped, report.Failed),
	}
}

func (p *Pipeline) runClassify() StepResult {
	p.log.Info("step 2/3: classifying records")
	classified, unmatched, err := p.ClassifyAll()
	if err != nil {
		return StepResult{Name: "Classify", Err: err}
	}
	return StepResult{
		Name:    "Classify",
		Summary: fmt.Sprintf("%d classified, %d without a matching category", classified, unmatched),
	}
}

func (p *Pipeline) runEvaluate(ctx context.Context) StepResult {
	p.log.Info("step 3/3: evaluating pending records")
	apps, err := p.db.ListApplications("pending")
	if err != nil {
		return StepResult{Name: "Evaluate", Err: err}
	}
	report := p.orch.RunAI(ctx, apps)
	return StepResult{
		Name: "Evaluate",
		Summary: fmt.Sprintf("%d evaluated, %d failed parse, %d skipped, %d failed",
			report.Evaluated, report.FailedParse, report.Skipped, report.Failed),
	}
}

// ClassifyAll runs the keyword classifier over every parsed record and
// stores the assignments. Returns how many records got at least one
// category and how many matched none.
func (p *Pipeline) ClassifyAll() (classified, unmatched int, err error) {
	categories, err := p.db.ListCategories()
	if err != nil {
		return 0, 0, err
	}
	apps, err := p.db.ListApplications("")
	if err != nil {
		return 0, 0, err
	}

	for _, app := range apps {
		if app.ParseStatus == store.ParseFailed {
			continue
		}
		matches := classify.Classify(app, categories, p.cfg.Classifier.MinScore)
		if len(matches) == 0 {
			unmatched++
			continue
		}

		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		primary := names[0]
		if err := p.db.UpdateApplicationClassification(app.ID, &primary, names); err != nil {
			return classified, unmatched, fmt.Errorf("storing classification for %d: %w", app.ID, err)
		}
		classified++
	}
	return classified, unmatched, nil
}
