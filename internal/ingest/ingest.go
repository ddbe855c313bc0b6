// Package ingest walks the application page tree, extracts each page into
// a structured record, and upserts the results. One bad page never aborts
// a sync run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jinwoohan/appgrader/internal/confluence"
	"github.com/jinwoohan/appgrader/internal/extract"
	"github.com/jinwoohan/appgrader/internal/store"
)

// ContentSource lists and fetches wiki pages.
type ContentSource interface {
	ListChildren(ctx context.Context, parentID string) ([]confluence.PageSummary, error)
	GetPage(ctx context.Context, pageID string) (*confluence.Page, error)
}

// Failure is one per-page failure inside a sync run.
type Failure struct {
	PageID string
	Reason string
}

// Report aggregates one sync run. Fetched counts fetch attempts,
// including ones that failed.
type Report struct {
	Fetched  int
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Failures []Failure
}

// Syncer ingests application pages into the store.
type Syncer struct {
	source    ContentSource
	extractor *extract.Extractor
	db        *store.DB
	linkBase  string
	log       *zap.Logger
}

// New creates a syncer. linkBase is prefixed to page web links for the
// stored user-facing URL.
func New(source ContentSource, extractor *extract.Extractor, db *store.DB, linkBase string, log *zap.Logger) *Syncer {
	return &Syncer{
		source:    source,
		extractor: extractor,
		db:        db,
		linkBase:  strings.TrimRight(linkBase, "/"),
		log:       log,
	}
}

// Sync walks all children of the parent page and upserts each one.
// Pages already in the store are skipped unless force is set. Per-page
// failures are recorded in the report; only the child listing itself is
// fatal. Cancellation stops new fetches; completed pages stay recorded.
func (s *Syncer) Sync(ctx context.Context, parentID string, force bool) (*Report, error) {
	pages, err := s.source.ListChildren(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing application pages: %w", err)
	}
	s.log.Info("sync started", zap.String("parent", parentID), zap.Int("pages", len(pages)))

	report := &Report{}
	for i, page := range pages {
		if ctx.Err() != nil {
			s.log.Warn("sync cancelled", zap.Int("remaining", len(pages)-i))
			break
		}

		if !force {
			if _, err := s.db.GetApplicationByPageID(page.ID); err == nil {
				report.Skipped++
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				report.Failed++
				report.Failures = append(report.Failures, Failure{PageID: page.ID, Reason: err.Error()})
				continue
			}
		}

		if err := s.syncPage(ctx, page.ID, report); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, Failure{PageID: page.ID, Reason: err.Error()})
			s.log.Warn("page sync failed", zap.String("page", page.ID), zap.Error(err))
		}
	}

	s.log.Info("sync complete",
		zap.Int("fetched", report.Fetched),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
	return report, nil
}

// SyncOne ingests a single page by id, always overwriting the stored
// record.
func (s *Syncer) SyncOne(ctx context.Context, pageID string) (*Report, error) {
	report := &Report{}
	if err := s.syncPage(ctx, pageID, report); err != nil {
		report.Failed++
		report.Failures = append(report.Failures, Failure{PageID: pageID, Reason: err.Error()})
		return report, err
	}
	return report, nil
}

func (s *Syncer) syncPage(ctx context.Context, pageID string, report *Report) error {
	report.Fetched++
	page, err := s.source.GetPage(ctx, pageID)
	if err != nil {
		return err
	}

	result := s.extractor.Extract(ctx, page.Body)
	app := s.buildRecord(pageID, page, result)

	if app.Division != nil {
		if dept, err := s.db.FindDepartmentByDivision(*app.Division); err == nil {
			app.DepartmentID = &dept.ID
		}
	}

	_, created, err := s.db.UpsertApplication(app)
	if err != nil {
		return err
	}
	if created {
		report.Created++
	} else {
		report.Updated++
	}
	s.log.Debug("page ingested",
		zap.String("page", pageID),
		zap.String("parse_status", app.ParseStatus),
		zap.Bool("created", created))
	return nil
}

func (s *Syncer) buildRecord(pageID string, page *confluence.Page, result *extract.Result) *store.Application {
	app := &store.Application{
		PageID:               pageID,
		Subject:              result.Subject,
		Division:             result.Division,
		ParticipantCount:     result.ParticipantCount,
		RepresentativeName:   result.RepresentativeName,
		RepresentativeKnoxID: result.RepresentativeKnoxID,
		Survey:               result.Survey,
		Skills:               result.Skills,
		CurrentWork:          result.CurrentWork,
		PainPoint:            result.PainPoint,
		ImprovementIdea:      result.ImprovementIdea,
		ExpectedEffect:       result.ExpectedEffect,
		DataReadiness:        result.DataReadiness,
		Images:               result.Images,
		ParseStatus:          result.Status,
	}
	// Untitled subjects fall back to the page title.
	if app.Subject == nil && page.Title != "" {
		title := page.Title
		app.Subject = &title
	}
	if page.WebUI != "" {
		url := s.linkBase + page.WebUI
		app.PageURL = &url
	}
	if len(result.Diagnostics) > 0 {
		diag := strings.Join(result.Diagnostics, "\n")
		app.ParseDiagnosis = &diag
	}
	return app
}
