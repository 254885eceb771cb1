// Package review orchestrates the background pipelines: code review
// processing and standard set ingestion.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/classify"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/compliance"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/flatten"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/gitrepo"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ids"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/llm"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/store"
)

// Pipeline runs one code review from STARTED to COMPLETED or FAILED.
//
// Failure handling is deliberately asymmetric: fetch/flatten/classify
// failures abort the whole review, while per-standard-set failures only
// skip that set.
type Pipeline struct {
	store   store.Store
	cloner  gitrepo.Cloner
	llm     llm.Completer
	checker *compliance.Checker
	dataDir string
}

// NewPipeline creates a review pipeline. Reports and flattened codebases
// are written under dataDir.
func NewPipeline(s store.Store, cloner gitrepo.Cloner, c llm.Completer, checker *compliance.Checker, dataDir string) *Pipeline {
	return &Pipeline{
		store:   s,
		cloner:  cloner,
		llm:     c,
		checker: checker,
		dataDir: dataDir,
	}
}

// Run processes the review with the given id. The terminal status is
// persisted before returning; the returned error exists for logging and
// tests, callers must not retry on it.
func (p *Pipeline) Run(ctx context.Context, reviewID string) error {
	log := slog.With("review_id", reviewID)

	review, err := p.store.GetCodeReview(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("load review: %w", err)
	}

	if err := p.store.UpdateCodeReviewStatus(ctx, reviewID, models.ReviewStatusInProgress, nil); err != nil {
		return fmt.Errorf("mark review in progress: %w", err)
	}

	reports, err := p.process(ctx, review, log)
	if err != nil {
		log.Error("code review failed", "error", err)
		if updErr := p.store.UpdateCodeReviewStatus(ctx, reviewID, models.ReviewStatusFailed, nil); updErr != nil {
			log.Error("could not persist failed status", "error", updErr)
		}
		return err
	}

	if err := p.store.UpdateCodeReviewStatus(ctx, reviewID, models.ReviewStatusCompleted, reports); err != nil {
		return fmt.Errorf("persist completed review: %w", err)
	}
	log.Info("code review completed", "reports", len(reports))
	return nil
}

func (p *Pipeline) process(ctx context.Context, review *models.CodeReview, log *slog.Logger) ([]models.ComplianceReport, error) {
	cloneDir, err := os.MkdirTemp("", "codereview-clone-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(cloneDir) }()

	if err := p.cloner.Clone(ctx, review.RepositoryURL, cloneDir); err != nil {
		return nil, err
	}

	codebaseFile := filepath.Join(p.dataDir, "codebase", gitrepo.RepoName(review.RepositoryURL)+".txt")
	if err := flatten.Repository(cloneDir, codebaseFile); err != nil {
		return nil, fmt.Errorf("flatten repository: %w", err)
	}

	codebase, err := os.ReadFile(codebaseFile)
	if err != nil {
		return nil, fmt.Errorf("read flattened codebase: %w", err)
	}

	classifications, err := p.store.ListClassifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("load classifications: %w", err)
	}
	known := make([]models.Classification, len(classifications))
	for i, c := range classifications {
		known[i] = *c
	}

	matchedIDs, err := classify.Codebase(ctx, p.llm, string(codebase), known)
	if err != nil {
		return nil, err
	}
	matched := classificationsByID(known, matchedIDs)

	// Reports accumulate even when individual sets are skipped; an empty
	// list still completes the review.
	reports := []models.ComplianceReport{}
	for _, ref := range review.StandardSets {
		report, ok := p.checkStandardSet(ctx, review, ref, codebaseFile, matchedIDs, matched, log)
		if ok {
			reports = append(reports, report)
		}
	}
	return reports, nil
}

// checkStandardSet runs one standard set's compliance check. All
// failures here are non-fatal for the review: the set is skipped.
func (p *Pipeline) checkStandardSet(ctx context.Context, review *models.CodeReview, ref models.StandardSetRef, codebaseFile string, matchedIDs []string, matched []models.Classification, log *slog.Logger) (models.ComplianceReport, bool) {
	set, err := p.store.GetStandardSet(ctx, ref.ID)
	if err != nil {
		log.Error("standard set not found, skipping", "standard_set_id", ref.ID, "error", err)
		return models.ComplianceReport{}, false
	}

	standards, err := p.store.ListMatchingStandards(ctx, set.ID, matchedIDs)
	if err != nil {
		log.Error("could not query standards, skipping set", "standard_set_id", set.ID, "error", err)
		return models.ComplianceReport{}, false
	}
	if len(standards) == 0 {
		log.Warn("no matching standards for set, skipping", "standard_set", set.Name)
		return models.ComplianceReport{}, false
	}

	path, text, err := p.checker.Check(ctx, compliance.Request{
		CodebaseFile:           codebaseFile,
		Standards:              standards,
		ReviewID:               review.ID,
		StandardSetName:        set.Name,
		MatchedClassifications: matched,
	})
	if err != nil {
		log.Error("compliance check failed, skipping set", "standard_set", set.Name, "error", err)
		return models.ComplianceReport{}, false
	}

	return models.ComplianceReport{
		ID:              ids.New(),
		StandardSetName: set.Name,
		File:            path,
		Report:          text,
	}, true
}

func classificationsByID(known []models.Classification, wanted []string) []models.Classification {
	want := make(map[string]bool, len(wanted))
	for _, id := range wanted {
		want[id] = true
	}
	var out []models.Classification
	for _, c := range known {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
