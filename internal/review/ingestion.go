package review

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/gitrepo"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ingest"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/store"
)

// SetIngestion is the background flow run whenever a standard set is
// created or replaced: clone its repository and regenerate its
// standards. The standard set document itself is persisted before this
// runs, so ingestion failures are logged but leave no status mark.
type SetIngestion struct {
	store    store.Store
	cloner   gitrepo.Cloner
	ingestor *ingest.Ingestor
}

// NewSetIngestion creates the ingestion flow.
func NewSetIngestion(s store.Store, cloner gitrepo.Cloner, ingestor *ingest.Ingestor) *SetIngestion {
	return &SetIngestion{store: s, cloner: cloner, ingestor: ingestor}
}

// Run ingests the standard set with the given id.
func (si *SetIngestion) Run(ctx context.Context, standardSetID string) error {
	log := slog.With("standard_set_id", standardSetID)

	set, err := si.store.GetStandardSet(ctx, standardSetID)
	if err != nil {
		log.Error("standard set ingestion aborted", "error", err)
		return err
	}

	cloneDir, err := os.MkdirTemp("", "codereview-standards-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(cloneDir) }()

	if err := si.cloner.Clone(ctx, set.RepositoryURL, cloneDir); err != nil {
		log.Error("could not clone standards repository", "url", set.RepositoryURL, "error", err)
		return err
	}

	classifications, err := si.store.ListClassifications(ctx)
	if err != nil {
		log.Error("could not load classifications", "error", err)
		return err
	}
	known := make([]models.Classification, len(classifications))
	for i, c := range classifications {
		known[i] = *c
	}

	if err := si.ingestor.Run(ctx, set.ID, cloneDir, known); err != nil {
		log.Error("standards ingestion failed", "error", err)
		return err
	}

	log.Info("standard set ingested", "name", set.Name)
	return nil
}
