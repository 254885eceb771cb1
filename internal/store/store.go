package store

import (
	"context"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
)

// CodeReviewListFilter specifies filters for listing code reviews.
type CodeReviewListFilter struct {
	Status models.ReviewStatus
}

// Store defines the persistence interface for the code review service.
type Store interface {
	// Classifications
	CreateClassification(ctx context.Context, c *models.Classification) error
	GetClassification(ctx context.Context, id string) (*models.Classification, error)
	ListClassifications(ctx context.Context) ([]*models.Classification, error)
	DeleteClassification(ctx context.Context, id string) error

	// Standard sets. Creation is upsert-by-name: an existing set with the
	// same name keeps its id and has its URL/prompt replaced.
	UpsertStandardSet(ctx context.Context, s *models.StandardSet) error
	GetStandardSet(ctx context.Context, id string) (*models.StandardSet, error)
	ListStandardSets(ctx context.Context) ([]*models.StandardSet, error)
	DeleteStandardSet(ctx context.Context, id string) error

	// Standards
	CreateStandard(ctx context.Context, st *models.Standard) error
	ListStandardsBySet(ctx context.Context, standardSetID string) ([]*models.Standard, error)
	DeleteStandardsBySet(ctx context.Context, standardSetID string) error
	// ListMatchingStandards returns the set's standards whose
	// classification ids intersect classificationIDs, plus every
	// universal standard (empty classification list).
	ListMatchingStandards(ctx context.Context, standardSetID string, classificationIDs []string) ([]*models.Standard, error)

	// Code reviews
	CreateCodeReview(ctx context.Context, r *models.CodeReview) error
	GetCodeReview(ctx context.Context, id string) (*models.CodeReview, error)
	ListCodeReviews(ctx context.Context, filter CodeReviewListFilter) ([]*models.CodeReview, error)
	// UpdateCodeReviewStatus sets the review status and, when reports is
	// non-nil, replaces the stored compliance reports.
	UpdateCodeReviewStatus(ctx context.Context, id string, status models.ReviewStatus, reports []models.ComplianceReport) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
