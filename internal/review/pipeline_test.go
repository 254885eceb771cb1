package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/compliance"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/gitrepo"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ingest"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/store"
)

// fakeCloner materializes a fixture tree instead of calling git.
type fakeCloner struct {
	files map[string]string
	err   error
}

func (f *fakeCloner) Clone(_ context.Context, _ string, target string) error {
	if f.err != nil {
		return f.err
	}
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	for name, content := range f.files {
		path := filepath.Join(target, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// pipelineCompleter answers the classification prompt with classifyResp
// and every compliance prompt with a markdown section.
type pipelineCompleter struct {
	classifyResp string
	checkErr     error
	checkCalls   int
}

func (c *pipelineCompleter) Complete(_ context.Context, _, user string) (string, error) {
	if strings.Contains(user, "Available Technology Classifications") {
		return c.classifyResp, nil
	}
	c.checkCalls++
	if c.checkErr != nil {
		return "", c.checkErr
	}
	return "## Verdict Section", nil
}

type pipelineFixture struct {
	store    store.Store
	pipeline *Pipeline
	python   *models.Classification
	set      *models.StandardSet
}

func setupPipeline(t *testing.T, cloner gitrepo.Cloner, c *pipelineCompleter) *pipelineFixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	python := &models.Classification{Name: "Python"}
	require.NoError(t, s.CreateClassification(ctx, python))

	set := &models.StandardSet{Name: "S1", RepositoryURL: "https://example.com/std.git"}
	require.NoError(t, s.UpsertStandardSet(ctx, set))
	require.NoError(t, s.CreateStandard(ctx, &models.Standard{
		StandardSetID: set.ID, RepositoryPath: "security_standards.md", Text: "# Security",
	}))
	require.NoError(t, s.CreateStandard(ctx, &models.Standard{
		StandardSetID: set.ID, RepositoryPath: "python_standards.md", Text: "# Python",
		ClassificationIDs: []string{python.ID},
	}))

	checker := compliance.NewChecker(c, compliance.Config{CallInterval: 1})
	p := NewPipeline(s, cloner, c, checker, t.TempDir())
	return &pipelineFixture{store: s, pipeline: p, python: python, set: set}
}

func createReview(t *testing.T, s store.Store, refs ...models.StandardSetRef) *models.CodeReview {
	t.Helper()
	r := &models.CodeReview{
		RepositoryURL: "https://example.com/my-app.git",
		StandardSets:  refs,
	}
	require.NoError(t, s.CreateCodeReview(context.Background(), r))
	return r
}

func TestRun_CompletesWithReport(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{"main.py": "print('hi')\n"}}
	c := &pipelineCompleter{classifyResp: "Python"}
	fx := setupPipeline(t, cloner, c)
	ctx := context.Background()

	r := createReview(t, fx.store, models.StandardSetRef{ID: fx.set.ID, Name: "S1"})
	require.NoError(t, fx.pipeline.Run(ctx, r.ID))

	got, err := fx.store.GetCodeReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCompleted, got.Status)
	require.Len(t, got.ComplianceReports, 1)
	assert.Equal(t, "S1", got.ComplianceReports[0].StandardSetName)
	assert.Len(t, got.ComplianceReports[0].ID, 24)
	assert.Contains(t, got.ComplianceReports[0].Report, "Matched Classifications: Python")
	// Both the universal and the Python-tagged standard were checked
	assert.Equal(t, 2, c.checkCalls)
}

func TestRun_CloneFailureFailsReview(t *testing.T) {
	cloner := &fakeCloner{err: errors.New("clone failed: repository not found")}
	c := &pipelineCompleter{classifyResp: "Python"}
	fx := setupPipeline(t, cloner, c)
	ctx := context.Background()

	r := createReview(t, fx.store, models.StandardSetRef{ID: fx.set.ID, Name: "S1"})
	require.Error(t, fx.pipeline.Run(ctx, r.ID))

	got, err := fx.store.GetCodeReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusFailed, got.Status)
	assert.Empty(t, got.ComplianceReports)
}

func TestRun_MissingStandardSetSkipped(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{"main.py": "print('hi')\n"}}
	c := &pipelineCompleter{classifyResp: "Python"}
	fx := setupPipeline(t, cloner, c)
	ctx := context.Background()

	r := createReview(t, fx.store,
		models.StandardSetRef{ID: "507f1f77bcf86cd799439099", Name: "Gone"},
		models.StandardSetRef{ID: fx.set.ID, Name: "S1"},
	)
	require.NoError(t, fx.pipeline.Run(ctx, r.ID))

	got, err := fx.store.GetCodeReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCompleted, got.Status)
	require.Len(t, got.ComplianceReports, 1, "the missing set is skipped, not fatal")
	assert.Equal(t, "S1", got.ComplianceReports[0].StandardSetName)
}

func TestRun_CheckerFailureSkipsSet(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{"main.py": "print('hi')\n"}}
	c := &pipelineCompleter{classifyResp: "Python", checkErr: errors.New("llm unavailable")}
	fx := setupPipeline(t, cloner, c)
	ctx := context.Background()

	r := createReview(t, fx.store, models.StandardSetRef{ID: fx.set.ID, Name: "S1"})
	require.NoError(t, fx.pipeline.Run(ctx, r.ID))

	got, err := fx.store.GetCodeReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCompleted, got.Status)
	assert.Empty(t, got.ComplianceReports, "a set whose check fails produces no report entry")
}

func TestRun_NoDetectedClassifications_UniversalOnly(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{"main.rs": "fn main() {}\n"}}
	c := &pipelineCompleter{classifyResp: ""}
	fx := setupPipeline(t, cloner, c)
	ctx := context.Background()

	r := createReview(t, fx.store, models.StandardSetRef{ID: fx.set.ID, Name: "S1"})
	require.NoError(t, fx.pipeline.Run(ctx, r.ID))

	got, err := fx.store.GetCodeReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCompleted, got.Status)
	require.Len(t, got.ComplianceReports, 1)
	assert.Contains(t, got.ComplianceReports[0].Report, "Matched Classifications: None")
	assert.Equal(t, 1, c.checkCalls, "only the universal standard applies")
}

func TestSetIngestion_Run(t *testing.T) {
	cloner := &fakeCloner{files: map[string]string{
		"security_standards.md": "# Security\nRotate secrets.",
		"README.md":             "# Readme",
	}}
	c := &pipelineCompleter{}
	fx := setupPipeline(t, cloner, c)
	ctx := context.Background()

	ingestor := ingest.New(fx.store, c, ingest.Config{})
	si := NewSetIngestion(fx.store, cloner, ingestor)
	require.NoError(t, si.Run(ctx, fx.set.ID))

	standards, err := fx.store.ListStandardsBySet(ctx, fx.set.ID)
	require.NoError(t, err)
	require.Len(t, standards, 1, "previous standards replaced by the cloned repo's documents")
	assert.Equal(t, "security_standards.md", standards[0].RepositoryPath)
}

func TestSetIngestion_CloneFailureLeavesSetIntact(t *testing.T) {
	goodCloner := &fakeCloner{files: map[string]string{"main.py": "x"}}
	c := &pipelineCompleter{}
	fx := setupPipeline(t, goodCloner, c)
	ctx := context.Background()

	ingestor := ingest.New(fx.store, c, ingest.Config{})
	si := NewSetIngestion(fx.store, &fakeCloner{err: errors.New("clone failed")}, ingestor)
	require.Error(t, si.Run(ctx, fx.set.ID))

	// The standard set document survives a failed ingestion
	_, err := fx.store.GetStandardSet(ctx, fx.set.ID)
	assert.NoError(t, err)
}
