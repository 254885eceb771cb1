package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/runner"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/store"
)

// recordingJob records the ids it was asked to process.
type recordingJob struct {
	mu  sync.Mutex
	ids []string
}

func (j *recordingJob) Run(ctx context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ids = append(j.ids, id)
	return nil
}

func (j *recordingJob) ran() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.ids...)
}

type apiFixture struct {
	store     *store.SQLiteStore
	runner    *runner.Runner
	reviews   *recordingJob
	ingestion *recordingJob
	handler   http.Handler
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	f := &apiFixture{
		store:     s,
		runner:    runner.New(),
		reviews:   &recordingJob{},
		ingestion: &recordingJob{},
	}
	f.handler = NewServer(s, f.runner, f.reviews, f.ingestion).Router()
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "healthy"}, decode[map[string]string](t, rec))
}

func TestClassificationEndpoints(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, "POST", "/api/v1/classifications", map[string]string{"name": "Python"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.Classification](t, rec)
	assert.Len(t, created.ID, 24)
	assert.Equal(t, "Python", created.Name)

	// Duplicate name is rejected
	rec = f.do(t, "POST", "/api/v1/classifications", map[string]string{"name": "Python"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing name is rejected
	rec = f.do(t, "POST", "/api/v1/classifications", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "GET", "/api/v1/classifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Classification](t, rec)
	require.Len(t, list, 1)

	rec = f.do(t, "DELETE", "/api/v1/classifications/not-hex", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "DELETE", "/api/v1/classifications/000000000000000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, "DELETE", "/api/v1/classifications/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decode[map[string]string](t, rec)["status"])
}

func TestStandardSetCreateValidation(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, "POST", "/api/v1/standard-sets", map[string]string{"name": "sec"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, "POST", "/api/v1/standard-sets", map[string]string{
		"name":           "sec",
		"repository_url": "https://example.com/sec.git",
		"custom_prompt":  string(make([]byte, models.MaxCustomPromptLen+1)),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStandardSetUpsertDispatchesIngestion(t *testing.T) {
	f := setupAPI(t)

	body := map[string]string{"name": "sec", "repository_url": "https://example.com/sec.git"}
	rec := f.do(t, "POST", "/api/v1/standard-sets", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[models.StandardSet](t, rec)
	assert.Len(t, first.ID, 24)

	// Same name again keeps the id and re-triggers ingestion
	body["repository_url"] = "https://example.com/sec-v2.git"
	rec = f.do(t, "POST", "/api/v1/standard-sets", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[models.StandardSet](t, rec)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "https://example.com/sec-v2.git", second.RepositoryURL)

	f.runner.Wait()
	assert.Equal(t, []string{first.ID, first.ID}, f.ingestion.ran())
}

func TestGetStandardSetIncludesStandards(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	set := &models.StandardSet{Name: "sec", RepositoryURL: "https://example.com/sec.git"}
	require.NoError(t, f.store.UpsertStandardSet(ctx, set))
	require.NoError(t, f.store.CreateStandard(ctx, &models.Standard{
		Text:           "Use TLS everywhere.",
		RepositoryPath: "tls.md",
		StandardSetID:  set.ID,
	}))

	rec := f.do(t, "GET", "/api/v1/standard-sets/"+set.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.StandardSetWithStandards](t, rec)
	assert.Equal(t, "sec", got.Name)
	require.Len(t, got.Standards, 1)
	assert.Equal(t, "Use TLS everywhere.", got.Standards[0].Text)

	rec = f.do(t, "GET", "/api/v1/standard-sets/000000000000000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, "GET", "/api/v1/standard-sets/short", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteStandardSet(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	set := &models.StandardSet{Name: "sec", RepositoryURL: "https://example.com/sec.git"}
	require.NoError(t, f.store.UpsertStandardSet(ctx, set))

	rec := f.do(t, "DELETE", "/api/v1/standard-sets/"+set.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "DELETE", "/api/v1/standard-sets/"+set.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCodeReview(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	set := &models.StandardSet{Name: "sec", RepositoryURL: "https://example.com/sec.git"}
	require.NoError(t, f.store.UpsertStandardSet(ctx, set))

	rec := f.do(t, "POST", "/api/v1/code-reviews", map[string]any{
		"repository_url": "https://example.com/app.git",
		"standard_sets":  []string{set.ID},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	review := decode[models.CodeReview](t, rec)
	assert.Len(t, review.ID, 24)
	assert.Equal(t, models.ReviewStatusStarted, review.Status)
	require.Len(t, review.StandardSets, 1)
	assert.Equal(t, "sec", review.StandardSets[0].Name)
	assert.NotNil(t, review.ComplianceReports)

	f.runner.Wait()
	assert.Equal(t, []string{review.ID}, f.reviews.ran())
}

func TestCreateCodeReviewRejectsBadSets(t *testing.T) {
	f := setupAPI(t)

	// Missing fields
	rec := f.do(t, "POST", "/api/v1/code-reviews", map[string]any{
		"repository_url": "https://example.com/app.git",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Malformed set id
	rec = f.do(t, "POST", "/api/v1/code-reviews", map[string]any{
		"repository_url": "https://example.com/app.git",
		"standard_sets":  []string{"nope"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Well-formed but unknown set id
	rec = f.do(t, "POST", "/api/v1/code-reviews", map[string]any{
		"repository_url": "https://example.com/app.git",
		"standard_sets":  []string{"000000000000000000000000"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing was persisted and no job dispatched
	reviews, err := f.store.ListCodeReviews(context.Background(), store.CodeReviewListFilter{})
	require.NoError(t, err)
	assert.Empty(t, reviews)
	f.runner.Wait()
	assert.Empty(t, f.reviews.ran())
}

func TestListCodeReviewsFilter(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	for _, url := range []string{"https://example.com/a.git", "https://example.com/b.git"} {
		require.NoError(t, f.store.CreateCodeReview(ctx, &models.CodeReview{
			RepositoryURL: url,
			Status:        models.ReviewStatusStarted,
		}))
	}
	all, err := f.store.ListCodeReviews(ctx, store.CodeReviewListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NoError(t, f.store.UpdateCodeReviewStatus(ctx, all[0].ID, models.ReviewStatusCompleted, nil))

	rec := f.do(t, "GET", "/api/v1/code-reviews?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.CodeReview](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, models.ReviewStatusCompleted, list[0].Status)

	rec = f.do(t, "GET", "/api/v1/code-reviews?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCodeReviewResolvesDeletedSet(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	set := &models.StandardSet{Name: "sec", RepositoryURL: "https://example.com/sec.git"}
	require.NoError(t, f.store.UpsertStandardSet(ctx, set))

	review := &models.CodeReview{
		RepositoryURL: "https://example.com/app.git",
		Status:        models.ReviewStatusCompleted,
		StandardSets:  []models.StandardSetRef{{ID: set.ID, Name: set.Name}},
	}
	require.NoError(t, f.store.CreateCodeReview(ctx, review))
	require.NoError(t, f.store.DeleteStandardSet(ctx, set.ID))

	rec := f.do(t, "GET", "/api/v1/code-reviews/"+review.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.CodeReview](t, rec)
	require.Len(t, got.StandardSets, 1)
	assert.Equal(t, "Unknown Standard Set", got.StandardSets[0].Name)

	rec = f.do(t, "GET", "/api/v1/code-reviews/000000000000000000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
