package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ids"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors when background review jobs
	// write while HTTP requests read.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys (standards cascade with their standard set)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Classifications ---

func (s *SQLiteStore) CreateClassification(ctx context.Context, c *models.Classification) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classifications (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create classification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetClassification(ctx context.Context, id string) (*models.Classification, error) {
	c := &models.Classification{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM classifications WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("classification not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get classification: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListClassifications(ctx context.Context) ([]*models.Classification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM classifications ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list classifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Classification
	for rows.Next() {
		c := &models.Classification{}
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteClassification(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM classifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete classification: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("classification not found: %s", id)
	}
	return nil
}

// --- Standard sets ---

func (s *SQLiteStore) UpsertStandardSet(ctx context.Context, set *models.StandardSet) error {
	now := time.Now().UTC()

	var existingID string
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM standard_sets WHERE name = ?`, set.Name,
	).Scan(&existingID, &createdAt)

	switch {
	case err == sql.ErrNoRows:
		if set.ID == "" {
			set.ID = ids.New()
		}
		set.CreatedAt = now
		set.UpdatedAt = now
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO standard_sets (id, name, repository_url, custom_prompt, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			set.ID, set.Name, set.RepositoryURL, set.CustomPrompt, set.CreatedAt, set.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("create standard set: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("find standard set by name: %w", err)
	}

	// Same name replaces the prior set but keeps its id so existing
	// references stay valid.
	set.ID = existingID
	set.CreatedAt = createdAt
	set.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`UPDATE standard_sets SET repository_url=?, custom_prompt=?, updated_at=? WHERE id=?`,
		set.RepositoryURL, set.CustomPrompt, set.UpdatedAt, set.ID,
	)
	if err != nil {
		return fmt.Errorf("replace standard set: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetStandardSet(ctx context.Context, id string) (*models.StandardSet, error) {
	set := &models.StandardSet{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, repository_url, custom_prompt, created_at, updated_at
		FROM standard_sets WHERE id = ?`, id,
	).Scan(&set.ID, &set.Name, &set.RepositoryURL, &set.CustomPrompt, &set.CreatedAt, &set.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("standard set not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get standard set: %w", err)
	}
	return set, nil
}

func (s *SQLiteStore) ListStandardSets(ctx context.Context) ([]*models.StandardSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, repository_url, custom_prompt, created_at, updated_at
		FROM standard_sets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list standard sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.StandardSet
	for rows.Next() {
		set := &models.StandardSet{}
		if err := rows.Scan(&set.ID, &set.Name, &set.RepositoryURL, &set.CustomPrompt, &set.CreatedAt, &set.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan standard set: %w", err)
		}
		out = append(out, set)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteStandardSet(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM standard_sets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete standard set: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("standard set not found: %s", id)
	}
	return nil
}

// --- Standards ---

func (s *SQLiteStore) CreateStandard(ctx context.Context, st *models.Standard) error {
	if st.ID == "" {
		st.ID = ids.New()
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	classIDs, err := json.Marshal(st.ClassificationIDs)
	if err != nil {
		return fmt.Errorf("marshal classification ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO standards (id, standard_set_id, repository_path, text, classification_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.StandardSetID, st.RepositoryPath, st.Text, string(classIDs), st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create standard: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListStandardsBySet(ctx context.Context, standardSetID string) ([]*models.Standard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, standard_set_id, repository_path, text, classification_ids, created_at, updated_at
		FROM standards WHERE standard_set_id = ? ORDER BY repository_path`, standardSetID)
	if err != nil {
		return nil, fmt.Errorf("list standards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Standard
	for rows.Next() {
		st, err := scanStandard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteStandardsBySet(ctx context.Context, standardSetID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM standards WHERE standard_set_id = ?", standardSetID)
	if err != nil {
		return fmt.Errorf("delete standards: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMatchingStandards(ctx context.Context, standardSetID string, classificationIDs []string) ([]*models.Standard, error) {
	all, err := s.ListStandardsBySet(ctx, standardSetID)
	if err != nil {
		return nil, err
	}

	matched := make(map[string]bool, len(classificationIDs))
	for _, id := range classificationIDs {
		matched[id] = true
	}

	var out []*models.Standard
	for _, st := range all {
		if st.IsUniversal() {
			out = append(out, st)
			continue
		}
		for _, cid := range st.ClassificationIDs {
			if matched[cid] {
				out = append(out, st)
				break
			}
		}
	}
	return out, nil
}

func scanStandard(rows *sql.Rows) (*models.Standard, error) {
	st := &models.Standard{}
	var classIDs string
	if err := rows.Scan(&st.ID, &st.StandardSetID, &st.RepositoryPath, &st.Text, &classIDs, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan standard: %w", err)
	}
	if err := json.Unmarshal([]byte(classIDs), &st.ClassificationIDs); err != nil {
		return nil, fmt.Errorf("unmarshal classification ids: %w", err)
	}
	return st, nil
}

// --- Code reviews ---

func (s *SQLiteStore) CreateCodeReview(ctx context.Context, r *models.CodeReview) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.Status == "" {
		r.Status = models.ReviewStatusStarted
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	sets, err := json.Marshal(r.StandardSets)
	if err != nil {
		return fmt.Errorf("marshal standard set refs: %w", err)
	}
	reports, err := json.Marshal(r.ComplianceReports)
	if err != nil {
		return fmt.Errorf("marshal compliance reports: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO code_reviews (id, repository_url, status, standard_sets, compliance_reports, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RepositoryURL, string(r.Status), string(sets), string(reports), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create code review: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCodeReview(ctx context.Context, id string) (*models.CodeReview, error) {
	r := &models.CodeReview{}
	var status, sets, reports string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, repository_url, status, standard_sets, compliance_reports, created_at, updated_at
		FROM code_reviews WHERE id = ?`, id,
	).Scan(&r.ID, &r.RepositoryURL, &status, &sets, &reports, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("code review not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get code review: %w", err)
	}
	if err := unmarshalReviewLists(r, status, sets, reports); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListCodeReviews(ctx context.Context, filter CodeReviewListFilter) ([]*models.CodeReview, error) {
	var rows *sql.Rows
	var err error
	if filter.Status != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, repository_url, status, standard_sets, compliance_reports, created_at, updated_at
			FROM code_reviews WHERE status = ? ORDER BY created_at DESC`, string(filter.Status))
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, repository_url, status, standard_sets, compliance_reports, created_at, updated_at
			FROM code_reviews ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list code reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.CodeReview
	for rows.Next() {
		r := &models.CodeReview{}
		var status, sets, reports string
		if err := rows.Scan(&r.ID, &r.RepositoryURL, &status, &sets, &reports, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan code review: %w", err)
		}
		if err := unmarshalReviewLists(r, status, sets, reports); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateCodeReviewStatus(ctx context.Context, id string, status models.ReviewStatus, reports []models.ComplianceReport) error {
	now := time.Now().UTC()

	var result sql.Result
	var err error
	if reports != nil {
		var data []byte
		data, err = json.Marshal(reports)
		if err != nil {
			return fmt.Errorf("marshal compliance reports: %w", err)
		}
		result, err = s.db.ExecContext(ctx,
			`UPDATE code_reviews SET status=?, compliance_reports=?, updated_at=? WHERE id=?`,
			string(status), string(data), now, id)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE code_reviews SET status=?, updated_at=? WHERE id=?`,
			string(status), now, id)
	}
	if err != nil {
		return fmt.Errorf("update code review status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("code review not found: %s", id)
	}
	return nil
}

func unmarshalReviewLists(r *models.CodeReview, status, sets, reports string) error {
	r.Status = models.ReviewStatus(status)
	if err := json.Unmarshal([]byte(sets), &r.StandardSets); err != nil {
		return fmt.Errorf("unmarshal standard set refs: %w", err)
	}
	if err := json.Unmarshal([]byte(reports), &r.ComplianceReports); err != nil {
		return fmt.Errorf("unmarshal compliance reports: %w", err)
	}
	return nil
}
