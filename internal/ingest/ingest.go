// Package ingest populates a standard set's standards from a cloned
// standards repository, classifying each markdown document via the LLM.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/classify"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/llm"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/store"
)

const systemPrompt = `You are a standards analysis expert that helps determine which technology classifications apply to software development standards.`

// Config controls candidate file selection.
type Config struct {
	// TestingMode restricts processing to TestingFiles instead of every
	// markdown document, so integration runs stay cheap.
	TestingMode  bool
	TestingFiles []string
}

// Ingestor replaces a standard set's standards from a repository tree.
type Ingestor struct {
	store store.Store
	llm   llm.Completer
	cfg   Config
}

// New creates an Ingestor.
func New(s store.Store, c llm.Completer, cfg Config) *Ingestor {
	return &Ingestor{store: s, llm: c, cfg: cfg}
}

// Run deletes every existing standard for standardSetID and recreates
// them from the markdown documents under repoPath. Per-file failures are
// logged and skipped; the batch never aborts on a single file.
func (ing *Ingestor) Run(ctx context.Context, standardSetID, repoPath string, known []models.Classification) error {
	if err := ing.store.DeleteStandardsBySet(ctx, standardSetID); err != nil {
		return fmt.Errorf("clear existing standards: %w", err)
	}

	files, err := ing.candidateFiles(repoPath)
	if err != nil {
		return fmt.Errorf("select standard files: %w", err)
	}
	slog.Info("ingesting standards", "standard_set_id", standardSetID, "files", len(files))

	for _, path := range files {
		if err := ing.processFile(ctx, path, repoPath, standardSetID, known); err != nil {
			slog.Error("skipping standard file", "path", path, "error", err)
			continue
		}
	}
	return nil
}

// candidateFiles walks repoPath for documents to ingest. Normally that
// is every *.md file except README.md and CONTRIBUTING.md
// (case-insensitive); in testing mode it is any file whose base name
// (extension stripped) matches the configured allow-list.
func (ing *Ingestor) candidateFiles(repoPath string) ([]string, error) {
	testBases := make(map[string]bool, len(ing.cfg.TestingFiles))
	for _, name := range ing.cfg.TestingFiles {
		testBases[strings.ToLower(stripExt(name))] = true
	}

	var files []string
	err := filepath.WalkDir(repoPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		name := strings.ToLower(d.Name())
		if ing.cfg.TestingMode {
			if testBases[stripExt(name)] {
				files = append(files, path)
			}
			return nil
		}
		if !strings.HasSuffix(name, ".md") || name == "readme.md" || name == "contributing.md" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func (ing *Ingestor) processFile(ctx context.Context, path, repoPath, standardSetID string, known []models.Classification) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read standard: %w", err)
	}

	classificationIDs, err := ing.analyzeStandard(ctx, string(content), known)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(repoPath, path)
	if err != nil {
		rel = path
	}

	st := &models.Standard{
		Text:              string(content),
		RepositoryPath:    rel,
		StandardSetID:     standardSetID,
		ClassificationIDs: classificationIDs,
	}
	if err := ing.store.CreateStandard(ctx, st); err != nil {
		return err
	}
	slog.Debug("ingested standard", "path", rel, "classifications", len(classificationIDs))
	return nil
}

// analyzeStandard asks the LLM which classifications a standard applies
// to. An empty answer means the standard is universal.
func (ing *Ingestor) analyzeStandard(ctx context.Context, content string, known []models.Classification) ([]string, error) {
	names := make([]string, len(known))
	for i, cl := range known {
		names[i] = cl.Name
	}

	resp, err := ing.llm.Complete(ctx, systemPrompt, buildPrompt(content, names))
	if err != nil {
		return nil, fmt.Errorf("analyze standard: %w", err)
	}

	matched := classify.MatchNames(classify.ParseNameList(resp), known)
	ids := make([]string, 0, len(matched))
	for _, cl := range matched {
		ids = append(ids, cl.ID)
	}
	return ids, nil
}

func buildPrompt(content string, names []string) string {
	var sb strings.Builder
	sb.WriteString(`You are a standards analysis expert. Given a standard's content and a list of possible classifications, determine which classifications apply to this standard.

Classifications: `)
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString("\n\nStandard Content:\n")
	sb.WriteString(content)
	sb.WriteString(`

Please analyze the standard and determine which classifications apply. A standard can be "universal" (applies to all codebases) or have specific classifications.

First, determine if this is a universal standard that applies to all codebases regardless of technology.
- A universal standard is one that applies to all codebases regardless of technology, so it should be applied to all codebases.
- Use the title and sub headers of the standard to help determine if it is universal.
- For example, a "security" standard is universal because it applies to all codebases. "Docker" may be universal if it applies to all codebases AND 'Docker' is not in the Classifications list.
- think "does this standard apply to all codebases regardless of technology?", if so, then return an empty list.
If it is universal, return an empty list.
If it is not universal, return a list of relevant classification names from the provided list.

Return your response in a comma-separated list format, or return an empty list for universal standards.
Only return the list, no other text.`)
	return sb.String()
}

func stripExt(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
