// Package compliance produces per-standard-set compliance reports by
// asking the LLM for a verdict on every applicable standard.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/llm"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
)

const systemPrompt = `You are a code compliance analysis expert.
Analyze code against compliance standards.
Determine if code meets each standard.
Provide detailed recommendations for non-compliant areas.
Consider the codebase as a whole when evaluating compliance.`

// DefaultCallInterval is the fixed pause between LLM calls. It is rate
// limiting, not retry backoff.
const DefaultCallInterval = 10 * time.Second

// Config controls checker behavior.
type Config struct {
	// CallInterval is the pause between consecutive LLM calls.
	CallInterval time.Duration
	// TestingMode pre-filters standards to those whose repository path
	// contains one of FilterPaths; others are dropped from the run only,
	// not from storage.
	TestingMode bool
	FilterPaths []string
}

// Checker runs compliance analysis for one standard set at a time.
type Checker struct {
	llm llm.Completer
	cfg Config

	// sleep is replaceable in tests.
	sleep func(time.Duration)
	// now is replaceable in tests.
	now func() time.Time
}

// NewChecker creates a Checker.
func NewChecker(c llm.Completer, cfg Config) *Checker {
	if cfg.CallInterval == 0 {
		cfg.CallInterval = DefaultCallInterval
	}
	return &Checker{
		llm:   c,
		cfg:   cfg,
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Request describes one standard set's compliance check.
type Request struct {
	// CodebaseFile is the flattened codebase; the report file is written
	// next to it.
	CodebaseFile           string
	Standards              []*models.Standard
	ReviewID               string
	StandardSetName        string
	MatchedClassifications []models.Classification
}

// Check analyzes the codebase against every standard in input order and
// writes the assembled markdown report to
// <review_id>-<standard_set_name>.md alongside the codebase file. Any
// failure aborts the whole set; there are no partial reports.
func (c *Checker) Check(ctx context.Context, req Request) (string, string, error) {
	codebase, err := os.ReadFile(req.CodebaseFile)
	if err != nil {
		return "", "", fmt.Errorf("read codebase file: %w", err)
	}

	standards := req.Standards
	if c.cfg.TestingMode {
		standards = filterByPath(standards, c.cfg.FilterPaths)
	}

	var sections []string
	for i, st := range standards {
		if i > 0 {
			c.sleep(c.cfg.CallInterval)
		}

		slog.Debug("checking standard", "review_id", req.ReviewID, "path", st.RepositoryPath)
		section, err := c.llm.Complete(ctx, systemPrompt, buildPrompt(st, string(codebase)))
		if err != nil {
			return "", "", fmt.Errorf("check standard %s: %w", st.RepositoryPath, err)
		}
		sections = append(sections, section)
	}

	report := c.assembleReport(req, sections)

	path := filepath.Join(filepath.Dir(req.CodebaseFile), fmt.Sprintf("%s-%s.md", req.ReviewID, req.StandardSetName))
	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		return "", "", fmt.Errorf("write compliance report: %w", err)
	}

	slog.Info("compliance report written", "review_id", req.ReviewID, "standard_set", req.StandardSetName, "standards", len(standards))
	return path, report, nil
}

func (c *Checker) assembleReport(req Request, sections []string) string {
	names := "None"
	if len(req.MatchedClassifications) > 0 {
		parts := make([]string, len(req.MatchedClassifications))
		for i, cl := range req.MatchedClassifications {
			parts[i] = cl.Name
		}
		names = strings.Join(parts, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Compliance Report: %s\n\n", req.StandardSetName)
	fmt.Fprintf(&sb, "Date: %s\n\n", c.now().Format("2 January 2006 15:04"))
	fmt.Fprintf(&sb, "Matched Classifications: %s\n\n", names)
	sb.WriteString(strings.Join(sections, "\n\n"))
	sb.WriteString("\n\n## Specific Recommendations\n")
	return sb.String()
}

func buildPrompt(st *models.Standard, codebase string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Given the standard below (id: %s):\n%s\n\n", st.ID, st.Text)
	sb.WriteString("Compare the entire codebase of the submitted repository below, to assess how well the relevant standard is adhered to:\n")
	sb.WriteString(codebase)
	sb.WriteString(`

For this standard:
- Determine if the codebase as a whole is compliant (Yes/No/Partially)
- List specific files/sections in the codebase that are relevant to the standard (if any)
- If non-compliant, provide concise recommendations - 1-2 sentences
- Consider dependencies and interactions between different parts of the code

Generate an informative but concise compliance section in the format below (Replace all text in [brackets] with actual content - don't leave the square brackets in the final output):

Replace the <span style="color: [COLOUR]"> with the appropriate hash code of the colour for the compliance status detailed below.
Yes = #00703c, No = #d4351c, Partially = #1d70b8

## [Standard Category]

Compliant: <span style="color: [COLOUR]">**[Yes/No/Partially]**</span>

Relevant Files/Sections:
- [file/path/1]
- [file/path/2]

[Describe how the codebase implements or fails to implement this standard - keep this informative and concise]
[If partially compliant or non-compliant, explain specific issues - keep this informative and concise]
`)
	return sb.String()
}

func filterByPath(standards []*models.Standard, substrings []string) []*models.Standard {
	var out []*models.Standard
	for _, st := range standards {
		for _, sub := range substrings {
			if sub != "" && strings.Contains(st.RepositoryPath, sub) {
				out = append(out, st)
				break
			}
		}
	}
	return out
}
