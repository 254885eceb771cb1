// Package classify determines which technology classifications apply to
// a codebase by asking the LLM once and validating its answer against
// the known classification list.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/llm"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
)

const systemPrompt = `You are a technology stack analysis expert.
Analyze codebases to determine which technologies and programming languages are used.
Consider all aspects including code files, configuration files, and dependencies.`

// Codebase asks the LLM which of the known classifications match the
// flattened codebase text and returns the matching classification ids.
// An empty or fully-unrecognized answer yields an empty result, not an
// error.
func Codebase(ctx context.Context, c llm.Completer, codebase string, known []models.Classification) ([]string, error) {
	if len(known) == 0 {
		return nil, nil
	}

	names := make([]string, len(known))
	for i, cl := range known {
		names[i] = cl.Name
	}

	user := buildPrompt(codebase, names)
	resp, err := c.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("classify codebase: %w", err)
	}

	matched := MatchNames(ParseNameList(resp), known)
	slog.Info("classified codebase", "matched", len(matched), "known", len(known))

	out := make([]string, len(matched))
	for i, cl := range matched {
		out[i] = cl.ID
	}
	return out, nil
}

func buildPrompt(codebase string, names []string) string {
	var sb strings.Builder
	sb.WriteString(`Analyze this codebase and identify which technology classifications are used from the list below. Provide your answer as a comma-separated list of ONLY the matching technology categories (e.g., "Python, Node.js"). Return ONLY the list - no explanations or additional text. Return an empty string if no matches are found.

Available Technology Classifications:
`)
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString("\n\nCodebase Files and Content:\n")
	sb.WriteString(codebase)
	sb.WriteString(`

Key areas to consider:
1. Programming languages
2. Frameworks & libraries
3. Build tools & package managers
4. Config files
5. Infrastructure & deployment

Example outputs:
- "Python, React, Docker"
- "Java, Spring Boot, Maven"
- "" (empty string if no matches)
`)
	return sb.String()
}

// ParseNameList extracts candidate classification names from raw LLM
// output. Models sometimes prepend commentary, so the last line
// containing a comma is taken as the answer; when no line has a comma
// the last non-empty line is used (single-name answers). Tokens are
// trimmed of whitespace and enclosing quotes.
func ParseNameList(resp string) []string {
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return nil
	}

	lines := strings.Split(resp, "\n")
	candidate := ""
	for _, line := range lines {
		if strings.Contains(line, ",") {
			candidate = line
		}
	}
	if candidate == "" {
		for _, line := range lines {
			if strings.TrimSpace(line) != "" {
				candidate = line
			}
		}
	}

	var names []string
	for _, token := range strings.Split(candidate, ",") {
		token = strings.TrimSpace(token)
		token = strings.Trim(token, `"'`+"`")
		token = strings.TrimSpace(token)
		if token != "" {
			names = append(names, token)
		}
	}
	return names
}

// MatchNames resolves candidate names against the known classifications,
// matching case-insensitively and silently dropping unrecognized names.
// Result order follows the known list so repeated runs are stable.
func MatchNames(candidates []string, known []models.Classification) []models.Classification {
	wanted := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		wanted[strings.ToLower(name)] = true
	}

	var out []models.Classification
	for _, cl := range known {
		if wanted[strings.ToLower(cl.Name)] {
			out = append(out, cl)
		}
	}
	return out
}
