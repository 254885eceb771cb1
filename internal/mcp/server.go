// Package mcp exposes the code review data layer as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ids"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/runner"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/store"
)

// ReviewJob processes one code review in the background.
type ReviewJob interface {
	Run(ctx context.Context, reviewID string) error
}

// Server wraps the code review data layer and exposes it as MCP tools.
type Server struct {
	store   store.Store
	runner  *runner.Runner
	reviews ReviewJob
}

// NewServer creates the MCP server wrapper. reviews may be nil, in which
// case the create tool reports the service as read-only.
func NewServer(s store.Store, r *runner.Runner, reviews ReviewJob) *Server {
	return &Server{
		store:   s,
		runner:  r,
		reviews: reviews,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("codereview", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listClassificationsTool())
	srv.AddTool(s.listStandardSetsTool())
	srv.AddTool(s.listReviewsTool())
	srv.AddTool(s.getReviewTool())
	srv.AddTool(s.createReviewTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// codereview_list_classifications
func (s *Server) listClassificationsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("codereview_list_classifications",
		mcp.WithDescription("List all technology classifications used to scope standards. Returns a JSON array with id and name."),
	)
	return tool, s.handleListClassifications
}

func (s *Server) handleListClassifications(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	classifications, err := s.store.ListClassifications(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list classifications: %v", err)), nil
	}

	type classificationOut struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	out := make([]classificationOut, len(classifications))
	for i, c := range classifications {
		out[i] = classificationOut{ID: c.ID, Name: c.Name}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal classifications: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// codereview_list_standard_sets
func (s *Server) listStandardSetsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("codereview_list_standard_sets",
		mcp.WithDescription("List all standard sets. Returns a JSON array with id, name, repository_url, and the number of ingested standards. Use the ids when creating a code review."),
	)
	return tool, s.handleListStandardSets
}

func (s *Server) handleListStandardSets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sets, err := s.store.ListStandardSets(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list standard sets: %v", err)), nil
	}

	type setOut struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		RepositoryURL string `json:"repository_url"`
		StandardCount int    `json:"standard_count"`
	}

	out := make([]setOut, len(sets))
	for i, set := range sets {
		standards, _ := s.store.ListStandardsBySet(ctx, set.ID)
		out[i] = setOut{
			ID:            set.ID,
			Name:          set.Name,
			RepositoryURL: set.RepositoryURL,
			StandardCount: len(standards),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal standard sets: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// codereview_list_reviews
func (s *Server) listReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("codereview_list_reviews",
		mcp.WithDescription("List code reviews, newest first, optionally filtered by status. Returns a JSON array with id, repository_url, status, and standard set names. Report content is omitted; use codereview_get_review for full reports."),
		mcp.WithString("status", mcp.Description("Status filter: started, in_progress, completed, failed")),
	)
	return tool, s.handleListReviews
}

func (s *Server) handleListReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.CodeReviewListFilter{}
	if raw := request.GetString("status", ""); raw != "" {
		status := models.ReviewStatus(raw)
		if !status.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s (must be started, in_progress, completed, or failed)", raw)), nil
		}
		filter.Status = status
	}

	reviews, err := s.store.ListCodeReviews(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reviews: %v", err)), nil
	}

	type reviewOut struct {
		ID            string   `json:"id"`
		RepositoryURL string   `json:"repository_url"`
		Status        string   `json:"status"`
		StandardSets  []string `json:"standard_sets"`
		ReportCount   int      `json:"report_count"`
		CreatedAt     string   `json:"created_at"`
		UpdatedAt     string   `json:"updated_at"`
	}

	out := make([]reviewOut, len(reviews))
	for i, r := range reviews {
		names := make([]string, len(r.StandardSets))
		for j, ref := range r.StandardSets {
			names[j] = ref.Name
		}
		out[i] = reviewOut{
			ID:            r.ID,
			RepositoryURL: r.RepositoryURL,
			Status:        string(r.Status),
			StandardSets:  names,
			ReportCount:   len(r.ComplianceReports),
			CreatedAt:     r.CreatedAt.Format(time.RFC3339),
			UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal reviews: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// codereview_get_review
func (s *Server) getReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("codereview_get_review",
		mcp.WithDescription("Get one code review by id, including the full markdown compliance reports."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Code review id (24-character hex)")),
	)
	return tool, s.handleGetReview
}

func (s *Server) handleGetReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviewID, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}
	if !ids.Valid(reviewID) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid review id format: %s", reviewID)), nil
	}

	review, err := s.store.GetCodeReview(ctx, reviewID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review not found: %s", reviewID)), nil
	}

	data, err := json.Marshal(review)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal review: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// codereview_create_review
func (s *Server) createReviewTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("codereview_create_review",
		mcp.WithDescription("Start a code review of a git repository against one or more standard sets. The review runs in the background; poll codereview_get_review for the result."),
		mcp.WithString("repository_url", mcp.Required(), mcp.Description("Git URL of the repository to review")),
		mcp.WithString("standard_set_ids", mcp.Required(), mcp.Description("Comma-separated standard set ids")),
	)
	return tool, s.handleCreateReview
}

func (s *Server) handleCreateReview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.reviews == nil {
		return mcp.NewToolResultError("review processing is not available on this server"), nil
	}

	repoURL, err := request.RequireString("repository_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repository_url"), nil
	}
	rawIDs, err := request.RequireString("standard_set_ids")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: standard_set_ids"), nil
	}

	var refs []models.StandardSetRef
	for _, setID := range splitIDs(rawIDs) {
		if !ids.Valid(setID) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid standard set id format: %s", setID)), nil
		}
		set, err := s.store.GetStandardSet(ctx, setID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("standard set not found: %s", setID)), nil
		}
		refs = append(refs, models.StandardSetRef{ID: set.ID, Name: set.Name})
	}
	if len(refs) == 0 {
		return mcp.NewToolResultError("standard_set_ids must name at least one standard set"), nil
	}

	review := &models.CodeReview{
		RepositoryURL:     repoURL,
		Status:            models.ReviewStatusStarted,
		StandardSets:      refs,
		ComplianceReports: []models.ComplianceReport{},
	}
	if err := s.store.CreateCodeReview(ctx, review); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create review: %v", err)), nil
	}

	reviewID := review.ID
	jobID := s.runner.Submit("code-review", func(ctx context.Context) {
		_ = s.reviews.Run(ctx, reviewID)
	})

	result := map[string]any{
		"review_id": review.ID,
		"status":    string(review.Status),
		"job_id":    jobID,
	}
	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// splitIDs splits a comma-separated id list, dropping empty entries.
func splitIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
