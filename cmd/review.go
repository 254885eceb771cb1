package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ids"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/output"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/store"
)

var reviewStatus string

var reviewCmd = &cobra.Command{
	Use:     "reviews",
	Aliases: []string{"review"},
	Short:   "Inspect code reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List code reviews, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a code review and its compliance reports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewShowRun(args[0])
	},
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewStatus, "status", "", "Filter by status: started, in_progress, completed, failed")
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	rootCmd.AddCommand(reviewCmd)
}

func reviewListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	filter := store.CodeReviewListFilter{}
	if reviewStatus != "" {
		status := models.ReviewStatus(reviewStatus)
		if !status.Valid() {
			return fmt.Errorf("invalid status: %s", reviewStatus)
		}
		filter.Status = status
	}

	reviews, err := s.ListCodeReviews(context.Background(), filter)
	if err != nil {
		return err
	}

	if len(reviews) == 0 {
		ui.Info("No code reviews found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Repository", "Status", "Sets", "Reports", "Created"})
	for _, r := range reviews {
		names := make([]string, len(r.StandardSets))
		for i, ref := range r.StandardSets {
			names[i] = ref.Name
		}
		table.Append([]string{
			r.ID,
			r.RepositoryURL,
			output.StatusColor(string(r.Status)),
			strings.Join(names, ", "),
			fmt.Sprintf("%d", len(r.ComplianceReports)),
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}

func reviewShowRun(id string) error {
	if !ids.Valid(id) {
		ui.Error("Invalid id format: %s", id)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	r, err := s.GetCodeReview(context.Background(), id)
	if err != nil {
		return err
	}

	ui.Info("Review %s", r.ID)
	fmt.Fprintf(ui.Out, "  Repository: %s\n", r.RepositoryURL)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(r.Status)))
	fmt.Fprintf(ui.Out, "  Created:    %s\n", r.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintln(ui.Out)

	if len(r.ComplianceReports) == 0 {
		ui.Info("No compliance reports yet.")
		return nil
	}

	table := ui.Table([]string{"Standard Set", "Verdicts", "File"})
	for _, rep := range r.ComplianceReports {
		table.Append([]string{
			output.Cyan(rep.StandardSetName),
			verdictSummary(rep.Report),
			rep.File,
		})
	}
	table.Render()
	return nil
}

// verdictSummary counts the per-standard verdicts in a report body.
func verdictSummary(report string) string {
	counts := map[string]int{}
	for _, v := range []string{"Yes", "No", "Partially"} {
		counts[v] = strings.Count(report, "**"+v+"**")
	}
	parts := make([]string, 0, 3)
	for _, v := range []string{"Yes", "Partially", "No"} {
		if counts[v] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", output.VerdictColor(v), counts[v]))
		}
	}
	if len(parts) == 0 {
		return "n/a"
	}
	return strings.Join(parts, "  ")
}
