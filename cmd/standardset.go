package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ids"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/output"
)

var standardSetCmd = &cobra.Command{
	Use:     "standard-sets",
	Aliases: []string{"standard-set"},
	Short:   "Inspect standard sets and their ingested standards",
	RunE: func(cmd *cobra.Command, args []string) error {
		return standardSetListRun()
	},
}

var standardSetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List standard sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return standardSetListRun()
	},
}

var standardSetShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a standard set with its standards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return standardSetShowRun(args[0])
	},
}

func init() {
	standardSetCmd.AddCommand(standardSetListCmd)
	standardSetCmd.AddCommand(standardSetShowCmd)
	rootCmd.AddCommand(standardSetCmd)
}

func standardSetListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	sets, err := s.ListStandardSets(ctx)
	if err != nil {
		return err
	}

	if len(sets) == 0 {
		ui.Info("No standard sets. Create one via POST /api/v1/standard-sets.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Repository", "Standards"})
	for _, set := range sets {
		standards, _ := s.ListStandardsBySet(ctx, set.ID)
		table.Append([]string{
			set.ID,
			output.Cyan(set.Name),
			set.RepositoryURL,
			strconv.Itoa(len(standards)),
		})
	}
	table.Render()
	return nil
}

func standardSetShowRun(id string) error {
	if !ids.Valid(id) {
		ui.Error("Invalid id format: %s", id)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	set, err := s.GetStandardSet(ctx, id)
	if err != nil {
		return err
	}

	ui.Info("%s (%s)", output.Cyan(set.Name), set.ID)
	fmt.Fprintf(ui.Out, "  Repository: %s\n", set.RepositoryURL)
	if set.CustomPrompt != "" {
		fmt.Fprintf(ui.Out, "  Custom prompt: %d chars\n", len(set.CustomPrompt))
	}
	fmt.Fprintln(ui.Out)

	standards, err := s.ListStandardsBySet(ctx, id)
	if err != nil {
		return err
	}
	if len(standards) == 0 {
		ui.Info("No standards ingested yet.")
		return nil
	}

	table := ui.Table([]string{"ID", "Source", "Scope"})
	for _, st := range standards {
		scope := "universal"
		if !st.IsUniversal() {
			scope = fmt.Sprintf("%d classifications", len(st.ClassificationIDs))
		}
		table.Append([]string{st.ID, st.RepositoryPath, scope})
	}
	table.Render()
	return nil
}
