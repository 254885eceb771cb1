package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ids"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/models"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/output"
)

var classificationCmd = &cobra.Command{
	Use:     "classifications",
	Aliases: []string{"classification"},
	Short:   "Manage technology classifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return classificationListRun()
	},
}

var classificationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List classifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return classificationListRun()
	},
}

var classificationAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a classification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return classificationAddRun(args[0])
	},
}

var classificationRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a classification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return classificationRmRun(args[0])
	},
}

func init() {
	classificationCmd.AddCommand(classificationListCmd)
	classificationCmd.AddCommand(classificationAddCmd)
	classificationCmd.AddCommand(classificationRmCmd)
	rootCmd.AddCommand(classificationCmd)
}

func classificationListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	classifications, err := s.ListClassifications(context.Background())
	if err != nil {
		return err
	}

	if len(classifications) == 0 {
		ui.Info("No classifications. Use 'codereview classifications add <name>' to create one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Created"})
	for _, c := range classifications {
		table.Append([]string{c.ID, output.Cyan(c.Name), c.CreatedAt.Format("2006-01-02")})
	}
	table.Render()
	return nil
}

func classificationAddRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	c := &models.Classification{Name: name}
	if err := s.CreateClassification(context.Background(), c); err != nil {
		return err
	}

	ui.Success("Created classification %s (%s)", c.Name, c.ID)
	return nil
}

func classificationRmRun(id string) error {
	if !ids.Valid(id) {
		ui.Error("Invalid id format: %s", id)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	if err := s.DeleteClassification(context.Background(), id); err != nil {
		return err
	}

	ui.Success("Deleted classification %s", id)
	return nil
}
