package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/compliance"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/gitrepo"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/llm"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/mcp"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/review"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/runner"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This allows Claude Code to query and start code reviews natively.
Configure in Claude Code with:

  {
    "mcpServers": {
      "codereview": { "command": "codereview", "args": ["mcp"] }
    }
  }

Available tools: codereview_list_classifications,
codereview_list_standard_sets, codereview_list_reviews,
codereview_get_review, codereview_create_review`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		client := llm.NewClient(
			viper.GetString("anthropic.api_key"),
			viper.GetString("anthropic.model"),
			viper.GetInt64("anthropic.max_tokens"),
		)
		interval := viper.GetDuration("compliance.call_interval")
		if interval <= 0 {
			interval = compliance.DefaultCallInterval
		}
		checker := compliance.NewChecker(client, compliance.Config{
			CallInterval: interval,
			TestingMode:  viper.GetBool("llm_testing.enabled"),
			FilterPaths:  viper.GetStringSlice("llm_testing.filter_paths"),
		})
		pipeline := review.NewPipeline(s, gitrepo.NewCloner(), client, checker, viper.GetString("data_dir"))

		jobs := runner.New()
		srv := mcp.NewServer(s, jobs, pipeline)

		err = srv.ServeStdio(cmd.Context())
		jobs.Wait()
		return err
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
