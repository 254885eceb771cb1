package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/api"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/compliance"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/gitrepo"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/ingest"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/llm"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/review"
	"github.com/DEFRA/defra-ai-codereview-api-sub000/internal/runner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the code review REST API server",
	Long: `Start the HTTP server exposing the code review API.
By default it listens on port 8080. Use --port to change it.
Reviews and standard set ingestion run as background jobs inside
the server process; in-flight jobs are drained on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func serveRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	dataDir := viper.GetString("data_dir")
	if err := os.MkdirAll(filepath.Join(dataDir, "codebase"), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	client := llm.NewClient(
		viper.GetString("anthropic.api_key"),
		viper.GetString("anthropic.model"),
		viper.GetInt64("anthropic.max_tokens"),
	)
	cloner := gitrepo.NewCloner()

	interval := viper.GetDuration("compliance.call_interval")
	if interval <= 0 {
		interval = compliance.DefaultCallInterval
	}
	checker := compliance.NewChecker(client, compliance.Config{
		CallInterval: interval,
		TestingMode:  viper.GetBool("llm_testing.enabled"),
		FilterPaths:  viper.GetStringSlice("llm_testing.filter_paths"),
	})
	pipeline := review.NewPipeline(s, cloner, client, checker, dataDir)

	ingestor := ingest.New(s, client, ingest.Config{
		TestingMode:  viper.GetBool("llm_testing.enabled"),
		TestingFiles: viper.GetStringSlice("llm_testing.standards_files"),
	})
	ingestion := review.NewSetIngestion(s, cloner, ingestor)

	jobs := runner.New()
	srv := api.NewServer(s, jobs, pipeline, ingestion)

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals()...)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}

	// Let in-flight reviews and ingestions finish.
	jobs.Wait()
	return nil
}
