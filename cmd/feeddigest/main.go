package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"FeedDigest/internal/app"
	"FeedDigest/internal/config"
	"FeedDigest/internal/domain"
	"FeedDigest/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, diagnose(err))
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var sourceDir string

	cmd := &cobra.Command{
		Use:   "feeddigest [work background...]",
		Short: "Build a weekly news digest from OPML feed subscriptions",
		Long: "feeddigest reads feed subscriptions from OPML files, ranks them against a work background, " +
			"asks a language model for a four-section digest and writes Markdown and JSON reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load().WithOverrides(sourceDir, strings.Join(args, " "))
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.New(cfg.Logging.Level)
			application, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			result, err := application.Run(cmd.Context())
			if err != nil {
				logger.Error("run failed", "error", err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "narrative report: %s\nstructured report: %s\n",
				result.NarrativePath, result.StructuredPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "directory containing .opml files (env FEED_SOURCE_DIR)")
	return cmd
}

func diagnose(err error) string {
	var noSource *domain.NoFeedSourceError
	switch {
	case errors.As(err, &noSource):
		return fmt.Sprintf("error: %v; put at least one .opml file into %s or pass --source-dir", err, noSource.Dir)
	case errors.Is(err, domain.ErrMissingCredentials):
		return fmt.Sprintf("error: %v; set LLM_API_KEY and LLM_MODEL in the environment or .env", err)
	default:
		return fmt.Sprintf("error: %v", err)
	}
}
