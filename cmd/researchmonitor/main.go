package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dukanov/research-monitor/internal/app"
	"github.com/dukanov/research-monitor/internal/config"
	"github.com/dukanov/research-monitor/internal/logging"
	"github.com/dukanov/research-monitor/internal/store"
)

func main() {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "researchmonitor",
		Short:         "Monitor research sources and build an LLM-curated digest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default: $RESEARCH_MONITOR_CONFIG)")

	root.AddCommand(
		newRunCmd(&configPath),
		newStatsCmd(&configPath),
		newListCmd(&configPath),
		newPruneCmd(&configPath),
	)
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	var (
		days    int
		output  string
		debug   bool
		noSlack bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one monitoring pass and write the digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(*configPath)
			if debug {
				cfg.Logging.Level = "debug"
				cfg.Monitoring.SaveDebugData = true
			}

			application, err := app.New(cfg, nil)
			if err != nil {
				return err
			}
			return application.Run(cmd.Context(), app.RunOptions{
				Days:    days,
				Output:  output,
				NoSlack: noSlack,
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 1, "lookback window in days")
	cmd.Flags().StringVar(&output, "output", "", "digest output path (default: <outputDir>/digest_<date>.md)")
	cmd.Flags().BoolVar(&debug, "debug", false, "verbose logging and debug snapshots")
	cmd.Flags().BoolVar(&noSlack, "no-slack", false, "skip the Slack notification")
	return cmd
}

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show seen-item store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			seen, err := openStore(*configPath)
			if err != nil {
				return err
			}
			stats, err := seen.GetStats()
			if err != nil {
				return err
			}
			fmt.Printf("total seen items: %d\n", stats.Total)
			for source, count := range stats.BySource {
				fmt.Printf("  %s: %d\n", source, count)
			}
			return nil
		},
	}
}

func newListCmd(configPath *string) *cobra.Command {
	var (
		source string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent seen-item artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			seen, err := openStore(*configPath)
			if err != nil {
				return err
			}
			artifacts, err := seen.List(source, limit)
			if err != nil {
				return err
			}
			for _, artifact := range artifacts {
				fmt.Printf("%s  %-22s %s\n", artifact.DateSeen, artifact.Source, artifact.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "only artifacts from this source")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum artifacts to list")
	return cmd
}

func newPruneCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove artifacts seen longer ago than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			seen, err := openStore(*configPath)
			if err != nil {
				return err
			}
			removed, err := seen.PruneOld(days)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d artifacts older than %d days\n", removed, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 90, "retention window in days")
	return cmd
}

func openStore(configPath string) (*store.SeenItems, error) {
	cfg := config.Load(configPath)
	logger := logging.New(cfg.Logging.Level)
	return store.New(cfg.Paths.ArtifactsDir, logger.With("component", "store"))
}
