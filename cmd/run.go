package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/starreach/starreach-cli/internal/config"
	"github.com/starreach/starreach-cli/internal/pipeline"
	"github.com/starreach/starreach-cli/internal/render"
	"github.com/starreach/starreach-cli/internal/store"
	"github.com/starreach/starreach-cli/pkg/github"
)

var (
	runLimit      int
	runWorkers    int
	runMaxRetries int
	runStorePath  string
	runDriver     string
)

var runCmd = &cobra.Command{
	Use:   "run <repo-url>",
	Short: "Enrich a repository's stargazers",
	Long:  "Pages through the repository's stargazers, enriches each profile by scraping its website and GitHub page, and appends new rows to the store. Ctrl-C drains: in-flight stargazers finish and buffered results are flushed before exit.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		repo, err := github.ParseRepoURL(args[0])
		if err != nil {
			return eris.Wrapf(err, "parse repository %q", args[0])
		}

		applyRunFlags(cfg)

		if cfg.GitHub.Token == "" {
			zap.L().Warn("no GitHub token configured, expect a low rate limit")
		}

		st, err := initStore(cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		client := github.NewClient(cfg.GitHub.Token,
			github.WithBaseURL(cfg.GitHub.BaseURL),
			github.WithPerPage(cfg.GitHub.PerPage),
			github.WithRequestsPerSecond(cfg.GitHub.RequestsPerSecond),
		)

		coordinator := pipeline.New(pipeline.Options{
			Workers:        cfg.Pipeline.Workers,
			QueueCapacity:  cfg.Pipeline.QueueCapacity,
			MaxRetries:     cfg.Pipeline.MaxRetries,
			FlushThreshold: cfg.Pipeline.FlushThreshold,
			FlushInterval:  cfg.Pipeline.FlushInterval(),
			PageRetryWait:  cfg.Pipeline.PageRetryWait(),
			RenderTimeout:  cfg.Render.Timeout(),
			Limit:          cfg.Pipeline.Limit,
		}, client, initRenderer(cfg.Render), st)

		summary, err := coordinator.Run(ctx, repo)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("repo", repo.String()),
			zap.Int64("processed", summary.Processed),
			zap.Int64("abandoned", summary.Abandoned),
			zap.Int64("skipped", summary.Skipped),
			zap.Int64("flushed", summary.Flushed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// initStore builds the configured store driver.
func initStore(sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "xlsx", "":
		return store.NewXLSX(sc.Path), nil
	case "sqlite":
		st, err := store.NewSQLite(sc.Path)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", sc.Driver)
	}
}

// initRenderer builds the render chain: a plain HTTP fetch first, with a
// headless browser fallback for pages that need JavaScript.
func initRenderer(rc config.RenderConfig) render.Renderer {
	renderers := []render.Renderer{render.NewLocal(rc.Timeout())}
	if rc.BrowserEnabled {
		renderers = append(renderers, render.NewBrowser(rc.Timeout()))
	}
	return render.NewChain(renderers...)
}

// applyRunFlags overlays explicit command-line flags onto the loaded config.
func applyRunFlags(c *config.Config) {
	if runLimit > 0 {
		c.Pipeline.Limit = runLimit
	}
	if runWorkers > 0 {
		c.Pipeline.Workers = runWorkers
	}
	if runMaxRetries > 0 {
		c.Pipeline.MaxRetries = runMaxRetries
	}
	if runStorePath != "" {
		c.Store.Path = runStorePath
	}
	if runDriver != "" {
		c.Store.Driver = runDriver
	}
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "stop after enqueueing this many new stargazers (0 = unlimited)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "worker pool size (overrides config)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "total attempts per stargazer (overrides config)")
	runCmd.Flags().StringVar(&runStorePath, "store", "", "store file path (overrides config)")
	runCmd.Flags().StringVar(&runDriver, "driver", "", "store driver: xlsx or sqlite (overrides config)")
	rootCmd.AddCommand(runCmd)
}
