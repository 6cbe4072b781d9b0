package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"aidigest/internal/app"
	"aidigest/internal/config"
	"aidigest/internal/domain"
	"aidigest/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "aidigest",
		Short:        "Daily Telegram channel digest pipeline",
		SilenceUsage: true,
	}

	var date string
	var force bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full pipeline for one window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				startAt, endAt, err := resolveWindow(a.Config, date)
				if err != nil {
					return err
				}
				stats, err := a.Pipeline.Run(ctx, startAt, endAt, force)
				if err != nil {
					return err
				}
				if stats.Skipped {
					fmt.Println("window already published, nothing to do")
					return nil
				}
				fmt.Printf("run %s: ingested %d new / %d updated, summarized %d, embedded %d, %d clusters, %d message(s) published in %s\n",
					stats.RunID, stats.Ingest.New, stats.Ingest.Updated,
					stats.Summarize.Summarized, stats.Embed.Embedded,
					stats.Dedup.Clusters, stats.Published,
					stats.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
	runCmd.Flags().StringVar(&date, "date", "", "window end date (YYYY-MM-DD), defaults to the latest closed window")
	runCmd.Flags().BoolVar(&force, "force", false, "republish even if the window digest already went out")

	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Build and send the digest for one window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				window, err := stageWindow(ctx, a, date)
				if err != nil {
					return err
				}
				sent, err := a.Pipeline.Publish(ctx, window, force)
				if errors.Is(err, usecase.ErrAlreadyPublished) {
					fmt.Println("digest already published, use --force to resend")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("published %d message(s)\n", sent)
				return nil
			})
		},
	}
	publishCmd.Flags().StringVar(&date, "date", "", "window end date (YYYY-MM-DD)")
	publishCmd.Flags().BoolVar(&force, "force", false, "bypass the already-published check")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the daily scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return a.Scheduler.Run(ctx)
			})
		},
	}

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				cfg := a.Config
				fmt.Printf("database: %s\n", cfg.Database.Path)
				fmt.Printf("window: start hour %02d:00 %s\n", cfg.Window.StartHour, cfg.Window.Timezone)
				fmt.Printf("schedule: %02d:%02d daily\n", cfg.Scheduler.RunAtHour, cfg.Scheduler.RunAtMinute)
				fmt.Printf("llm: %s (model %s, embed %s, dim %d)\n",
					cfg.LLM.Endpoint, cfg.LLM.Model, cfg.LLM.EmbedModel, cfg.LLM.EmbedDim)
				if err := a.Store.Ping(); err != nil {
					return fmt.Errorf("database check: %w", err)
				}
				fmt.Println("database: ok")
				if cfg.Telegram.BotToken == "" {
					fmt.Println("warning: bot token is not set, publishing will fail")
				}
				return nil
			})
		},
	}

	root.AddCommand(runCmd, publishCmd, scheduleCmd, doctorCmd, newChannelsCmd())
	root.AddCommand(
		stageCmd("ingest", "Fetch window posts from active channels", &date,
			func(ctx context.Context, a *app.App, window domain.Window) (string, error) {
				stats, err := a.Pipeline.Ingest(ctx, window)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("channels %d, fetched %d, new %d, updated %d, errors %d",
					stats.Channels, stats.Fetched, stats.New, stats.Updated, stats.Errors), nil
			}),
		stageCmd("summarize", "Summarize window posts", &date,
			func(ctx context.Context, a *app.App, window domain.Window) (string, error) {
				stats, err := a.Pipeline.Summarize(ctx, window)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("summarized %d, copied %d, skipped %d, errors %d",
					stats.Summarized, stats.CopiedExact, stats.Skipped, stats.Errors), nil
			}),
		stageCmd("embed", "Embed window posts", &date,
			func(ctx context.Context, a *app.App, window domain.Window) (string, error) {
				stats, err := a.Pipeline.Embed(ctx, window)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("embedded %d, skipped %d, failed %d",
					stats.Embedded, stats.Skipped, stats.Failed), nil
			}),
		stageCmd("dedup", "Rebuild semantic clusters for the window", &date,
			func(ctx context.Context, a *app.App, window domain.Window) (string, error) {
				stats, err := a.Pipeline.Dedup(ctx, window)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("posts %d, clusters %d, duplicates %d",
					stats.Posts, stats.Clusters, stats.Duplicates), nil
			}),
	)
	return root
}

func stageCmd(use, short string, date *string, run func(context.Context, *app.App, domain.Window) (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				window, err := stageWindow(ctx, a, *date)
				if err != nil {
					return err
				}
				result, err := run(ctx, a, window)
				if err != nil {
					return err
				}
				fmt.Println(result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(date, "date", "", "window end date (YYYY-MM-DD)")
	return cmd
}

// withApp builds the application, runs fn under a signal-aware context
// and tears everything down.
func withApp(fn func(context.Context, *app.App) error) error {
	a, err := app.New(config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}

// resolveWindow picks the explicit date window or the most recently
// closed one.
func resolveWindow(cfg config.Config, date string) (time.Time, time.Time, error) {
	loc := cfg.Window.Location()
	if date == "" {
		startAt, endAt := usecase.ComputeWindow(time.Now(), loc, cfg.Window.StartHour)
		return startAt, endAt, nil
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --date %q: %w", date, err)
	}
	startAt, endAt := usecase.WindowForDate(day.Year(), day.Month(), day.Day(), loc, cfg.Window.StartHour)
	return startAt, endAt, nil
}

func stageWindow(ctx context.Context, a *app.App, date string) (domain.Window, error) {
	startAt, endAt, err := resolveWindow(a.Config, date)
	if err != nil {
		return domain.Window{}, err
	}
	return a.Pipeline.StageWindow(ctx, startAt, endAt)
}
