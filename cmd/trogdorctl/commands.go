package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trogdorcult/burninator/app/repository"
	"github.com/trogdorcult/burninator/internal/pkg/database"
	"github.com/trogdorcult/burninator/internal/pkg/ingestion"
	"github.com/trogdorcult/burninator/internal/pkg/jobqueue"
	"github.com/trogdorcult/burninator/internal/pkg/leaderboard"
)

// Snapshotter writes leaderboard snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) (leaderboard.SnapshotResult, error)
}

// Puller runs one pull-mode ingestion pass.
type Puller interface {
	RunPull(ctx context.Context, src ingestion.Source, opts ingestion.PullOptions) (ingestion.Summary, error)
}

type TableChecker interface {
	HasTable(name string) bool
}

type QueueStats interface {
	Stats(ctx context.Context) (jobqueue.Stats, error)
}

// Runtime is what the commands operate on.
type Runtime struct {
	Pipeline    Puller
	Source      ingestion.Source
	Pull        ingestion.PullOptions
	Leaderboard Snapshotter
	Accounts    repository.AccountRepository
	Tables      TableChecker
	Jobs        QueueStats
}

type Loader func(ctx context.Context) (*Runtime, error)

var errDrift = errors.New("point totals drifted from mention sums")

// NewRootCommand builds the CLI. load is called lazily by each subcommand.
func NewRootCommand(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:           "trogdorctl",
		Short:         "Operate the Cult of Trogdor backend",
		Long:          "trogdorctl runs mention pulls, leaderboard snapshots and consistency checks against the configured database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newFetchMentionsCommand(load),
		newSnapshotCommand(load),
		newReconcileCommand(load),
		newVerifyDBCommand(load),
		newJobsCommand(load),
	)
	return root
}

func newFetchMentionsCommand(load Loader) *cobra.Command {
	var (
		handle   string
		asJSON   bool
		maxPages int
	)
	cmd := &cobra.Command{
		Use:   "fetch-mentions",
		Short: "Run one mention pull and print its counters",
		Long: `Fetch every mention of the tracked account since the newest stored
mention, score the new ones and credit their owners. Safe to run next to the
webhook and the scheduled poll: already processed mentions are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := load(cmd.Context())
			if err != nil {
				return err
			}
			opts := rt.Pull
			if handle != "" {
				opts.Handle = handle
			}
			if maxPages > 0 {
				opts.MaxPages = maxPages
			}
			summary, err := rt.Pipeline.RunPull(cmd.Context(), rt.Source, opts)
			if asJSON {
				if jErr := writeJSON(cmd.OutOrStdout(), summary); jErr != nil {
					return jErr
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d processed=%d skipped=%d errors=%d retried=%d\n",
					summary.Fetched, summary.Processed, summary.Skipped, summary.Errors, summary.Retried)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "", "Tracked handle, defaults to TWITTER_TRACKED_ACCOUNT")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Maximum result pages to fetch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func newSnapshotCommand(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Write leaderboard snapshots for every period",
		Long:  "Persist the current ranking of each period into leaderboard_snapshots and refresh accounts.current_rank.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := load(cmd.Context())
			if err != nil {
				return err
			}
			res, err := rt.Leaderboard.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range leaderboard.Periods {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %d rows\n", p, res[p])
			}
			return nil
		},
	}
}

func newReconcileCommand(load Loader) *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check that point totals equal the sum of mention points",
		Long: `List every account whose total_points differs from the sum of
points_awarded over its mentions. With --fix the totals are recomputed from
the mentions. Exits non-zero when drift is found and not fixed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := load(cmd.Context())
			if err != nil {
				return err
			}
			drift, err := rt.Accounts.PointDrift(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(drift) == 0 {
				fmt.Fprintln(out, "all point totals match their mentions")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tWALLET\tTOTAL\tMENTIONS")
			for _, d := range drift {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", d.AccountID, d.WalletAddress, d.TotalPoints, d.MentionPoints)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if !fix {
				return fmt.Errorf("%w: %d accounts", errDrift, len(drift))
			}
			for _, d := range drift {
				if err := rt.Accounts.RepairPoints(cmd.Context(), d.AccountID); err != nil {
					return fmt.Errorf("repair account %d: %w", d.AccountID, err)
				}
			}
			fmt.Fprintf(out, "repaired %d accounts\n", len(drift))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Recompute drifted totals from mentions")
	return cmd
}

func newVerifyDBCommand(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-db",
		Short: "Check that every application table exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := load(cmd.Context())
			if err != nil {
				return err
			}
			var missing []string
			for _, table := range database.Tables {
				status := "ok"
				if !rt.Tables.HasTable(table) {
					status = "MISSING"
					missing = append(missing, table)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s\n", table, status)
			}
			if len(missing) > 0 {
				return fmt.Errorf("%d tables missing, run cmd/migrate up", len(missing))
			}
			return nil
		},
	}
}

func newJobsCommand(load Loader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show background job queue counters",
		Long:  "Print pending, running and delayed jobs plus the done and failed totals. All zero when Redis is not configured.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := load(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := rt.Jobs.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending=%d running=%d delayed=%d done=%d failed=%d\n",
				stats.Pending, stats.Running, stats.Delayed, stats.Done, stats.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the counters as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
