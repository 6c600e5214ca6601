package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/tspanneal/internal/report"
	"github.com/cwbudde/tspanneal/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
)

const timeLayout = "2006-01-02 15:04:05"

// retention selects checkpoints for deletion. Zero fields disable a rule.
type retention struct {
	keepLast  int
	olderThan int // days
}

var (
	checkpointDataDir string
	cleanPolicy       retention
	forceClean        bool
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and clean saved tours",
	Long: `Inspect and clean the checkpoints written by "run --save" and by server jobs.
A checkpoint keeps the best tour of a job; "run --resume <job-id>" starts a
new run from it.`,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.PersistentFlags().StringVar(&checkpointDataDir, "data-dir", "./data", "Base directory for checkpoint storage")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved tours with their cost reduction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.NewFSStore(checkpointDataDir)
			if err != nil {
				return fmt.Errorf("failed to open checkpoint store: %w", err)
			}
			return listCheckpoints(cmd.OutOrStdout(), st)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show the saved tour and cost curve of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewFSStore(checkpointDataDir)
			if err != nil {
				return fmt.Errorf("failed to open checkpoint store: %w", err)
			}
			return showCheckpoint(cmd.OutOrStdout(), st, args[0])
		},
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete old checkpoints",
		Long: `Delete checkpoints older than --older-than days and all but the newest
--keep-last. Traces and tour.txt of a deleted job go with it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.NewFSStore(checkpointDataDir)
			if err != nil {
				return fmt.Errorf("failed to open checkpoint store: %w", err)
			}
			return cleanCheckpoints(cmd.OutOrStdout(), cmd.InOrStdin(), st, cleanPolicy, forceClean)
		},
	}
	cleanCmd.Flags().IntVar(&cleanPolicy.keepLast, "keep-last", 0, "Keep only the newest N checkpoints (0 = keep all)")
	cleanCmd.Flags().IntVar(&cleanPolicy.olderThan, "older-than", 0, "Delete checkpoints older than N days (0 = no age limit)")
	cleanCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")

	checkpointsCmd.AddCommand(listCmd, showCmd, cleanCmd)
}

func listCheckpoints(w io.Writer, st *store.FSStore) error {
	infos, err := st.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(infos) == 0 {
		fmt.Fprintln(w, "No checkpoints found.")
		return nil
	}

	slices.SortFunc(infos, func(a, b store.CheckpointInfo) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tSAVED\tCITIES\tITERATION\tINITIAL\tBEST\tGAIN\tSIZE")
	for _, info := range infos {
		size := "?"
		if n, err := jobDirSize(filepath.Join(st.BaseDir(), "jobs", info.JobID)); err == nil {
			size = formatBytes(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.4f\t%.4f\t%.1f%%\t%s\n",
			info.JobID,
			info.Timestamp.Format(timeLayout),
			info.CityCount,
			info.Iteration,
			info.InitialCost,
			info.BestCost,
			info.Gain(),
			size,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d checkpoint(s)\n", len(infos))
	return nil
}

// showCheckpoint prints the settings and tour of one checkpoint followed by the
// iterations at which its trace found a better tour.
func showCheckpoint(w io.Writer, st *store.FSStore, jobID string) error {
	c, err := st.LoadCheckpoint(jobID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint %s: %w", jobID, err)
	}
	info := c.ToInfo()

	fmt.Fprintf(w, "Job:         %s\n", c.JobID)
	fmt.Fprintf(w, "Saved:       %s\n", c.Timestamp.Format(timeLayout))
	fmt.Fprintf(w, "Cities:      %s (%d)\n", c.Config.CitiesPath, c.CityCount)
	fmt.Fprintf(w, "Schedule:    %d iterations x %d restarts, T0=%g, cooling=%g, seed=%d\n",
		c.Config.Iters, c.Config.Restarts, c.Config.InitialTemperature, c.Config.CoolingRate, c.Config.Seed)
	fmt.Fprintf(w, "Iteration:   %d (T=%.4g)\n", c.Iteration, c.Temperature)
	fmt.Fprintf(w, "Cost:        %.4f -> %.4f (%.1f%% shorter)\n\n", c.InitialCost, c.BestCost, info.Gain())

	if err := report.WriteText(w, c.BestTour, c.BestCost); err != nil {
		return fmt.Errorf("failed to write tour: %w", err)
	}

	entries, err := st.LoadTrace(jobID)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(w, "\nNo trace recorded.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load trace: %w", err)
	}

	curve := store.Improvements(entries)
	fmt.Fprintf(w, "\nImprovements (%d of %d samples):\n", len(curve), len(entries))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "RESTART\tITERATION\tTEMPERATURE\tBEST\t")
	for _, e := range curve {
		fmt.Fprintf(tw, "%d\t%d\t%.4g\t%.4f\t\n", e.Restart, e.Iteration, e.Temperature, e.Cost)
	}
	return tw.Flush()
}

func cleanCheckpoints(w io.Writer, in io.Reader, st *store.FSStore, policy retention, force bool) error {
	if policy.keepLast <= 0 && policy.olderThan <= 0 {
		return errors.New("must specify either --keep-last or --older-than")
	}

	infos, err := st.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	doomed := policy.selectForDeletion(infos, time.Now())
	if len(doomed) == 0 {
		fmt.Fprintln(w, "No checkpoints match deletion criteria.")
		return nil
	}

	fmt.Fprintf(w, "Found %d checkpoint(s) to delete:\n", len(doomed))
	for _, info := range doomed {
		fmt.Fprintf(w, "  - %s (best %.4f, saved %s)\n", info.JobID, info.BestCost, info.Timestamp.Format(timeLayout))
	}

	if !force {
		fmt.Fprint(w, "\nProceed with deletion? [y/N]: ")
		answer, _ := bufio.NewReader(in).ReadString('\n')
		if a := strings.TrimSpace(answer); a != "y" && a != "Y" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	var failed int
	for _, info := range doomed {
		if err := st.DeleteCheckpoint(info.JobID); err != nil {
			slog.Error("Failed to delete checkpoint", "job_id", info.JobID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted checkpoint", "job_id", info.JobID)
	}

	fmt.Fprintf(w, "\nDeleted %d checkpoint(s), %d failed.\n", len(doomed)-failed, failed)
	return nil
}

// selectForDeletion returns the checkpoints older than the age limit plus
// those beyond the newest keepLast, each once, oldest first.
func (p retention) selectForDeletion(infos []store.CheckpointInfo, now time.Time) []store.CheckpointInfo {
	sorted := slices.Clone(infos)
	slices.SortFunc(sorted, func(a, b store.CheckpointInfo) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	cutoff := now.AddDate(0, 0, -p.olderThan)
	excess := 0
	if p.keepLast > 0 {
		excess = max(0, len(sorted)-p.keepLast)
	}

	var doomed []store.CheckpointInfo
	for i, info := range sorted {
		if i < excess || (p.olderThan > 0 && info.Timestamp.Before(cutoff)) {
			doomed = append(doomed, info)
		}
	}
	return doomed
}

func jobDirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
