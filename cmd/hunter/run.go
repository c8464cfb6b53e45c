package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/deusflow/shorts-hunter/internal/app"
	"github.com/deusflow/shorts-hunter/internal/storage"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var mode, presetID string
	var windowHours int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect, score and optionally AI-rank once",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			run, err := rt.Service.Trigger(cmd.Context(), app.RunRequest{Mode: mode, WindowHours: windowHours, PresetID: presetID})
			var runErr *app.RunError
			if errors.As(err, &runErr) {
				fmt.Fprintf(os.Stderr, "run %s failed\n", runErr.RunID)
			}
			if err != nil {
				return err
			}
			printRun(run)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "collect_only or ai_rank (default collect_only)")
	cmd.Flags().IntVar(&windowHours, "window", 0, "window in hours (default WINDOW_HOURS)")
	cmd.Flags().StringVar(&presetID, "preset", "", "preset id (default: the active preset)")
	return cmd
}

func rankCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Ask the model again for an existing run",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if runID == "" || runID == app.LatestRun {
				id, _, err := rt.Service.ListCandidates(cmd.Context(), app.LatestRun)
				if err != nil {
					return err
				}
				if id == "" {
					return errors.New("no runs yet")
				}
				runID = id
			}

			res, err := rt.Service.Rerank(cmd.Context(), runID)
			if err != nil {
				return err
			}
			fmt.Printf("run %s ranked by %s (%d tokens, %d applied)\n", runID, res.Model, res.TokensUsed, res.Applied)
			for _, e := range res.Top10 {
				fmt.Printf("%2d. %s  %s\n", e.Rank, e.CandidateID, e.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", app.LatestRun, "run id or latest")
	return cmd
}

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			runs, err := rt.Service.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMODE\tSTATUS\tSTARTED\tCANDIDATES\tAI MODEL")
			for _, r := range runs {
				cands := 0
				if r.Summary != nil {
					cands = r.Summary.Totals.Candidates
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Mode, r.Status, r.StartedAt.Format("2006-01-02 15:04"), cands, r.AIModel)
			}
			return w.Flush()
		},
	}
}

func candidatesCmd() *cobra.Command {
	var runID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List the candidates of a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			id, views, err := rt.Service.ListCandidates(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"runId": id, "candidates": views})
			}

			fmt.Printf("run %s\n", id)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tSCORE\tSOURCE\tTITLE")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", rankLabel(v.Candidate), v.TotalScore, v.Source.SourceID, v.Item.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&runID, "run", app.LatestRun, "run id or latest")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func rankLabel(c storage.Candidate) string {
	if c.Rank == nil {
		return "-"
	}
	return fmt.Sprint(*c.Rank)
}

func printRun(run *storage.Run) {
	fmt.Printf("run %s: %s (%s, %dh)\n", run.ID, run.Status, run.Mode, run.WindowHours)
	if run.Summary == nil {
		return
	}
	t := run.Summary.Totals
	fmt.Printf("fetched %d, deduped %d, candidates %d\n", t.Fetched, t.Deduped, t.Candidates)
	for _, s := range run.Summary.Sources {
		if !s.OK {
			fmt.Printf("  source %s failed: %s\n", s.SourceID, s.Error)
		}
	}
	if run.AIUsed {
		fmt.Printf("ranked by %s: %d tokens, about %d KRW\n", run.AIModel, run.AITokensEst, run.AICostEstKRW)
	}
	for i, e := range run.Summary.TrendingTop10 {
		fmt.Printf("%2d. [%d] %s (%s)\n", i+1, e.TotalScore, e.Title, e.Source)
	}
}
