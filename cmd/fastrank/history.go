package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"fast-interactions/internal/report"
	"fast-interactions/internal/storage"

	"github.com/spf13/cobra"
)

var (
	historySince time.Duration

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Manage stored ranking runs",
	}
	historyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest last",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	historyShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the summary of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	historyDeleteCmd = &cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDelete,
	}
)

func init() {
	historyListCmd.Flags().DurationVar(&historySince, "since", 0, "Only list runs newer than this, e.g. 24h (default: all)")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
}

func requireStore() (*storage.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("run history needs DATA_PATH to be set")
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	store, err := requireStore()
	if err != nil {
		return err
	}
	defer store.Close()

	end := time.Now()
	start := time.Unix(0, 0)
	if historySince > 0 {
		start = end.Add(-historySince)
	}
	runs, err := store.ListRuns(start, end)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSOURCE\tSAMPLES\tOBJECTIVE\tPAIRS\tTOP")
	for _, run := range runs {
		top := "-"
		pairs := 0
		objective := run.Settings.Objective
		if run.Result != nil {
			objective = run.Result.Objective
			pairs = len(run.Result.Interactions)
			if pairs > 0 {
				in := run.Result.Interactions[0]
				top = fmt.Sprintf("%d:%d (%.4g)", in.Features[0], in.Features[1], in.Strength)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n", run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"), run.Source, run.Samples, objective, pairs, top)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := requireStore()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(args[0])
	if err != nil {
		return err
	}
	if run.Result == nil {
		return fmt.Errorf("run %s has no result", run.ID)
	}
	return report.NewReporter(run, "").WriteSummary(cmd.OutOrStdout())
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := requireStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteRun(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", args[0])
	return nil
}
