package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ghrunners/fleet/history"
)

// HistoryCmd prints recorded instance runs from the history ledger,
// newest first. This is a read-only audit view — it never influences
// scheduling.
type HistoryCmd struct {
	DB    string `arg:"" help:"path to the SQLite run-history database"`
	Role  string `default:"" help:"filter to a single role (all roles if empty)"`
	Limit int    `default:"20" help:"maximum number of runs to show"`
}

func (c *HistoryCmd) Run(cctx *Context) error {
	ledger, err := history.Open(c.DB)
	if err != nil {
		return fmt.Errorf("fleetd: opening history database: %w", err)
	}
	defer ledger.Close()

	runs, err := ledger.Recent(context.Background(), c.Role, c.Limit)
	if err != nil {
		return fmt.Errorf("fleetd: querying run history: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tSLOT\tRUNNER\tSTARTED\tENDED\tSTATUS\t")
	for _, r := range runs {
		ended := "-"
		if r.EndedAt.Valid {
			ended = r.EndedAt.String
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t\n", r.ID, r.Role, r.Slot, r.RunnerName, r.StartedAt, ended, r.ExitStatus)
	}
	return w.Flush()
}
