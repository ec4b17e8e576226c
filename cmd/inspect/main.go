package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/runlog"
)

// #region main

func main() {
	runlogPath := flag.String("runlog", "", "path to bimcheck_runs.db")
	historyPath := flag.String("history", "", "path to the dashboard history store")
	backend := flag.String("backend", history.BackendSQLite, "history backend: sqlite, file or badger")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show single run detail (ID or prefix)")
	status := flag.String("status", "", "filter runs by status (success, warning, error)")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *runlogPath == "" && *historyPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect [--runlog runs.db] [--history path --backend kind] [--last N] [--run id] [--status s] [--json]")
		os.Exit(2)
	}

	if *runlogPath != "" {
		db, err := sql.Open("sqlite", *runlogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open run log: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		if *runID != "" {
			err = runDetailMode(os.Stdout, db, *runID, *jsonOut)
		} else {
			err = runListMode(os.Stdout, db, *last, *status, *jsonOut)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	if *historyPath != "" {
		if err := runHistoryMode(os.Stdout, *backend, *historyPath, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID      string `json:"run_id"`
	Label      string `json:"label"`
	Status     string `json:"status"`
	Elements   int    `json:"elements"`
	Issues     int    `json:"issues"`
	Conformity int    `json:"conformity"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	Warnings   string `json:"warnings,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func runListMode(w io.Writer, db *sql.DB, last int, statusFilter string, jsonOut bool) error {
	entries, err := runlog.List(db, last)
	if err != nil {
		return err
	}

	// store returns DESC, reverse for chronological
	rows := make([]listRow, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if statusFilter != "" && e.Status != statusFilter {
			continue
		}
		rows = append(rows, listRow{
			RunID:      e.RunID,
			Label:      e.Label,
			Status:     e.Status,
			Elements:   e.TotalElements,
			Issues:     e.TotalIssues,
			Conformity: e.ConformityRate,
			ElapsedMs:  e.ElapsedMs,
			Warnings:   e.Warnings,
			CreatedAt:  e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	if jsonOut {
		return printJSON(w, rows)
	}
	return printListTable(w, rows)
}

func printListTable(w io.Writer, rows []listRow) error {
	fmt.Fprintf(w, "%-10s  %-20s  %-8s  %8s  %6s  %5s  %8s  %s\n",
		"Run", "Label", "Status", "Elements", "Issues", "Conf", "Elapsed", "Time")
	fmt.Fprintf(w, "%-10s+-%-20s+-%-8s+-%8s+-%6s+-%5s+-%8s+-%s\n",
		"----------", "--------------------", "--------", "--------", "------", "-----", "--------", "--------------------")

	var sum int
	for _, r := range rows {
		fmt.Fprintf(w, "%-10s  %-20s  %-8s  %8d  %6d  %4d%%  %6dms  %s\n",
			shortID(r.RunID), truncate(r.Label, 20), r.Status, r.Elements, r.Issues, r.Conformity, r.ElapsedMs, r.CreatedAt)
		sum += r.Conformity
	}

	fmt.Fprintf(w, "\n%d run(s), average conformity %d%%\n", len(rows), sum/len(rows))
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(w io.Writer, db *sql.DB, runID string, jsonOut bool) error {
	e, err := runlog.Get(db, runID)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(w, e)
	}

	fmt.Fprintf(w, "Run:         %s\n", e.RunID)
	fmt.Fprintf(w, "Label:       %s\n", e.Label)
	fmt.Fprintf(w, "Source:      %s\n", e.Source)
	fmt.Fprintf(w, "Created:     %s\n", e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(w, "Status:      %s\n", e.Status)
	fmt.Fprintf(w, "Elements:    %d\n", e.TotalElements)
	fmt.Fprintf(w, "Issues:      %d\n", e.TotalIssues)
	fmt.Fprintf(w, "Conformity:  %d%%\n", e.ConformityRate)
	fmt.Fprintf(w, "Elapsed:     %dms\n", e.ElapsedMs)
	fmt.Fprintf(w, "Fingerprint: %s\n", e.Fingerprint)
	if e.Warnings != "" {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, code := range strings.Split(e.Warnings, ",") {
			fmt.Fprintf(w, "  %s\n", code)
		}
	}
	if e.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", e.Error)
	}
	return nil
}

// #endregion detail-mode

// #region history-mode

type historyOutput struct {
	State history.DashboardState `json:"state"`
	Stats history.Stats          `json:"stats"`
}

func runHistoryMode(w io.Writer, kind, path string, jsonOut bool) error {
	backend, err := history.OpenBackend(kind, path)
	if err != nil {
		return err
	}
	defer backend.Close()

	st, err := history.NewStore(backend, nil).Load(context.Background())
	if err != nil {
		// a missing or broken payload still prints the empty dashboard
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	out := historyOutput{State: st, Stats: history.ComputeStats(st)}

	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "\nRecent runs:\n")
	if len(st.RecentRuns) == 0 {
		fmt.Fprintf(w, "  (none)\n")
	}
	for _, r := range st.RecentRuns {
		fmt.Fprintf(w, "  %-10s %-8s %-20s %s\n", shortID(r.ID), r.Status, truncate(r.Label, 20), r.Description())
	}

	fmt.Fprintf(w, "\nTimeline:\n")
	for _, t := range st.Timeline {
		fmt.Fprintf(w, "  %s  %-20s %s\n", t.Date.Format("2006-01-02 15:04"), truncate(t.Title, 20), t.Description)
	}

	fmt.Fprintf(w, "\nStats:\n")
	fmt.Fprintf(w, "  Validations:        %d\n", out.Stats.TotalValidations)
	fmt.Fprintf(w, "  Successful:         %d\n", out.Stats.SuccessfulValidations)
	fmt.Fprintf(w, "  Average conformity: %.1f%%\n", out.Stats.AverageConformity)
	fmt.Fprintf(w, "  Average elapsed:    %dms\n", out.Stats.AverageElapsedMs)
	if out.Stats.MostCommonIssue != "" {
		fmt.Fprintf(w, "  Most common issue:  %s\n", out.Stats.MostCommonIssue)
	}
	return nil
}

// #endregion history-mode

// #region output

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// #endregion output
