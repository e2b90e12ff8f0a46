package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/database"
	"github.com/webaudit/webaudit/internal/model"
)

// NewHistoryCmd creates the history command.
// It works against the runs the audit command stores in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [base-url]",
		Short: "List stored audit runs and compare them",
		Long: `History lists past audit runs and shows what changed between them.

Every audit is stored in the local history database. Without arguments,
history lists all stored runs. With a base URL it lists that target's
runs, and --diff compares the two most recent ones: links that started
failing, links that recovered, and pages that appeared or disappeared.

Examples:
  # List all stored runs
  webaudit history

  # List runs for one application
  webaudit history https://app.example.com

  # Compare the two most recent runs
  webaudit history --diff https://app.example.com

  # Compare the latest run with a specific earlier one
  webaudit history --diff --with-run-id 5 https://app.example.com

  # Machine-readable diff
  webaudit history --diff --json https://app.example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("diff", "d", false,
		"Compare the latest run with the previous one")
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Older run to diff against (use the listing to see run IDs)")
	cmd.Flags().BoolP("json", "j", false,
		"Output the diff in JSON format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	diff, err := cmd.Flags().GetBool("diff")
	if err != nil {
		return err
	}
	withRunID, err := cmd.Flags().GetInt64("with-run-id")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	var target string
	if len(args) > 0 {
		target, err = normalizeTarget(args[0])
		if err != nil {
			return err
		}
	}
	if diff && target == "" {
		return errors.New("a base URL is required for --diff")
	}

	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	if diff {
		return diffRunHistory(ctx, db, target, withRunID, jsonOutput)
	}
	return listRunHistory(ctx, db, target)
}

// listRunHistory prints stored runs, newest first.
func listRunHistory(ctx context.Context, db *database.AuditDB, target string) error {
	runs, err := db.ListRuns(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		if target != "" {
			fmt.Printf("No audit runs found for %s\n", target)
		} else {
			fmt.Println("No audit runs found.")
		}
		fmt.Println("\nUse 'webaudit audit' to run an audit.")
		return nil
	}

	fmt.Printf("Audit runs (%d):\n\n", len(runs))
	fmt.Printf("  %-6s  %-20s  %-12s  %-6s  %s\n", "ID", "Date", "State", "Pages", "Target")
	fmt.Println("  " + strings.Repeat("-", 78))

	for _, run := range runs {
		fmt.Printf("  %-6d  %-20s  %-12s  %-6d  %s\n",
			run.ID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.State,
			run.PagesCrawled,
			run.Target,
		)
	}

	fmt.Println("\nUse 'webaudit history --diff <base-url>' to compare the latest two runs.")

	return nil
}

// RunDiff holds the outcome changes between two stored runs.
type RunDiff struct {
	// Target is the audited base URL.
	Target string `json:"target"`

	// PreviousRunID and CurrentRunID identify the compared runs.
	PreviousRunID int64 `json:"previous_run_id"`
	CurrentRunID  int64 `json:"current_run_id"`

	// Regressions are checks that went from healthy to failing.
	Regressions []RecordChange `json:"regressions"`

	// Fixes are checks that recovered.
	Fixes []RecordChange `json:"fixes"`

	// Added are checks that only exist in the current run.
	Added []model.Record `json:"added"`

	// Removed are checks that disappeared since the previous run.
	Removed []model.Record `json:"removed"`
}

// RecordChange describes one check whose outcome changed between runs.
type RecordChange struct {
	Type     model.RecordType `json:"type"`
	URL      string           `json:"url"`
	LinkURL  string           `json:"link_url,omitempty"`
	Previous model.Status     `json:"previous"`
	Current  model.Status     `json:"current"`
}

// diffRunHistory compares the target's latest run with an earlier one.
func diffRunHistory(ctx context.Context, db *database.AuditDB, target string, withRunID int64, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return fmt.Errorf("no audit runs found for %s", target)
	}
	if len(runs) < 2 && withRunID == 0 {
		return fmt.Errorf("at least 2 runs are required for a diff (found %d)", len(runs))
	}

	current := runs[0]
	previousID := withRunID
	if previousID == 0 {
		previousID = runs[1].ID
	}
	if previousID == current.ID {
		return fmt.Errorf("run %d is the latest run; pick an earlier one", previousID)
	}

	previous, err := db.GetRun(ctx, previousID)
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", previousID, err)
	}
	if previous.Target != target {
		return fmt.Errorf("run %d belongs to %s, not %s", previousID, previous.Target, target)
	}

	prevRecords, err := db.GetRunRecords(ctx, previous.ID)
	if err != nil {
		return fmt.Errorf("failed to load records of run %d: %w", previous.ID, err)
	}
	curRecords, err := db.GetRunRecords(ctx, current.ID)
	if err != nil {
		return fmt.Errorf("failed to load records of run %d: %w", current.ID, err)
	}

	d := diffRecords(prevRecords, curRecords)
	d.Target = target
	d.PreviousRunID = previous.ID
	d.CurrentRunID = current.ID

	if jsonOutput {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode diff: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printRunDiff(d, previous, &current)
	return nil
}

// recordIdentity identifies a check across runs: its type, the page it
// was found on, and the link it describes. Status is deliberately not
// part of the identity, so a status change shows up as a change rather
// than as an add/remove pair.
func recordIdentity(r model.Record) string {
	return string(r.Type) + "|" + r.URL + "|" + r.LinkURL
}

// failing reports whether a status counts as a problem.
func failing(s model.Status) bool {
	return s == model.StatusFail || s == model.StatusError
}

// diffRecords computes outcome changes between two record sets.
// When an identity appears multiple times in a run, the last record wins.
func diffRecords(previous, current []model.Record) *RunDiff {
	prevByID := make(map[string]model.Record, len(previous))
	for _, r := range previous {
		prevByID[recordIdentity(r)] = r
	}
	curByID := make(map[string]model.Record, len(current))
	for _, r := range current {
		curByID[recordIdentity(r)] = r
	}

	d := &RunDiff{}

	seen := make(map[string]bool, len(current))
	for _, r := range current {
		id := recordIdentity(r)
		if seen[id] {
			continue
		}
		seen[id] = true

		prev, ok := prevByID[id]
		if !ok {
			d.Added = append(d.Added, r)
			continue
		}
		if prev.Status == r.Status {
			continue
		}

		change := RecordChange{
			Type:     r.Type,
			URL:      r.URL,
			LinkURL:  r.LinkURL,
			Previous: prev.Status,
			Current:  r.Status,
		}
		switch {
		case !failing(prev.Status) && failing(r.Status):
			d.Regressions = append(d.Regressions, change)
		case failing(prev.Status) && !failing(r.Status):
			d.Fixes = append(d.Fixes, change)
		}
	}

	removedSeen := make(map[string]bool, len(previous))
	for _, r := range previous {
		id := recordIdentity(r)
		if removedSeen[id] {
			continue
		}
		removedSeen[id] = true
		if _, ok := curByID[id]; !ok {
			d.Removed = append(d.Removed, r)
		}
	}

	return d
}

// printRunDiff renders a diff as human-readable text.
func printRunDiff(d *RunDiff, previous, current *database.RunMetadata) {
	fmt.Printf("Comparing runs of %s\n", d.Target)
	fmt.Printf("  previous: #%d (%s)\n", previous.ID, previous.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  current:  #%d (%s)\n\n", current.ID, current.StartedAt.Format("2006-01-02 15:04:05"))

	if len(d.Regressions) == 0 && len(d.Fixes) == 0 && len(d.Added) == 0 && len(d.Removed) == 0 {
		fmt.Println("No changes between the two runs.")
		return
	}

	if len(d.Regressions) > 0 {
		fmt.Printf("Regressions (%d):\n", len(d.Regressions))
		for _, c := range d.Regressions {
			fmt.Printf("  [%s] %s : %s -> %s\n", c.Type, changeTarget(c), c.Previous, c.Current)
		}
		fmt.Println()
	}

	if len(d.Fixes) > 0 {
		fmt.Printf("Fixed (%d):\n", len(d.Fixes))
		for _, c := range d.Fixes {
			fmt.Printf("  [%s] %s : %s -> %s\n", c.Type, changeTarget(c), c.Previous, c.Current)
		}
		fmt.Println()
	}

	if len(d.Added) > 0 {
		fmt.Printf("New checks (%d):\n", len(d.Added))
		for _, r := range d.Added {
			fmt.Printf("  [%s] %s (%s)\n", r.Type, recordTarget(r), r.Status)
		}
		fmt.Println()
	}

	if len(d.Removed) > 0 {
		fmt.Printf("Disappeared checks (%d):\n", len(d.Removed))
		for _, r := range d.Removed {
			fmt.Printf("  [%s] %s\n", r.Type, recordTarget(r))
		}
	}
}

// changeTarget formats the subject of a change for display.
func changeTarget(c RecordChange) string {
	if c.LinkURL != "" {
		return c.LinkURL
	}
	return c.URL
}

// recordTarget formats the subject of a record for display.
func recordTarget(r model.Record) string {
	if r.LinkURL != "" {
		return r.LinkURL
	}
	return r.URL
}
