// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package management implements commands that inspect and maintain local
// pixelflow state.
package management

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/pixelflow/internal/commands/completion"
	"github.com/tombee/pixelflow/internal/cli/prompt"
	"github.com/tombee/pixelflow/internal/cli/timeline"
	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/internal/history"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

// Test seams.
var (
	loadEnv     = shared.LoadEnv
	newPrompter = func() prompt.Prompter {
		return prompt.NewSurveyPrompter(term.IsTerminal(int(os.Stdin.Fd())))
	}
)

// NewHistoryCommand creates the history command group.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "history",
		Annotations: map[string]string{
			"group": "management",
		},
		Short: "View recorded pipeline runs",
		Long: `Commands for listing, viewing, and deleting past pipeline runs.

Every 'pixelflow run' is recorded in a local SQLite database unless history
is disabled in the config or --no-history is passed. Run IDs may be
abbreviated to any unique prefix of at least four characters.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryDeleteCommand())

	return cmd
}

// RunSummary is a run in JSON output.
type RunSummary struct {
	ID            string             `json:"id"`
	Pipeline      string             `json:"pipeline"`
	Source        string             `json:"source,omitempty"`
	Mode          pipeline.Mode      `json:"mode"`
	Status        pipeline.RunStatus `json:"status"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Error         string             `json:"error,omitempty"`
	Steps         int                `json:"steps"`
	Completed     int                `json:"completed"`
	Failed        int                `json:"failed"`
	Skipped       int                `json:"skipped"`
	DurationMS    int64              `json:"duration_ms"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
}

func newRunSummary(r *history.Run) RunSummary {
	s := RunSummary{
		ID:            r.ID,
		Pipeline:      r.Pipeline,
		Source:        r.Source,
		Mode:          r.Mode,
		Status:        r.Status,
		CorrelationID: r.CorrelationID,
		Error:         r.Error,
		Steps:         r.Steps,
		Completed:     r.Completed,
		Failed:        r.Failed,
		Skipped:       r.Skipped,
		DurationMS:    r.Duration.Milliseconds(),
		StartedAt:     r.StartedAt,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		s.FinishedAt = &finished
	}
	return s
}

// Event is a recorded step event in JSON output.
type Event struct {
	Seq        int                 `json:"seq"`
	StepID     string              `json:"step_id"`
	Kind       pipeline.Kind       `json:"kind"`
	Status     pipeline.StepStatus `json:"status"`
	Output     string              `json:"output,omitempty"`
	Message    string              `json:"message,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Retryable  bool                `json:"retryable,omitempty"`
	DurationMS int64               `json:"duration_ms,omitempty"`
	Detail     string              `json:"detail,omitempty"`
	Time       time.Time           `json:"time"`
}

func newEvent(ev history.StepEvent) Event {
	return Event{
		Seq:        ev.Seq,
		StepID:     ev.StepID,
		Kind:       ev.Kind,
		Status:     ev.Status,
		Output:     ev.Output,
		Message:    ev.Message,
		Reason:     ev.Reason,
		Retryable:  ev.Retryable,
		DurationMS: ev.Duration.Milliseconds(),
		Detail:     ev.Detail,
		Time:       ev.Time,
	}
}

func newHistoryListCommand() *cobra.Command {
	var (
		status   string
		pipeName string
		failed   bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		Long: `List recorded runs, newest first, optionally filtered by pipeline or status.

See also: pixelflow history show, pixelflow run`,
		Example: `  # Example 1: List the most recent runs
  pixelflow history list

  # Example 2: Filter by pipeline name
  pixelflow history list --pipeline covers

  # Example 3: List runs that finished with failed steps
  pixelflow history list --status partial

  # Example 4: Get runs as JSON for scripting
  pixelflow history list --json | jq '.runs[] | select(.status=="failed")'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if failed {
				status = string(pipeline.RunFailed)
			}
			filter := history.Filter{
				Pipeline: pipeName,
				Status:   pipeline.RunStatus(status),
				Limit:    limit,
			}
			if err := validateStatus(filter.Status); err != nil {
				return err
			}
			return historyList(cmd, filter)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (running, succeeded, partial, failed, cancelled)")
	cmd.Flags().StringVar(&pipeName, "pipeline", "", "Filter by pipeline name")
	cmd.Flags().BoolVar(&failed, "failed", false, "Show only failed runs (shorthand for --status failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	_ = cmd.RegisterFlagCompletionFunc("status", completion.CompleteRunStatus)

	return cmd
}

func validateStatus(status pipeline.RunStatus) error {
	switch status {
	case "", history.StatusRunning, pipeline.RunSucceeded, pipeline.RunPartial, pipeline.RunFailed, pipeline.RunCancelled:
		return nil
	}
	return &shared.ExitError{
		Code:    shared.ExitInvalidPipeline,
		Message: fmt.Sprintf("unknown status %q", status),
		Cause: &pferrors.ValidationError{
			Field:      "status",
			Message:    "must be one of running, succeeded, partial, failed, cancelled",
			Suggestion: "use --failed to list failed runs",
		},
	}
}

// openStore opens the configured history database. Callers close it.
func openStore() (*history.Store, error) {
	env, err := loadEnv()
	if err != nil {
		return nil, err
	}
	store, err := env.OpenHistory()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, &pferrors.ConfigError{
			Key:    "history.enabled",
			Reason: "run history is disabled; set history.enabled: true in the config file",
		}
	}
	return store, nil
}

func historyList(cmd *cobra.Command, filter history.Filter) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		summaries := make([]RunSummary, len(runs))
		for i, r := range runs {
			summaries[i] = newRunSummary(r)
		}
		return shared.EmitJSONTo(out, struct {
			shared.JSONResponse
			Runs []RunSummary `json:"runs"`
		}{
			JSONResponse: shared.NewJSONResponse("history list", true),
			Runs:         summaries,
		})
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found")
		return nil
	}

	fmt.Fprintln(out, "ID       STATUS      PIPELINE             STEPS     DURATION  STARTED")
	fmt.Fprintln(out, "-------- ----------- -------------------- --------- --------- -------------------")
	for _, r := range runs {
		steps := fmt.Sprintf("%d/%d", r.Completed, r.Steps)
		duration := "-"
		if r.Status != history.StatusRunning {
			duration = r.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(out, "%-8s %-11s %-20s %-9s %-9s %s\n",
			shortID(r.ID), r.Status, truncate(r.Pipeline, 20), steps, duration,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func newHistoryShowCommand() *cobra.Command {
	var (
		events     bool
		showTiming bool
	)

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a recorded run",
		Long: `Display a recorded run and, with --events, the status of every step.

See also: pixelflow history list`,
		Example: `  # Example 1: Show a run by ID prefix
  pixelflow history show 3f2a

  # Example 2: Include step events
  pixelflow history show 3f2a --events

  # Example 3: Draw the step timeline of a progressive run
  pixelflow history show 3f2a --timeline

  # Example 4: Extract the status
  pixelflow history show 3f2a --json | jq -r '.run.status'`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return historyShow(cmd, args[0], events, showTiming)
		},
	}

	cmd.Flags().BoolVarP(&events, "events", "e", false, "List recorded step events")
	cmd.Flags().BoolVar(&showTiming, "timeline", false, "Render a timeline of step execution")

	return cmd
}

func historyShow(cmd *cobra.Command, id string, showEvents, showTiming bool) error {
	ctx := cmd.Context()
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	recorded, err := store.Events(ctx, run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		evs := make([]Event, len(recorded))
		for i, ev := range recorded {
			evs[i] = newEvent(ev)
		}
		return shared.EmitJSONTo(out, struct {
			shared.JSONResponse
			Run    RunSummary `json:"run"`
			Events []Event    `json:"events"`
		}{
			JSONResponse: shared.NewJSONResponse("history show", true),
			Run:          newRunSummary(run),
			Events:       evs,
		})
	}

	printRun(out, run)

	if showEvents {
		printEvents(out, recorded)
	}
	if showTiming {
		printTimeline(out, run, recorded)
	}
	return nil
}

func printRun(w io.Writer, r *history.Run) {
	row := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", shared.RenderLabel(fmt.Sprintf("%-15s", label+":")), value)
	}

	row("Run ID", r.ID)
	row("Pipeline", r.Pipeline)
	if r.Source != "" {
		row("Source", r.Source)
	}
	row("Mode", string(r.Mode))
	row("Status", shared.RenderRunStatus(r.Status))
	if r.CorrelationID != "" {
		row("Correlation ID", r.CorrelationID)
	}
	row("Started", r.StartedAt.Local().Format(time.RFC3339))
	if !r.FinishedAt.IsZero() {
		row("Finished", r.FinishedAt.Local().Format(time.RFC3339))
		row("Duration", r.Duration.Round(time.Millisecond).String())
	}
	row("Steps", fmt.Sprintf("%d total, %d completed, %d failed, %d skipped", r.Steps, r.Completed, r.Failed, r.Skipped))
	if r.Error != "" {
		row("Error", r.Error)
	}
}

func printEvents(w io.Writer, events []history.StepEvent) {
	fmt.Fprintln(w)
	if len(events) == 0 {
		fmt.Fprintln(w, "No step events recorded")
		return
	}

	width := 0
	for _, ev := range events {
		width = max(width, len(ev.StepID))
	}
	for _, ev := range events {
		if ev.Status == pipeline.StepStatusPending {
			continue
		}
		var detail string
		switch ev.Status {
		case pipeline.StepStatusError, pipeline.StepStatusSkipped:
			detail = ev.Message
		case pipeline.StepStatusCompleted:
			detail = ev.Detail
			if ev.Duration > 0 {
				detail = strings.TrimSpace(detail + " " + shared.Muted.Render("("+ev.Duration.String()+")"))
			}
		}
		fmt.Fprintf(w, "  %s %s %s%s  %s\n",
			shared.Muted.Render(ev.Time.Local().Format("15:04:05.000")),
			shared.StepSymbol(ev.Status),
			ev.StepID,
			strings.Repeat(" ", width-len(ev.StepID)),
			detail)
	}
}

func printTimeline(w io.Writer, r *history.Run, events []history.StepEvent) {
	statusEvents := make([]pipeline.StatusEvent, len(events))
	for i, ev := range events {
		statusEvents[i] = pipeline.StatusEvent{
			RunID:   ev.RunID,
			Seq:     ev.Seq,
			StepID:  ev.StepID,
			Kind:    ev.Kind,
			Status:  ev.Status,
			Message: ev.Message,
			Time:    ev.Time,
		}
	}

	renderer, err := timeline.NewRenderer()
	if err == nil {
		var rendered string
		rendered, err = renderer.Render(r.Pipeline, statusEvents)
		if err == nil {
			fmt.Fprint(w, "\n"+rendered)
			return
		}
	}
	fmt.Fprintf(w, "\n%s\n", shared.RenderWarn("timeline unavailable: "+err.Error()))
}

func newHistoryDeleteCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:               "delete <run-id>",
		Short:             "Delete a recorded run",
		Long:              `Delete a recorded run and its step events.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return historyDelete(cmd, args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}

func historyDelete(cmd *cobra.Command, id string, yes bool) error {
	ctx := cmd.Context()
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}

	ok, err := prompt.Confirm(ctx, newPrompter(), fmt.Sprintf("Delete run %s of %s?", shortID(run.ID), run.Pipeline), yes)
	if err != nil {
		if errors.Is(err, prompt.ErrNonInteractive) {
			return fmt.Errorf("refusing to delete without confirmation; pass --yes")
		}
		return err
	}
	if !ok {
		return nil
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSONTo(out, struct {
			shared.JSONResponse
			Deleted string `json:"deleted"`
		}{
			JSONResponse: shared.NewJSONResponse("history delete", true),
			Deleted:      run.ID,
		})
	}
	if !shared.GetQuiet() {
		fmt.Fprintln(out, shared.RenderOK("Deleted run "+run.ID))
	}
	return nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
