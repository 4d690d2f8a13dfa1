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

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

// StatusRunning marks a run that has started but not finished. A run left
// in this state was interrupted before it could be finalized.
const StatusRunning pipeline.RunStatus = "running"

// Run is one recorded pipeline run.
type Run struct {
	ID            string
	Pipeline      string
	Source        string
	Mode          pipeline.Mode
	Status        pipeline.RunStatus
	CorrelationID string
	Error         string

	Steps     int
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration

	StartedAt  time.Time
	FinishedAt time.Time
}

// Summary is the terminal state written by FinishRun.
type Summary struct {
	Status    pipeline.RunStatus
	Error     string
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Filter narrows ListRuns.
type Filter struct {
	Pipeline string
	Status   pipeline.RunStatus
	Limit    int
}

// CreateRun inserts run with status running. StartedAt defaults to now.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return &pferrors.ValidationError{Field: "id", Message: "run ID is required"}
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = StatusRunning

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, pipeline, source, mode, status, correlation_id, steps, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, nullString(run.Source), string(run.Mode), string(run.Status),
		nullString(run.CorrelationID), run.Steps, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, id string, sum Summary) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, completed = ?, failed = ?, skipped = ?,
			duration_ms = ?, finished_at = ?
		WHERE id = ?`,
		string(sum.Status), nullString(s.mask(sum.Error)), sum.Completed, sum.Failed, sum.Skipped,
		sum.Duration.Milliseconds(), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &pferrors.NotFoundError{Resource: "run", ID: id}
	}
	return nil
}

const runColumns = `id, pipeline, source, mode, status, correlation_id, error,
	steps, completed, failed, skipped, duration_ms, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var mode, status string
	var source, correlationID, errStr, startedAt, finishedAt sql.NullString
	var durationMS int64

	err := row.Scan(&run.ID, &run.Pipeline, &source, &mode, &status, &correlationID, &errStr,
		&run.Steps, &run.Completed, &run.Failed, &run.Skipped, &durationMS, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Source = source.String
	run.Mode = pipeline.Mode(mode)
	run.Status = pipeline.RunStatus(status)
	run.CorrelationID = correlationID.String
	run.Error = errStr.String
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	return &run, nil
}

// GetRun returns the run with id. A unique ID prefix of at least four
// characters is accepted too.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if len(id) < 4 {
		return nil, &pferrors.NotFoundError{Resource: "run", ID: id}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id LIKE ? || '%' LIMIT 2", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var matches []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, &pferrors.NotFoundError{Resource: "run", ID: id}
	case 1:
		return matches[0], nil
	default:
		return nil, &pferrors.ValidationError{
			Field:      "id",
			Message:    fmt.Sprintf("run ID prefix %q is ambiguous", id),
			Suggestion: "use more characters of the run ID",
		}
	}
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, filter Filter) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE 1=1"
	var args []any

	if filter.Pipeline != "" {
		query += " AND pipeline = ?"
		args = append(args, filter.Pipeline)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its events.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &pferrors.NotFoundError{Resource: "run", ID: id}
	}
	return nil
}
