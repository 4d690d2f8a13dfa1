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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

// StepEvent is one recorded step transition or wave result.
type StepEvent struct {
	RunID     string
	Seq       int
	StepID    string
	Kind      pipeline.Kind
	Status    pipeline.StepStatus
	Output    string
	Message   string
	Reason    string
	Retryable bool
	Duration  time.Duration

	// Detail is a JSON summary: the preview or content of a progressive
	// event, or the artifact description of a wave result.
	Detail string

	Time time.Time
}

// RecordEvent stores a progressive status event.
func (s *Store) RecordEvent(ctx context.Context, ev pipeline.StatusEvent) error {
	detail, err := eventDetail(ev)
	if err != nil {
		return err
	}
	return s.insertEvent(ctx, StepEvent{
		RunID:     ev.RunID,
		Seq:       ev.Seq,
		StepID:    ev.StepID,
		Kind:      ev.Kind,
		Status:    ev.Status,
		Message:   ev.Message,
		Reason:    ev.Reason,
		Retryable: ev.Retryable,
		Duration:  ev.Duration,
		Detail:    detail,
		Time:      ev.Time,
	})
}

// RecordResults stores the results of a wave run as completed events.
func (s *Store) RecordResults(ctx context.Context, runID string, results []pipeline.PipelineResult) error {
	now := time.Now()
	for i, r := range results {
		detail, err := describe(r.Value)
		if err != nil {
			return err
		}
		err = s.insertEvent(ctx, StepEvent{
			RunID:  runID,
			Seq:    i,
			StepID: r.StepID,
			Kind:   r.Kind,
			Status: pipeline.StepStatusCompleted,
			Output: r.Output,
			Detail: detail,
			Time:   now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertEvent(ctx context.Context, ev StepEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_events (run_id, seq, step_id, kind, status, output, message, reason,
			retryable, duration_ms, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Seq, ev.StepID, string(ev.Kind), string(ev.Status), nullString(ev.Output),
		nullString(s.mask(ev.Message)), nullString(ev.Reason), ev.Retryable, ev.Duration.Milliseconds(),
		nullString(s.mask(ev.Detail)), formatTime(ev.Time),
	)
	if err != nil {
		return fmt.Errorf("failed to record step %s: %w", ev.StepID, err)
	}
	return nil
}

// Events returns the events of a run in sequence order.
func (s *Store) Events(ctx context.Context, runID string) ([]StepEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, step_id, kind, status, output, message, reason, retryable,
			duration_ms, detail, created_at
		FROM step_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []StepEvent
	for rows.Next() {
		var ev StepEvent
		var kind, status string
		var output, message, reason, detail, created sql.NullString
		var durationMS int64
		if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.StepID, &kind, &status, &output, &message,
			&reason, &ev.Retryable, &durationMS, &detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = pipeline.Kind(kind)
		ev.Status = pipeline.StepStatus(status)
		ev.Output = output.String
		ev.Message = message.String
		ev.Reason = reason.String
		ev.Detail = detail.String
		ev.Duration = time.Duration(durationMS) * time.Millisecond
		ev.Time = parseTime(created)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Observer returns a pipeline.Observer that records every event. Write
// failures are logged and never interrupt the run.
func (s *Store) Observer(logger *slog.Logger) pipeline.Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return pipeline.ObserverFunc(func(ctx context.Context, ev pipeline.StatusEvent) {
		if err := s.RecordEvent(context.WithoutCancel(ctx), ev); err != nil {
			logger.Warn("failed to record step event",
				pflog.RunIDKey, ev.RunID, pflog.StepIDKey, ev.StepID, pflog.Error(err))
		}
	})
}

func eventDetail(ev pipeline.StatusEvent) (string, error) {
	var v any
	switch {
	case ev.Preview != nil:
		v = ev.Preview
	case ev.Content != "":
		v = map[string]any{"type": ev.ContentType, "content": ev.Content, "truncated": ev.Truncated}
	case ev.Upstream != "":
		v = map[string]any{"upstream": ev.Upstream}
	default:
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode event detail: %w", err)
	}
	return string(b), nil
}

// describe summarizes an artifact without its image bytes.
func describe(v artifact.Value) (string, error) {
	if v == nil {
		return "", nil
	}
	var out any
	switch a := v.(type) {
	case *artifact.Image:
		out = map[string]any{"type": a.ArtifactType(), "format": a.Format, "width": a.Width,
			"height": a.Height, "size": len(a.Bytes), "provenance": a.Provenance}
	case *artifact.Data:
		raw, truncated := a.Raw, false
		if len(raw) > pipeline.MaxContentSize {
			raw, truncated = raw[:pipeline.MaxContentSize], true
		}
		out = map[string]any{"type": a.ArtifactType(), "data_type": a.Type, "content": raw, "truncated": truncated}
	case *artifact.Collection:
		out = map[string]any{"type": a.ArtifactType(), "items": a.Len()}
	case *artifact.SaveResult:
		out = a
	default:
		out = map[string]any{"type": v.ArtifactType()}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode result detail: %w", err)
	}
	return string(b), nil
}
