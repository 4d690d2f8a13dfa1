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

package run

import (
	"context"
	"log/slog"

	"github.com/tombee/pixelflow/internal/history"
	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

// recorder writes runs to the history store. Failures are logged and never
// fail the run. A nil store disables recording.
type recorder struct {
	store  *history.Store
	logger *slog.Logger
}

func (r *recorder) start(ctx context.Context, run *history.Run) {
	if r.store == nil {
		return
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		r.logger.Warn("failed to record run", slog.String(pflog.RunIDKey, run.ID), pflog.Error(err))
	}
}

func (r *recorder) observer() pipeline.Observer {
	if r.store == nil {
		return nil
	}
	return r.store.Observer(r.logger)
}

func (r *recorder) results(ctx context.Context, runID string, results []pipeline.PipelineResult) {
	if r.store == nil {
		return
	}
	if err := r.store.RecordResults(ctx, runID, results); err != nil {
		r.logger.Warn("failed to record results", slog.String(pflog.RunIDKey, runID), pflog.Error(err))
	}
}

// finish records the terminal state even when ctx was cancelled.
func (r *recorder) finish(ctx context.Context, runID string, sum history.Summary) {
	if r.store == nil {
		return
	}
	if err := r.store.FinishRun(context.WithoutCancel(ctx), runID, sum); err != nil {
		r.logger.Warn("failed to finish run", slog.String(pflog.RunIDKey, runID), pflog.Error(err))
	}
}

func (r *recorder) close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
