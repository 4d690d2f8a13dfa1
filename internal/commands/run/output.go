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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

// StepResult is one completed step in JSON output.
type StepResult struct {
	StepID string        `json:"step_id"`
	Kind   pipeline.Kind `json:"kind"`
	Output string        `json:"output,omitempty"`
	Value  string        `json:"value"`
}

// WavesResponse is the JSON output of a waves run.
type WavesResponse struct {
	shared.JSONResponse
	RunID      string             `json:"run_id"`
	Pipeline   string             `json:"pipeline"`
	Status     pipeline.RunStatus `json:"status"`
	Waves      int                `json:"waves"`
	DurationMS int64              `json:"duration_ms"`
	Results    []StepResult       `json:"results"`
}

func newWavesResponse(res *pipeline.RunResult) WavesResponse {
	resp := WavesResponse{
		JSONResponse: shared.NewJSONResponse("run", true),
		RunID:        res.RunID,
		Pipeline:     res.Pipeline,
		Status:       pipeline.RunSucceeded,
		Waves:        res.Waves,
		DurationMS:   res.Duration.Milliseconds(),
		Results:      make([]StepResult, len(res.Results)),
	}
	for i, r := range res.Results {
		resp.Results[i] = StepResult{StepID: r.StepID, Kind: r.Kind, Output: r.Output, Value: artifact.Describe(r.Value)}
	}
	return resp
}

// ProgressiveResponse is the JSON output of a progressive run.
type ProgressiveResponse struct {
	shared.JSONResponse
	RunID      string                         `json:"run_id"`
	Pipeline   string                         `json:"pipeline"`
	Status     pipeline.RunStatus             `json:"status"`
	Completed  int                            `json:"completed"`
	Failed     int                            `json:"failed"`
	Skipped    int                            `json:"skipped"`
	DurationMS int64                          `json:"duration_ms"`
	Steps      map[string]pipeline.StepStatus `json:"steps"`
	Order      []string                       `json:"order"`
	Events     []pipeline.StatusEvent         `json:"events"`
}

func newProgressiveResponse(res *pipeline.ProgressiveResult) ProgressiveResponse {
	return ProgressiveResponse{
		JSONResponse: shared.NewJSONResponse("run", res.Status == pipeline.RunSucceeded),
		RunID:        res.RunID,
		Pipeline:     res.Pipeline,
		Status:       res.Status,
		Completed:    res.Completed,
		Failed:       res.Failed,
		Skipped:      res.Skipped,
		DurationMS:   res.Duration.Milliseconds(),
		Steps:        res.Steps,
		Order:        res.Order,
		Events:       res.Events,
	}
}

// printResults lists the results of a waves run.
func printResults(w io.Writer, res *pipeline.RunResult) {
	width := 0
	for _, r := range res.Results {
		width = max(width, len(r.StepID))
	}
	for _, r := range res.Results {
		fmt.Fprintf(w, "  %s %s%s  %s\n",
			shared.StepSymbol(pipeline.StepStatusCompleted),
			r.StepID,
			strings.Repeat(" ", width-len(r.StepID)),
			shared.Muted.Render(artifact.Describe(r.Value)))
	}
	fmt.Fprintf(w, "\n%s %d steps in %d waves %s\n",
		shared.RenderRunStatus(pipeline.RunSucceeded),
		len(res.Results), res.Waves,
		shared.Muted.Render("in "+res.Duration.Round(time.Millisecond).String()))
}
