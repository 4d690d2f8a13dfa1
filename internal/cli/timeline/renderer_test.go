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

package timeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/pixelflow/pkg/pipeline"
)

func event(step string, status pipeline.StepStatus, at time.Time) pipeline.StatusEvent {
	return pipeline.StatusEvent{StepID: step, Kind: pipeline.KindGenerate, Status: status, Time: at}
}

func TestSpans(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []pipeline.StatusEvent{
		event("generate:a", pipeline.StepStatusPending, t0.Add(-time.Second)),
		event("generate:a", pipeline.StepStatusRunning, t0),
		event("generate:b", pipeline.StepStatusRunning, t0.Add(10*time.Millisecond)),
		event("generate:a", pipeline.StepStatusCompleted, t0.Add(100*time.Millisecond)),
		event("generate:b", pipeline.StepStatusError, t0.Add(50*time.Millisecond)),
		event("save:a", pipeline.StepStatusSkipped, t0.Add(60*time.Millisecond)),
		event("save:b", pipeline.StepStatusRunning, t0.Add(70*time.Millisecond)),
	}

	spans := Spans(events)
	require.Len(t, spans, 4)

	assert.Equal(t, "generate:a", spans[0].StepID)
	assert.Equal(t, pipeline.StepStatusCompleted, spans[0].Status)
	assert.Equal(t, 100*time.Millisecond, spans[0].Duration())

	assert.Equal(t, pipeline.StepStatusError, spans[1].Status)
	assert.Equal(t, 40*time.Millisecond, spans[1].Duration())

	assert.Equal(t, pipeline.StepStatusSkipped, spans[2].Status)
	assert.Zero(t, spans[2].Duration())

	assert.Equal(t, pipeline.StepStatusRunning, spans[3].Status)
	assert.Equal(t, t0.Add(100*time.Millisecond), spans[3].EndTime, "unfinished steps end at the last event")
}

func TestRenderer_Render(t *testing.T) {
	t0 := time.Now()
	events := []pipeline.StatusEvent{
		event("generate:cover", pipeline.StepStatusRunning, t0),
		event("generate:cover", pipeline.StepStatusCompleted, t0.Add(200*time.Millisecond)),
		event("save:cover", pipeline.StepStatusRunning, t0.Add(200*time.Millisecond)),
		event("save:cover", pipeline.StepStatusError, t0.Add(300*time.Millisecond)),
	}

	r, err := NewRendererWidth(100)
	require.NoError(t, err)

	out, err := r.Render("covers", events)
	require.NoError(t, err)

	assert.Contains(t, out, "covers")
	assert.Contains(t, out, "generate:cover")
	assert.Contains(t, out, StatusIconOK)
	assert.Contains(t, out, StatusIconError)
	assert.Contains(t, out, "300ms")
	assert.True(t, strings.HasPrefix(out, "┌"))
	assert.Equal(t, 4+len(Spans(events)), strings.Count(out, "\n"))
}

func TestRenderer_Errors(t *testing.T) {
	_, err := NewRendererWidth(40)
	assert.Error(t, err)

	r, err := NewRendererWidth(80)
	require.NoError(t, err)
	_, err = r.Render("empty", nil)
	assert.Error(t, err)
}

func TestRenderer_ZeroDuration(t *testing.T) {
	t0 := time.Now()
	r, err := NewRendererWidth(80)
	require.NoError(t, err)

	out, err := r.Render("instant", []pipeline.StatusEvent{
		event("collect:all", pipeline.StepStatusSkipped, t0),
	})
	require.NoError(t, err)
	assert.Contains(t, out, StatusIconSkipped)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500µs", formatDuration(500*time.Microsecond))
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.0m", formatDuration(2*time.Minute))
}
