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

// Package timeline renders an ASCII timeline of a pipeline run from its
// status events.
package timeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/tombee/pixelflow/pkg/pipeline"
)

const (
	// MinTerminalWidth is the minimum supported terminal width
	MinTerminalWidth = 80
	// DefaultBarWidth is the default width for duration bars
	DefaultBarWidth = 40

	StatusIconOK      = "✓"
	StatusIconError   = "✗"
	StatusIconSkipped = "-"
	StatusIconPending = "…"
)

// Span is one step's time on the timeline.
type Span struct {
	StepID    string
	Kind      pipeline.Kind
	StartTime time.Time
	EndTime   time.Time
	Status    pipeline.StepStatus
}

// Duration returns how long the step ran.
func (s Span) Duration() time.Duration {
	if s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Renderer renders ASCII timelines from step spans.
type Renderer struct {
	Width    int
	BarWidth int
}

// NewRenderer creates a renderer sized to the terminal on stdout.
func NewRenderer() (*Renderer, error) {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width = 100
	}
	return NewRendererWidth(width)
}

// NewRendererWidth creates a renderer for a fixed width.
func NewRendererWidth(width int) (*Renderer, error) {
	if width < MinTerminalWidth {
		return nil, fmt.Errorf("terminal width %d is too narrow (minimum %d columns)", width, MinTerminalWidth)
	}

	// "│ step_name ██████░░░░  duration  status │"
	barWidth := width - 40
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < DefaultBarWidth {
		barWidth = DefaultBarWidth
	}

	return &Renderer{Width: width, BarWidth: barWidth}, nil
}

// Spans pairs each step's first running event with its terminal event.
// Pending events are ignored. Steps skipped without running span a single
// instant. Steps that never reached a terminal state end at the last event.
func Spans(events []pipeline.StatusEvent) []Span {
	var (
		spans []Span
		index = make(map[string]int)
		last  time.Time
	)

	for _, ev := range events {
		if ev.Status == pipeline.StepStatusPending {
			continue
		}
		if ev.Time.After(last) {
			last = ev.Time
		}
		i, ok := index[ev.StepID]
		if !ok {
			index[ev.StepID] = len(spans)
			spans = append(spans, Span{
				StepID:    ev.StepID,
				Kind:      ev.Kind,
				StartTime: ev.Time,
				Status:    ev.Status,
			})
			i = len(spans) - 1
		}
		switch ev.Status {
		case pipeline.StepStatusCompleted, pipeline.StepStatusError, pipeline.StepStatusSkipped:
			spans[i].EndTime = ev.Time
			spans[i].Status = ev.Status
		}
	}

	for i := range spans {
		if spans[i].EndTime.IsZero() {
			spans[i].EndTime = last
		}
	}
	return spans
}

// Render generates an ASCII timeline for a run.
func (r *Renderer) Render(pipelineName string, events []pipeline.StatusEvent) (string, error) {
	spans := Spans(events)
	if len(spans) == 0 {
		return "", fmt.Errorf("no events to render")
	}

	minTime, maxTime := bounds(spans)
	total := maxTime.Sub(minTime)

	var sb strings.Builder

	border := strings.Repeat("─", r.Width-2)
	sb.WriteString("┌" + border + "┐\n")
	fmt.Fprintf(&sb, "│ Pipeline: %-*s Total: %8s │\n",
		r.Width-30,
		truncate(pipelineName, r.Width-30),
		formatDuration(total))
	sb.WriteString("├" + border + "┤\n")

	for _, span := range spans {
		sb.WriteString(r.renderSpan(span, minTime, total))
	}

	sb.WriteString("└" + border + "┘\n")
	return sb.String(), nil
}

func bounds(spans []Span) (time.Time, time.Time) {
	minTime := spans[0].StartTime
	maxTime := spans[0].EndTime
	for _, span := range spans {
		if span.StartTime.Before(minTime) {
			minTime = span.StartTime
		}
		if span.EndTime.After(maxTime) {
			maxTime = span.EndTime
		}
	}
	return minTime, maxTime
}

// renderSpan generates a timeline line for a single span.
func (r *Renderer) renderSpan(span Span, minTime time.Time, total time.Duration) string {
	startPos, barLength := 0, r.BarWidth
	if total > 0 {
		startPos = int(float64(span.StartTime.Sub(minTime)) / float64(total) * float64(r.BarWidth))
		barLength = int(float64(span.Duration()) / float64(total) * float64(r.BarWidth))
	}
	if startPos >= r.BarWidth {
		startPos = r.BarWidth - 1
	}
	if barLength < 1 {
		barLength = 1
	}
	if startPos+barLength > r.BarWidth {
		barLength = r.BarWidth - startPos
	}

	fill := '█'
	if span.Status == pipeline.StepStatusSkipped {
		fill = '▒'
	}
	bar := make([]rune, r.BarWidth)
	for i := range bar {
		if i >= startPos && i < startPos+barLength {
			bar[i] = fill
		} else {
			bar[i] = '░'
		}
	}

	nameWidth := r.Width - r.BarWidth - 22
	if nameWidth < 10 {
		nameWidth = 10
	}

	return fmt.Sprintf("│ %-*s %s  %8s  %s  │\n",
		nameWidth,
		truncate(span.StepID, nameWidth),
		string(bar),
		formatDuration(span.Duration()),
		icon(span.Status),
	)
}

func icon(status pipeline.StepStatus) string {
	switch status {
	case pipeline.StepStatusCompleted:
		return StatusIconOK
	case pipeline.StepStatusError:
		return StatusIconError
	case pipeline.StepStatusSkipped:
		return StatusIconSkipped
	default:
		return StatusIconPending
	}
}

// truncate shortens a string to maxLen with ellipsis if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
