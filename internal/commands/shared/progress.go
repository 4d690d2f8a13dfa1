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

package shared

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tombee/pixelflow/internal/cli/format"
	"github.com/tombee/pixelflow/pkg/pipeline"
)

// maxNameLen is the column width for step IDs in progress lines.
const maxNameLen = 35

// ProgressDisplay prints progressive run events as they arrive. It is a
// pipeline.Observer and is safe for concurrent use.
type ProgressDisplay struct {
	mu      sync.Mutex
	w       io.Writer
	isTTY   bool
	verbose bool

	pipelineName string
	runID        string
	counts       map[pipeline.StepStatus]int
}

// NewProgressDisplay creates a display writing to w. Running events are
// only printed in verbose mode.
func NewProgressDisplay(w io.Writer, isTTY, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		w:       w,
		isTTY:   isTTY,
		verbose: verbose,
		counts:  make(map[pipeline.StepStatus]int),
	}
}

// Start prints the run header.
func (p *ProgressDisplay) Start(pipelineName, runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pipelineName = pipelineName
	p.runID = runID

	header := fmt.Sprintf("Running pipeline: %s", pipelineName)
	if runID != "" {
		header += " " + Muted.Render("("+runID+")")
	}
	fmt.Fprintln(p.w, header)
	fmt.Fprintln(p.w)
}

// OnStatus implements pipeline.Observer.
func (p *ProgressDisplay) OnStatus(_ context.Context, ev pipeline.StatusEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[ev.Status]++

	switch ev.Status {
	case pipeline.StepStatusRunning:
		if p.verbose {
			fmt.Fprintf(p.w, "  %s %s...\n", StepSymbol(ev.Status), ev.StepID)
		}
	case pipeline.StepStatusCompleted:
		p.printLine(ev, Muted.Render("("+formatDuration(ev.Duration)+")"))
		p.printDetail(ev)
	case pipeline.StepStatusError:
		msg := ev.Message
		if ev.Retryable {
			msg += " " + Muted.Render("(retryable)")
		}
		p.printLine(ev, StatusError.Render(msg))
	case pipeline.StepStatusSkipped:
		msg := "skipped"
		if ev.Upstream != "" {
			msg = fmt.Sprintf("skipped: upstream %s failed", ev.Upstream)
		}
		p.printLine(ev, Muted.Render(msg))
	}
}

func (p *ProgressDisplay) printLine(ev pipeline.StatusEvent, suffix string) {
	name := ev.StepID
	if len(name) > maxNameLen {
		name = name[:maxNameLen-3] + "..."
	}
	padding := maxNameLen - len(name)
	if padding < 1 {
		padding = 1
	}
	fmt.Fprintf(p.w, "  %s %s%s%s\n", StepSymbol(ev.Status), name, strings.Repeat(" ", padding), suffix)
}

// printDetail prints the preview of an image result or the content of a
// data result, indented under the step line.
func (p *ProgressDisplay) printDetail(ev pipeline.StatusEvent) {
	switch {
	case ev.Preview != nil:
		detail := ev.Preview.MediaType
		if ev.Preview.Width > 0 && ev.Preview.Height > 0 {
			detail += fmt.Sprintf(" %dx%d", ev.Preview.Width, ev.Preview.Height)
		}
		detail += " " + format.Bytes(int64(ev.Preview.Size))
		fmt.Fprintf(p.w, "    %s %s\n", Muted.Render("│"), detail)
	case ev.Content != "" && (p.verbose || !p.isTTY):
		content := format.Content(ev.Content, ev.ContentType, p.isTTY)
		if ev.Truncated {
			content += "\n" + Muted.Render("[truncated]")
		}
		for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
			fmt.Fprintf(p.w, "    %s %s\n", Muted.Render("│"), line)
		}
	}
}

// Finish prints the final status line.
func (p *ProgressDisplay) Finish(status pipeline.RunStatus, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w)
	summary := fmt.Sprintf("%d completed, %d failed, %d skipped",
		p.counts[pipeline.StepStatusCompleted],
		p.counts[pipeline.StepStatusError],
		p.counts[pipeline.StepStatusSkipped])

	fmt.Fprintf(p.w, "%s %s %s\n", RenderRunStatus(status), summary, Muted.Render("in "+formatDuration(d)))
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := d.Seconds() - float64(minutes*60)
	return fmt.Sprintf("%dm %.0fs", minutes, seconds)
}
