package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/tombee/pixelflow/pkg/artifact"
)

// StepStatus is the status of a step in a progressive run.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started yet.
	StepStatusPending StepStatus = "pending"
	// StepStatusRunning indicates the step is executing.
	StepStatusRunning StepStatus = "running"
	// StepStatusCompleted indicates the step produced its outputs.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusError indicates the provider failed or a gate rejected the result.
	StepStatusError StepStatus = "error"
	// StepStatusSkipped indicates an upstream failure prevented the step from running.
	StepStatusSkipped StepStatus = "skipped"
)

// ReasonUpstreamFailed is the reason carried by skipped events.
const ReasonUpstreamFailed = "upstream_failed"

// MaxContentSize bounds the text/JSON content carried by a completed event.
const MaxContentSize = 4096

// Preview summarizes an image without carrying its bytes.
type Preview struct {
	MediaType string `json:"media_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Size      int    `json:"size"`
}

// StatusEvent is one transition in a progressive run.
type StatusEvent struct {
	RunID  string     `json:"run_id"`
	Seq    int        `json:"seq"`
	StepID string     `json:"step_id"`
	Kind   Kind       `json:"kind"`
	Status StepStatus `json:"status"`

	// Preview is set on completed image-producing steps.
	Preview *Preview `json:"preview,omitempty"`

	// Content is the text/JSON payload of a completed step, truncated to
	// MaxContentSize bytes.
	Content     string            `json:"content,omitempty"`
	ContentType artifact.DataType `json:"content_type,omitempty"`
	Truncated   bool              `json:"truncated,omitempty"`

	// Message is the error message or skip explanation.
	Message string `json:"message,omitempty"`

	// Reason is machine-readable: configuration, execution or gating for
	// errors; upstream_failed for skips.
	Reason string `json:"reason,omitempty"`

	// Upstream is the failed variable that caused a skip.
	Upstream string `json:"upstream,omitempty"`

	Retryable bool          `json:"retryable,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Time      time.Time     `json:"time"`
}

// Observer receives status events in the order they occur.
type Observer interface {
	OnStatus(ctx context.Context, event StatusEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event StatusEvent)

// OnStatus implements Observer.
func (f ObserverFunc) OnStatus(ctx context.Context, event StatusEvent) {
	f(ctx, event)
}

// emitter fans events out to observers and keeps the ordered log.
type emitter struct {
	mu        sync.Mutex
	runID     string
	observers []Observer
	events    []StatusEvent
}

func (e *emitter) emit(ctx context.Context, ev StatusEvent) {
	e.mu.Lock()
	ev.RunID = e.runID
	ev.Seq = len(e.events)
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.events = append(e.events, ev)
	observers := e.observers
	e.mu.Unlock()

	for _, o := range observers {
		o.OnStatus(ctx, ev)
	}
}

// describe fills the preview or content of a completed event.
func describe(ev *StatusEvent, v artifact.Value) {
	switch a := v.(type) {
	case *artifact.Image:
		ev.Preview = &Preview{
			MediaType: a.MediaType(),
			Width:     a.Width,
			Height:    a.Height,
			Size:      len(a.Bytes),
		}
	case *artifact.Data:
		ev.ContentType = a.Type
		ev.Content, ev.Truncated = truncate(a.Raw, MaxContentSize)
	case *artifact.SaveResult:
		ev.ContentType = artifact.DataText
		ev.Content = a.Location
	case *artifact.Collection:
		ev.ContentType = artifact.DataText
		ev.Content = artifact.Describe(a)
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut], true
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
