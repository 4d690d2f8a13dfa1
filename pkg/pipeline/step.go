package pipeline

import (
	"fmt"

	"github.com/tombee/pixelflow/pkg/provider"
)

// Kind identifies the type of a step.
type Kind string

const (
	KindGenerate  Kind = "generate"
	KindTransform Kind = "transform"
	KindSave      Kind = "save"
	KindVision    Kind = "vision"
	KindText      Kind = "text"
	KindFanOut    Kind = "fan-out"
	KindCollect   Kind = "collect"
	KindRouter    Kind = "router"
)

// Kinds lists every step kind.
var Kinds = []Kind{KindGenerate, KindTransform, KindSave, KindVision, KindText, KindFanOut, KindCollect, KindRouter}

// Step is a declarative unit of work. The set of implementations is closed;
// the dispatcher switches over the concrete types below.
type Step interface {
	// Kind returns the step kind.
	Kind() Kind

	// StepName returns the optional user-assigned name.
	StepName() string

	step()
}

// GenerateStep produces an image from a generator provider.
type GenerateStep struct {
	Name     string
	Provider string
	Params   provider.Params
	Output   string
}

// TransformStep applies an operation of a transform provider to an image.
type TransformStep struct {
	Name      string
	Provider  string
	Operation string
	Input     string
	Params    provider.Params
	Output    string
}

// SaveStep persists an image through a saver. Output is optional; when set,
// the save result is stored under that name.
type SaveStep struct {
	Name        string
	Provider    string
	Input       string
	Destination string
	Params      provider.Params
	Output      string
}

// VisionStep analyzes an image and produces a text or JSON artifact.
type VisionStep struct {
	Name     string
	Provider string
	Input    string
	Params   provider.Params
	Output   string
}

// TextStep produces a text or JSON artifact. Input is an optional context
// artifact handed to the provider.
type TextStep struct {
	Name     string
	Provider string
	Input    string
	Params   provider.Params
	Output   string
}

// FanOutMode selects how a fan-out splits its input.
type FanOutMode string

const (
	// FanOutCount copies the input by reference into every output.
	FanOutCount FanOutMode = "count"
	// FanOutArray assigns array items to outputs in order.
	FanOutArray FanOutMode = "array"
)

// FanOutStep copies or splits one input into several named outputs.
type FanOutStep struct {
	Name  string
	Input string
	Mode  FanOutMode

	// Count is the number of branches in count mode. Zero means len(Outputs).
	Count int

	// Property names the array inside a JSON data input in array mode. It is
	// either a top-level key or a jq path starting with ".". Empty means the
	// input itself is the array.
	Property string

	Outputs []string
}

// WaitMode selects how a collect step treats missing inputs.
type WaitMode string

const (
	// WaitAll requires every input to be present.
	WaitAll WaitMode = "all"
	// WaitAvailable gathers whatever inputs exist at execution time.
	WaitAvailable WaitMode = "available"
)

// CollectStep gathers named inputs into one ordered collection.
type CollectStep struct {
	Name   string
	Inputs []string
	Output string
	Wait   WaitMode

	// MinRequired is the minimum number of present inputs in WaitAvailable
	// mode. Zero disables the check.
	MinRequired int
}

// SelectBy selects how a router picks its candidate.
type SelectBy string

const (
	// SelectIndex reads a numeric index from the selection artifact.
	SelectIndex SelectBy = "index"
	// SelectProperty matches a candidate property against a selection value.
	SelectProperty SelectBy = "property"
)

// RouterStep picks one element of a collection using separate selection data.
type RouterStep struct {
	Name       string
	Candidates string
	Selection  string
	Output     string
	By         SelectBy

	// Field is the selection field to read: "index" or "value" by default.
	// A leading "." makes it a jq path.
	Field string

	// Property is the candidate property compared in SelectProperty mode.
	Property string
}

func (s *GenerateStep) Kind() Kind  { return KindGenerate }
func (s *TransformStep) Kind() Kind { return KindTransform }
func (s *SaveStep) Kind() Kind      { return KindSave }
func (s *VisionStep) Kind() Kind    { return KindVision }
func (s *TextStep) Kind() Kind      { return KindText }
func (s *FanOutStep) Kind() Kind    { return KindFanOut }
func (s *CollectStep) Kind() Kind   { return KindCollect }
func (s *RouterStep) Kind() Kind    { return KindRouter }

func (s *GenerateStep) StepName() string  { return s.Name }
func (s *TransformStep) StepName() string { return s.Name }
func (s *SaveStep) StepName() string      { return s.Name }
func (s *VisionStep) StepName() string    { return s.Name }
func (s *TextStep) StepName() string      { return s.Name }
func (s *FanOutStep) StepName() string    { return s.Name }
func (s *CollectStep) StepName() string   { return s.Name }
func (s *RouterStep) StepName() string    { return s.Name }

func (*GenerateStep) step()  {}
func (*TransformStep) step() {}
func (*SaveStep) step()      {}
func (*VisionStep) step()    {}
func (*TextStep) step()      {}
func (*FanOutStep) step()    {}
func (*CollectStep) step()   {}
func (*RouterStep) step()    {}

// NewFanOutCount returns a count-mode fan-out that copies input into
// prefix_0 .. prefix_{n-1}. A negative n declares no outputs and is
// rejected by BuildGraph.
func NewFanOutCount(input, prefix string, n int) *FanOutStep {
	outputs := make([]string, max(n, 0))
	for i := range outputs {
		outputs[i] = fmt.Sprintf("%s_%d", prefix, i)
	}
	return &FanOutStep{Input: input, Mode: FanOutCount, Count: n, Outputs: outputs}
}

// NewFanOutArray returns an array-mode fan-out over property of input.
func NewFanOutArray(input, property string, outputs ...string) *FanOutStep {
	return &FanOutStep{Input: input, Mode: FanOutArray, Property: property, Outputs: outputs}
}

// NewCollect returns a collect step that requires every input.
func NewCollect(output string, inputs ...string) *CollectStep {
	return &CollectStep{Inputs: inputs, Output: output, Wait: WaitAll}
}

// NewCollectAvailable returns a best-effort collect step.
func NewCollectAvailable(output string, minRequired int, inputs ...string) *CollectStep {
	return &CollectStep{Inputs: inputs, Output: output, Wait: WaitAvailable, MinRequired: minRequired}
}
