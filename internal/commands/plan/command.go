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

// Package plan implements the plan command, which prints the execution
// waves of a pipeline without running it.
package plan

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/pixelflow/internal/commands/completion"
	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/pkg/pipeline"
	"github.com/tombee/pixelflow/pkg/provider"
)

// NewCommand creates the plan command
func NewCommand() *cobra.Command {
	var (
		in     = shared.Inputs{Images: shared.VarsFlag{}}
		linear bool
	)

	cmd := &cobra.Command{
		Use:   "plan <pipeline>",
		Short: "Show the execution waves of a pipeline",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Plan schedules a pipeline and prints its waves. Steps in the same wave
have no dependency on each other and run concurrently in waves mode.

With --linear the order used by progressive mode is printed instead.`,
		Example: `  pixelflow plan covers.yaml
  pixelflow plan covers.yaml --linear
  pixelflow plan covers.yaml --json | jq '.waves | length'`,
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		ValidArgsFunction: completion.CompletePipelineFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args[0], in, linear)
		},
	}

	cmd.Flags().Var(in.Images, "var", "Image input as name=path (repeatable)")
	cmd.Flags().StringToStringVar(&in.Text, "text", nil, "Text input as name=value (repeatable)")
	cmd.Flags().BoolVar(&linear, "linear", false, "Print the progressive execution order")

	return cmd
}

// Step is one scheduled step.
type Step struct {
	ID           string        `json:"id"`
	Kind         pipeline.Kind `json:"kind"`
	Provider     string        `json:"provider,omitempty"`
	Dependencies []string      `json:"dependencies,omitempty"`
	After        []string      `json:"after,omitempty"`
	Outputs      []string      `json:"outputs,omitempty"`
}

// Wave is a batch of steps that run together.
type Wave struct {
	Index int    `json:"index"`
	Steps []Step `json:"steps"`
}

func runPlan(cmd *cobra.Command, path string, in shared.Inputs, linear bool) error {
	_, p, err := shared.LoadPipeline(path, in)
	if err != nil {
		return err
	}

	// Planning never dispatches, so an empty registry is enough.
	waves, err := shared.PlanPipeline(pipeline.NewEngine(provider.NewRegistry()), p)
	if err != nil {
		return err
	}

	plan := describe(waves)

	if shared.GetJSON() {
		resp := struct {
			shared.JSONResponse
			Pipeline string   `json:"pipeline"`
			Waves    []Wave   `json:"waves"`
			Order    []string `json:"order"`
		}{
			JSONResponse: shared.NewJSONResponse("plan", true),
			Pipeline:     p.Name,
			Waves:        plan,
		}
		for _, node := range pipeline.Linearize(waves) {
			resp.Order = append(resp.Order, node.ID)
		}
		return shared.EmitJSONTo(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (%d steps, %d waves)\n", shared.RenderLabel("Pipeline:"), p.Name, len(p.Steps), len(waves))

	if linear {
		for i, node := range pipeline.Linearize(waves) {
			fmt.Fprintf(out, "  %2d. %s\n", i+1, stepLine(toStep(node)))
		}
		return nil
	}

	for _, w := range plan {
		fmt.Fprintf(out, "\n%s\n", shared.RenderLabel(fmt.Sprintf("Wave %d", w.Index)))
		for _, s := range w.Steps {
			fmt.Fprintf(out, "  %s\n", stepLine(s))
		}
	}
	return nil
}

func describe(waves []pipeline.ExecutionWave) []Wave {
	out := make([]Wave, len(waves))
	for i, w := range waves {
		out[i] = Wave{Index: w.Index, Steps: make([]Step, len(w.Nodes))}
		for j, node := range w.Nodes {
			out[i].Steps[j] = toStep(node)
		}
	}
	return out
}

func toStep(node *pipeline.StepNode) Step {
	s := Step{
		ID:           node.ID,
		Kind:         node.Kind(),
		Dependencies: node.Dependencies,
		After:        node.After,
		Outputs:      node.Outputs,
	}
	for _, ref := range shared.ProviderRefs([]pipeline.ExecutionWave{{Nodes: []*pipeline.StepNode{node}}}) {
		s.Provider = ref.Name
	}
	return s
}

func stepLine(s Step) string {
	var b strings.Builder
	b.WriteString(s.ID)
	label := string(s.Kind)
	if s.Provider != "" {
		label += ": " + s.Provider
	}
	b.WriteString(" " + shared.Muted.Render("("+label+")"))
	if len(s.Dependencies) > 0 {
		b.WriteString(" <- " + strings.Join(s.Dependencies, ", "))
	}
	if len(s.After) > 0 {
		b.WriteString(" " + shared.Muted.Render("after "+strings.Join(s.After, ", ")))
	}
	if len(s.Outputs) > 0 {
		b.WriteString(" -> " + strings.Join(s.Outputs, ", "))
	}
	return b.String()
}
