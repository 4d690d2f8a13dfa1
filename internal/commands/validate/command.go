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

package validate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/pixelflow/internal/commands/completion"
	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/pkg/pipeline"
	"github.com/tombee/pixelflow/pkg/provider"
)

// loadEnv is replaced in tests.
var loadEnv = shared.LoadEnv

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	var (
		in            = shared.Inputs{Images: shared.VarsFlag{}}
		skipProviders bool
	)

	cmd := &cobra.Command{
		Use:   "validate <pipeline>",
		Short: "Validate a pipeline definition",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Validate checks that a pipeline definition parses, that every step is
well formed, that the steps can be scheduled (no cycles, no variable read
before something produces it) and that every referenced provider is
registered. Nothing is executed.

Variables supplied at run time with --var or --text can be given here too
so steps reading them schedule.

See also: pixelflow plan, pixelflow run`,
		Example: `  # Validate a YAML or HCL definition
  pixelflow validate covers.yaml

  # Supply a run-time image input
  pixelflow validate covers.hcl --var source=photo.png

  # JSON output for tooling
  pixelflow validate covers.yaml --json | jq '.pipeline'`,
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		ValidArgsFunction: completion.CompletePipelineFiles,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], in, skipProviders)
		},
	}

	cmd.Flags().Var(in.Images, "var", "Image input as name=path (repeatable)")
	cmd.Flags().StringToStringVar(&in.Text, "text", nil, "Text input as name=value (repeatable)")
	cmd.Flags().BoolVar(&skipProviders, "skip-providers", false, "Do not check that providers are registered")

	return cmd
}

// Summary describes a valid pipeline.
type Summary struct {
	Name      string               `json:"name"`
	Steps     int                  `json:"steps"`
	Waves     int                  `json:"waves"`
	Inputs    []string             `json:"inputs"`
	Providers []shared.ProviderRef `json:"providers"`
	Available map[string][]string  `json:"available,omitempty"`
}

func runValidate(cmd *cobra.Command, path string, in shared.Inputs, skipProviders bool) error {
	useJSON := shared.GetJSON()

	errs, summary := check(cmd, path, in, skipProviders)

	if len(errs) > 0 {
		if useJSON {
			jsonErrs := make([]shared.JSONError, len(errs))
			for i, err := range errs {
				jsonErrs[i] = shared.JSONErrorFrom(err)
			}
			if err := shared.EmitJSONError(cmd.OutOrStdout(), "validate", jsonErrs); err != nil {
				return err
			}
			return &shared.ExitError{Code: shared.ExitInvalidPipeline}
		}
		for _, err := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: error: %v\n", path, err)
			if s := shared.Suggestion(err); s != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "  Suggestion: %s\n", s)
			}
		}
		return &shared.ExitError{Code: shared.ExitInvalidPipeline, Message: "validation failed"}
	}

	if useJSON {
		return shared.EmitJSONTo(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Pipeline *Summary `json:"pipeline"`
		}{shared.NewJSONResponse("validate", true), summary})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validation Results:")
	fmt.Fprintln(out, "  "+shared.RenderOK("Definition parsed"))
	fmt.Fprintln(out, "  "+shared.RenderOK(fmt.Sprintf("%d steps schedule into %d waves", summary.Steps, summary.Waves)))
	if skipProviders {
		fmt.Fprintln(out, "  "+shared.RenderWarn("Provider check skipped"))
	} else {
		fmt.Fprintln(out, "  "+shared.RenderOK("All providers registered"))
	}

	if shared.GetVerbose() {
		if len(summary.Inputs) > 0 {
			fmt.Fprintf(out, "\n%s %v\n", shared.RenderLabel("Inputs:"), summary.Inputs)
		}
		fmt.Fprintf(out, "\n%s\n", shared.RenderLabel("Registered providers:"))
		for _, cat := range categories {
			fmt.Fprintf(out, "  %-10s %v\n", cat, summary.Available[string(cat)])
		}
	}
	return nil
}

var categories = []provider.Category{
	provider.CategoryGenerator,
	provider.CategoryTransform,
	provider.CategoryVision,
	provider.CategoryText,
	provider.CategorySaver,
}

// check runs every validation stage and returns all problems found. Later
// stages run only when earlier ones pass.
func check(cmd *cobra.Command, path string, in shared.Inputs, skipProviders bool) ([]error, *Summary) {
	def, p, err := shared.LoadPipeline(path, in)
	if err != nil {
		return []error{err}, nil
	}

	env, err := loadEnv()
	if err != nil {
		return []error{err}, nil
	}
	reg, _, err := env.Registry(cmd.Context(), def.Dir)
	if err != nil {
		return []error{err}, nil
	}

	waves, err := shared.PlanPipeline(pipeline.NewEngine(reg).WithLogger(env.Logger), p)
	if err != nil {
		return splitPlanError(err), nil
	}

	if !skipProviders {
		if errs := shared.CheckProviders(reg, waves); len(errs) > 0 {
			return errs, nil
		}
	}

	summary := &Summary{
		Name:      p.Name,
		Steps:     len(p.Steps),
		Waves:     len(waves),
		Inputs:    make([]string, 0, len(p.Initial)),
		Providers: shared.ProviderRefs(waves),
		Available: make(map[string][]string, len(categories)),
	}
	for name := range p.Initial {
		summary.Inputs = append(summary.Inputs, name)
	}
	sort.Strings(summary.Inputs)
	for _, cat := range categories {
		summary.Available[string(cat)] = reg.List(cat)
	}
	return nil, summary
}

// splitPlanError reports each unschedulable step on its own line.
func splitPlanError(err error) []error {
	var unsatisfied *pipeline.UnsatisfiedError
	if !errors.As(err, &unsatisfied) || len(unsatisfied.Steps) < 2 {
		return []error{err}
	}
	errs := make([]error, len(unsatisfied.Steps))
	for i, s := range unsatisfied.Steps {
		errs[i] = shared.NewInvalidPipelineError("invalid pipeline",
			&pipeline.UnsatisfiedError{Steps: []pipeline.UnsatisfiedStep{s}})
	}
	return errs
}
