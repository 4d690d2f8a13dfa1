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
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/pixelflow/internal/commands/shared"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/pipeline/definition"
)

// inputs merges --var, --text and the expansion of every --glob.
func (r *runner) inputs() (shared.Inputs, error) {
	images := shared.VarsFlag{}
	for name, path := range r.opts.inputs.Images {
		images[name] = path
	}

	names := make([]string, 0, len(r.opts.globs))
	for name := range r.opts.globs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		matches, err := expandGlob(name, r.opts.globs[name])
		if err != nil {
			return shared.Inputs{}, err
		}
		for varName, path := range matches {
			if _, dup := images[varName]; dup {
				return shared.Inputs{}, shared.NewInvalidPipelineError("invalid inputs", &pferrors.ValidationError{
					Field:   "--glob " + name,
					Message: fmt.Sprintf("variable %q is also set by --var", varName),
				})
			}
			images[varName] = path
		}
	}

	return shared.Inputs{Images: images, Text: r.opts.inputs.Text}, nil
}

// expandGlob matches pattern and names the files name_0, name_1, ... in
// lexical path order. A pattern that matches nothing is an error.
func expandGlob(name, pattern string) (map[string]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, shared.NewInvalidPipelineError("invalid inputs", &pferrors.ValidationError{
			Field:   "--glob " + name,
			Message: fmt.Sprintf("bad pattern %q: %v", pattern, err),
		})
	}
	if len(matches) == 0 {
		return nil, shared.NewInvalidPipelineError("invalid inputs", &pferrors.ValidationError{
			Field:      "--glob " + name,
			Message:    fmt.Sprintf("pattern %q matches no files", pattern),
			Suggestion: "quote the pattern so the shell does not expand it, and use ** to match across directories",
		})
	}
	sort.Strings(matches)

	out := make(map[string]string, len(matches))
	for i, m := range matches {
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, err
		}
		out[fmt.Sprintf("%s_%d", name, i)] = abs
	}
	return out, nil
}

// watchPaths lists the definition file and every image input it reads.
func (r *runner) watchPaths() ([]string, error) {
	in, err := r.inputs()
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{r.path: {}}
	paths := []string{r.path}
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}

	if def, err := definition.Load(r.path); err == nil {
		for _, input := range def.Inputs {
			if input.Path == "" {
				continue
			}
			p := input.Path
			if !filepath.IsAbs(p) {
				p = filepath.Join(def.Dir, p)
			}
			add(p)
		}
	}
	for _, p := range in.Images {
		add(p)
	}
	sort.Strings(paths[1:])
	return paths, nil
}
