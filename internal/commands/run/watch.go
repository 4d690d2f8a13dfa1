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
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/internal/watch"
)

// watch runs the pipeline, then again after every change to the
// definition or its input files, until ctx is cancelled. Run failures are
// reported and do not stop watching.
func (r *runner) watch(ctx context.Context) error {
	paths, err := r.watchPaths()
	if err != nil {
		return err
	}

	w, err := watch.New(watch.Config{Paths: paths, Logger: r.logger})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.path, err)
	}
	defer w.Close()

	r.report(r.once(ctx))

	errOut := r.cmd.ErrOrStderr()
	if !shared.GetQuiet() {
		fmt.Fprintln(errOut, shared.Muted.Render(fmt.Sprintf("\nWatching %d file(s). Press Ctrl+C to stop.", len(paths))))
	}

	err = w.Run(ctx, func(ctx context.Context, changed []string) {
		if !shared.GetQuiet() {
			names := make([]string, len(changed))
			for i, c := range changed {
				names[i] = filepath.Base(c)
			}
			fmt.Fprintf(errOut, "\n%s %s\n", shared.RenderLabel("Changed:"), strings.Join(names, ", "))
		}
		r.report(r.once(ctx))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *runner) report(err error) {
	if err != nil {
		shared.PrintError(r.cmd.ErrOrStderr(), err)
	}
}
