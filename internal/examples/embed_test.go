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

package examples

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/pixelflow/pkg/artifact"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/pipeline"
	"github.com/tombee/pixelflow/pkg/provider"
	"github.com/tombee/pixelflow/pkg/provider/builtin"
)

func TestList(t *testing.T) {
	examples, err := List()
	require.NoError(t, err)

	var names []string
	for _, ex := range examples {
		names = append(names, ex.Name)
		assert.NotEqual(t, "Example pipeline", ex.Description, "%s has no leading description comment", ex.File)
	}
	assert.Equal(t, []string{"covers", "inspect", "variants"}, names)
	assert.Equal(t, "inspect.hcl", examples[1].File)
}

func TestLookup(t *testing.T) {
	ex, err := Lookup("covers")
	require.NoError(t, err)
	assert.Equal(t, "covers.yaml", ex.File)
	assert.True(t, Exists("variants"))

	_, err = Lookup("nope")
	var nf *pferrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.False(t, Exists("nope"))
	assert.False(t, Exists("covers.yaml"))
}

// Every example must plan and run against the builtin providers.
func TestExamplesRun(t *testing.T) {
	examples, err := List()
	require.NoError(t, err)

	for _, ex := range examples {
		t.Run(ex.Name, func(t *testing.T) {
			def, err := Load(ex.Name)
			require.NoError(t, err)
			assert.Equal(t, ex.Name, def.Name)

			p, err := def.Pipeline()
			require.NoError(t, err)

			reg := provider.NewRegistry()
			builtin.Register(reg, builtin.Options{OutputDir: t.TempDir()})
			engine := pipeline.NewEngine(reg)

			waves, err := engine.Plan(p)
			require.NoError(t, err)
			assert.NotEmpty(t, waves)

			result, err := engine.Run(context.Background(), p)
			require.NoError(t, err)
			assert.Len(t, result.Results, len(p.Steps))
		})
	}
}

func TestInspectReport(t *testing.T) {
	def, err := Load("inspect")
	require.NoError(t, err)
	p, err := def.Pipeline()
	require.NoError(t, err)

	reg := provider.NewRegistry()
	builtin.Register(reg, builtin.Options{})
	result, err := pipeline.NewEngine(reg).Run(context.Background(), p)
	require.NoError(t, err)

	report, ok := result.Variables["report"].(*artifact.Data)
	require.True(t, ok)
	assert.Contains(t, report.Raw, "64x64 png")
}

func TestCopyTo(t *testing.T) {
	dir := t.TempDir()

	path, err := CopyTo("covers", dir, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "covers.yaml"), path)

	_, content, err := Get("covers")
	require.NoError(t, err)
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, written)

	_, err = CopyTo("covers", path, false)
	var verr *pferrors.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = CopyTo("covers", path, true)
	assert.NoError(t, err)

	nested := filepath.Join(dir, "a", "b", "mine.hcl")
	path, err = CopyTo("inspect", nested, false)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = CopyTo("missing", dir, false)
	assert.Error(t, err)
}

func TestDescription(t *testing.T) {
	assert.Equal(t, "Says hi", description([]byte("# Says hi\nname: x\n")))
	assert.Equal(t, "Example pipeline", description([]byte("name: x\n")))
	assert.Equal(t, "Example pipeline", description(nil))
}
