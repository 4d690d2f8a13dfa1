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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/internal/config"
	"github.com/tombee/pixelflow/internal/history"
	pflog "github.com/tombee/pixelflow/internal/log"
	"github.com/tombee/pixelflow/internal/secrets"
	"github.com/tombee/pixelflow/internal/tracing"
	"github.com/tombee/pixelflow/pkg/pipeline"
	"github.com/tombee/pixelflow/pkg/provider"
	"github.com/tombee/pixelflow/pkg/provider/builtin"
)

const coversPipeline = `
name: covers
steps:
  - kind: generate
    provider: solid
    params: {width: 8, height: 8, color: "#336699"}
    output: img
  - kind: text
    provider: static
    params: {text: a blue square}
    output: caption
  - kind: save
    provider: file
    input: img
    destination: cover.png
    output: saved
`

// brokenPipeline fails its transform; the save depends on it, the caption
// does not.
const brokenPipeline = `
name: broken
steps:
  - kind: generate
    provider: solid
    params: {width: 8, height: 8}
    output: img
  - kind: transform
    provider: image
    operation: explode
    input: img
    output: boom
  - kind: save
    provider: memory
    input: boom
    destination: boom.png
  - kind: text
    provider: static
    params: {text: still here}
    output: caption
`

type testHarness struct {
	historyPath string
	outputDir   string
}

// setup points the command at an isolated config, history database and
// output directory, with openai disabled.
func setup(t *testing.T) *testHarness {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")

	h := &testHarness{
		historyPath: filepath.Join(t.TempDir(), "history.db"),
		outputDir:   t.TempDir(),
	}

	old := loadEnv
	loadEnv = func() (*shared.Env, error) {
		cfg := config.Default()
		cfg.History.Path = h.historyPath
		cfg.OutputDir = h.outputDir
		return &shared.Env{
			Config:  cfg,
			Logger:  pflog.Discard(),
			Secrets: secrets.NewResolver(secrets.NewEnvBackend()),
		}, nil
	}
	t.Cleanup(func() {
		loadEnv = old
		shared.SetJSONForTest(false)
	})
	return h
}

func writeDefinition(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	return exitErr.Code
}

func (h *testHarness) runs(t *testing.T) []*history.Run {
	t.Helper()
	store, err := history.Open(history.Config{Path: h.historyPath})
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), history.Filter{})
	require.NoError(t, err)
	return runs
}

func (h *testHarness) events(t *testing.T, runID string) []history.StepEvent {
	t.Helper()
	store, err := history.Open(history.Config{Path: h.historyPath})
	require.NoError(t, err)
	defer store.Close()
	events, err := store.Events(context.Background(), runID)
	require.NoError(t, err)
	return events
}

func TestRun_Waves(t *testing.T) {
	h := setup(t)

	out, _, err := execute(t, writeDefinition(t, coversPipeline))
	require.NoError(t, err)

	assert.Contains(t, out, "Running pipeline: covers")
	assert.Contains(t, out, "caption")
	assert.Contains(t, out, "3 steps in 2 waves")
	assert.FileExists(t, filepath.Join(h.outputDir, "cover.png"))

	runs := h.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, pipeline.RunSucceeded, runs[0].Status)
	assert.Equal(t, pipeline.ModeWaves, runs[0].Mode)
	assert.Equal(t, 3, runs[0].Completed)
	assert.NotEmpty(t, runs[0].CorrelationID)
	assert.Len(t, h.events(t, runs[0].ID), 3, "wave results are recorded as events")
}

func TestRun_WavesJSON(t *testing.T) {
	setup(t)
	shared.SetJSONForTest(true)

	out, _, err := execute(t, writeDefinition(t, coversPipeline), "--no-history", "--concurrency", "1")
	require.NoError(t, err)

	var resp WavesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.True(t, resp.Success)
	assert.Equal(t, "covers", resp.Pipeline)
	assert.Equal(t, 2, resp.Waves)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "img", resp.Results[0].StepID)
	assert.Contains(t, resp.Results[0].Value, "8x8")
}

func TestRun_WavesFailFast(t *testing.T) {
	h := setup(t)

	_, _, err := execute(t, writeDefinition(t, brokenPipeline))
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidPipeline, exitCode(t, err))
	assert.Contains(t, err.Error(), "explode")

	runs := h.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, pipeline.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "explode")
}

func TestRun_ProgressivePartial(t *testing.T) {
	h := setup(t)

	out, _, err := execute(t, writeDefinition(t, brokenPipeline), "--mode", "progressive", "--timeline")
	require.Error(t, err)
	assert.Equal(t, shared.ExitPartial, exitCode(t, err))

	assert.Contains(t, out, "unknown image operation")
	assert.Contains(t, out, "skipped: upstream boom failed")
	assert.Contains(t, out, "2 completed, 1 failed, 1 skipped")
	assert.Contains(t, out, "Pipeline: broken")

	runs := h.runs(t)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, pipeline.RunPartial, run.Status)
	assert.Equal(t, pipeline.ModeProgressive, run.Mode)
	assert.Equal(t, 2, run.Completed)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Skipped)
	assert.Contains(t, run.Error, "boom")

	statuses := map[pipeline.StepStatus]int{}
	for _, ev := range h.events(t, run.ID) {
		statuses[ev.Status]++
	}
	assert.Equal(t, 4, statuses[pipeline.StepStatusPending])
	assert.Equal(t, 1, statuses[pipeline.StepStatusError])
	assert.Equal(t, 1, statuses[pipeline.StepStatusSkipped])
}

func TestRun_ProgressiveJSON(t *testing.T) {
	setup(t)
	shared.SetJSONForTest(true)

	out, _, err := execute(t, writeDefinition(t, brokenPipeline), "--mode", "progressive", "--no-history")
	require.Error(t, err)
	assert.Equal(t, shared.ExitPartial, exitCode(t, err))
	assert.Empty(t, err.Error())
	assert.NotContains(t, out, "Usage:", "the JSON envelope is the only stdout output")

	var resp ProgressiveResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.False(t, resp.Success)
	assert.Equal(t, pipeline.RunPartial, resp.Status)
	assert.Equal(t, pipeline.StepStatusError, resp.Steps["boom"])
	assert.Equal(t, pipeline.StepStatusCompleted, resp.Steps["caption"])
	assert.Equal(t, []string{"img", "caption", "boom", "step-2"}, resp.Order)
}

func TestRun_ModerateGate(t *testing.T) {
	setup(t)
	shared.SetJSONForTest(true)

	path := writeDefinition(t, coversPipeline)
	out, _, err := execute(t, path, "--no-history", "--moderate", `type != "image" || width >= 16`)
	require.Error(t, err)
	assert.Equal(t, shared.ExitPartial, exitCode(t, err), "gates select progressive mode")

	var resp ProgressiveResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, pipeline.StepStatusError, resp.Steps["img"])
	assert.Equal(t, pipeline.StepStatusCompleted, resp.Steps["caption"])
	assert.Equal(t, pipeline.StepStatusSkipped, resp.Steps["saved"])

	var gating bool
	for _, ev := range resp.Events {
		if ev.StepID == "img" && ev.Status == pipeline.StepStatusError {
			gating = ev.Reason == "gating"
		}
	}
	assert.True(t, gating, "rejection is reported with the gating reason")
}

func TestRun_FlagErrors(t *testing.T) {
	setup(t)
	path := writeDefinition(t, coversPipeline)

	_, _, err := execute(t, path, "--mode", "waves", "--moderate", "true")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidPipeline, exitCode(t, err))

	_, _, err = execute(t, path, "--mode", "turbo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turbo")

	_, _, err = execute(t, path, "--moderate", "width >=", "--no-history")
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidPipeline, exitCode(t, err))

	_, _, err = execute(t, path, "--moderation", "--no-history")
	require.Error(t, err)
	assert.Equal(t, shared.ExitProviderError, exitCode(t, err))
	assert.Contains(t, err.Error(), "secrets set openai")
}

func TestRun_Glob(t *testing.T) {
	setup(t)
	shared.SetJSONForTest(true)

	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", filepath.Join("nested", "c.png")} {
		img, err := builtin.Solid{}.Generate(context.Background(), provider.Params{"width": 2, "height": 2})
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, img.Bytes, 0600))
	}

	def := writeDefinition(t, `
name: batch
steps:
  - kind: collect
    inputs: [photo_0, photo_1, photo_2]
    output: all
`)
	out, _, err := execute(t, def, "--no-history", "--glob", "photo="+filepath.Join(dir, "**", "*.png"))
	require.NoError(t, err, out)

	var resp WavesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "collection of 3", resp.Results[0].Value)

	out, _, err = execute(t, def, "--no-history", "--glob", "photo="+filepath.Join(dir, "*.gif"))
	require.Error(t, err)
	assert.Contains(t, out, "matches no files")
}

func TestExpandGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"z.png", "a.png", "m.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}

	got, err := expandGlob("shot", filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"shot_0": filepath.Join(dir, "a.png"),
		"shot_1": filepath.Join(dir, "z.png"),
	}, got)

	_, err = expandGlob("shot", filepath.Join(dir, "*.jpg"))
	assert.Error(t, err)

	_, err = expandGlob("shot", "[")
	assert.Error(t, err)
}

func TestResolveMode(t *testing.T) {
	mode, err := resolveMode("", "waves", false)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeWaves, mode)

	mode, err = resolveMode("", "waves", true)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeProgressive, mode)

	mode, err = resolveMode("progressive", "waves", false)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ModeProgressive, mode)

	_, err = resolveMode("waves", "progressive", true)
	assert.Error(t, err)

	_, err = resolveMode("batch", "waves", false)
	assert.Error(t, err)
}

func TestBuildGate(t *testing.T) {
	g, err := buildGate(nil, false, nil)
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = buildGate([]string{"true", `type == "image"`}, false, nil)
	require.NoError(t, err)
	assert.NotNil(t, g)

	_, err = buildGate([]string{"(("}, false, nil)
	assert.Error(t, err)

	_, err = buildGate(nil, true, nil)
	assert.Error(t, err)
}

func TestWithExporter(t *testing.T) {
	cfg := tracing.DefaultConfig()
	cfg.Exporters = []tracing.ExporterConfig{
		{Type: "console"},
		{Type: "otlp", Endpoint: "collector:4317"},
	}

	got := withExporter(cfg, "otlp")
	assert.True(t, got.Enabled)
	assert.Equal(t, []tracing.ExporterConfig{{Type: "otlp", Endpoint: "collector:4317"}}, got.Exporters)

	got = withExporter(tracing.DefaultConfig(), "otlp-http")
	assert.Equal(t, "localhost:4318", got.Exporters[0].Endpoint)
	assert.NoError(t, got.Validate())
}

func TestTelemetry_MetricsEndpoint(t *testing.T) {
	ctx := context.Background()
	tel, err := startTelemetry(ctx, tracing.DefaultConfig(), "", "127.0.0.1:0", pflog.Discard())
	require.NoError(t, err)
	defer tel.close(ctx)

	require.NotEmpty(t, tel.addr)
	tel.recorder().RecordRun(ctx, pipeline.ModeWaves, pipeline.RunSucceeded, 0)

	resp, err := http.Get("http://" + tel.addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pixelflow")
}
