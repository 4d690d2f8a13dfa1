package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/provider"
)

type recordedRun struct {
	mode   Mode
	status RunStatus
}

type memRecorder struct {
	mu    sync.Mutex
	steps map[StepStatus]int
	waves []int
	runs  []recordedRun
}

func newMemRecorder() *memRecorder { return &memRecorder{steps: map[StepStatus]int{}} }

func (m *memRecorder) RecordStep(_ context.Context, _ Kind, status StepStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[status]++
}

func (m *memRecorder) RecordWave(_ context.Context, size int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waves = append(m.waves, size)
}

func (m *memRecorder) RecordRun(_ context.Context, mode Mode, status RunStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, recordedRun{mode, status})
}

func TestEngine_Run(t *testing.T) {
	f := &fakes{}
	rec := newMemRecorder()
	e := NewEngine(newTestRegistry(f)).WithMetrics(rec)
	upload := &artifact.Image{Bytes: []byte("upload"), Format: "jpeg"}

	res, err := e.Run(context.Background(), &Pipeline{
		Name: "covers",
		Steps: []Step{
			gen("a", "red"),
			fx("a", "blur", "b"),
			fx("src", "crop", "c"),
			NewCollect("both", "b", "c"),
			&SaveStep{Provider: "mem", Input: "b", Destination: "b.png", Output: "saved"},
		},
		Initial: map[string]artifact.Value{"src": upload},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "covers", res.Pipeline)
	assert.Equal(t, 3, res.Waves)

	ids := make([]string, len(res.Results))
	for i, r := range res.Results {
		ids[i] = r.StepID
	}
	// waves {a,c} {b} {both,saved}, pipeline order within each wave
	assert.Equal(t, []string{"a", "c", "b", "both", "saved"}, ids)
	assert.Equal(t, "both", res.Results[3].Output)
	assert.Equal(t, KindCollect, res.Results[3].Kind)

	assert.Same(t, upload, res.Variables["src"])
	assert.Equal(t, "red+blur", string(res.Variables["b"].(*artifact.Image).Bytes))
	assert.Equal(t, 2, res.Variables["both"].(*artifact.Collection).Len())
	assert.Equal(t, "b.png", res.Variables["saved"].(*artifact.SaveResult).Location)

	assert.Equal(t, []int{2, 1, 2}, rec.waves)
	assert.Equal(t, 5, rec.steps[StepStatusCompleted])
	assert.Equal(t, []recordedRun{{ModeWaves, RunSucceeded}}, rec.runs)
}

func TestEngine_RunConcurrencyBound(t *testing.T) {
	f := &fakes{}
	steps := make([]Step, 6)
	for i := range steps {
		steps[i] = gen(string(rune('a'+i)), "red")
	}

	_, err := NewEngine(newTestRegistry(f)).WithConcurrency(5).Run(context.Background(), &Pipeline{Steps: steps, Concurrency: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, f.maxInFlight.Load(), int32(2))
	assert.Len(t, f.Calls(), 6)
}

func TestEngine_RunBarrierBetweenWaves(t *testing.T) {
	var mu sync.Mutex
	var order []string
	r := provider.NewRegistry()
	r.RegisterGenerator("slow", provider.GeneratorFunc(func(ctx context.Context, p provider.Params) (*artifact.Image, error) {
		time.Sleep(time.Duration(p.Int("ms", 0)) * time.Millisecond)
		mu.Lock()
		order = append(order, "gen:"+p.String("id", ""))
		mu.Unlock()
		return &artifact.Image{Format: "png"}, nil
	}))
	r.RegisterTransformer("t", provider.TransformerFunc(func(ctx context.Context, op string, img *artifact.Image, p provider.Params) (*artifact.Image, error) {
		mu.Lock()
		order = append(order, "transform")
		mu.Unlock()
		return img, nil
	}))

	_, err := NewEngine(r).Run(context.Background(), &Pipeline{Steps: []Step{
		&GenerateStep{Provider: "slow", Params: provider.Params{"id": "fast", "ms": 0}, Output: "fast"},
		&GenerateStep{Provider: "slow", Params: provider.Params{"id": "slow", "ms": 30}, Output: "slow"},
		&TransformStep{Provider: "t", Input: "fast", Output: "out"},
	}})
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, "transform", order[2])
}

func TestEngine_RunFailFast(t *testing.T) {
	f := &fakes{}
	rec := newMemRecorder()
	e := NewEngine(newTestRegistry(f)).WithMetrics(rec)

	res, err := e.Run(context.Background(), &Pipeline{Steps: []Step{
		gen("a", "red"),
		fx("a", "fail", "b"),
		fx("b", "sharpen", "c"),
	}})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, errors.KindExecution, errors.KindOf(err))
	assert.Contains(t, err.Error(), "step b")
	assert.NotContains(t, f.Calls(), "transform:sharpen")
	assert.Equal(t, []recordedRun{{ModeWaves, RunFailed}}, rec.runs)
}

func TestEngine_RunRequireAllCollectFailsBeforeAnyStep(t *testing.T) {
	f := &fakes{}
	_, err := NewEngine(newTestRegistry(f)).Run(context.Background(), &Pipeline{Steps: []Step{
		gen("a", "red"),
		NewCollect("all", "a", "absent"),
	}})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
	assert.Empty(t, f.Calls())
}

func TestEngine_RunBestEffortCollect(t *testing.T) {
	f := &fakes{}
	e := NewEngine(newTestRegistry(f))

	_, err := e.Run(context.Background(), &Pipeline{Steps: []Step{
		gen("a", "red"),
		NewCollectAvailable("all", 2, "a", "absent"),
	}})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))

	res, err := e.Run(context.Background(), &Pipeline{Steps: []Step{
		gen("a", "red"),
		gen("b", "blue"),
		NewCollectAvailable("all", 2, "b", "absent", "a"),
	}})
	require.NoError(t, err)
	items := res.Variables["all"].(*artifact.Collection).Items
	require.Len(t, items, 2)
	assert.Equal(t, "blue", string(items[0].(*artifact.Image).Bytes))
	assert.Equal(t, "red", string(items[1].(*artifact.Image).Bytes))
}

func TestEngine_RunFanOutRouter(t *testing.T) {
	f := &fakes{}
	res, err := NewEngine(newTestRegistry(f)).Run(context.Background(), &Pipeline{Steps: []Step{
		gen("base", "red"),
		NewFanOutCount("base", "v", 3),
		fx("v_0", "warm", "w0"),
		fx("v_1", "cool", "w1"),
		fx("v_2", "mono", "w2"),
		NewCollect("variants", "w0", "w1", "w2"),
		&TextStep{Provider: "echo", Params: provider.Params{"text": `{"index": 2}`}, Output: "raw"},
		&RouterStep{Candidates: "variants", Selection: "choice", Output: "winner"},
		&FanOutStep{Input: "raw", Mode: FanOutCount, Outputs: []string{"unused"}},
	}, Initial: map[string]artifact.Value{"choice": mustJSON(map[string]any{"index": 2})}})
	require.NoError(t, err)

	winner := res.Variables["winner"].(*artifact.Image)
	assert.Equal(t, "red+mono", string(winner.Bytes))
	for _, name := range []string{"v_0", "v_1", "v_2"} {
		assert.Same(t, res.Variables["base"], res.Variables[name])
	}
}

func TestEngine_RunUnsatisfiable(t *testing.T) {
	_, err := NewEngine(newTestRegistry(&fakes{})).Run(context.Background(), &Pipeline{Steps: []Step{
		fx("x", "a", "y"),
		fx("y", "b", "x"),
	}})
	var unsat *UnsatisfiedError
	require.ErrorAs(t, err, &unsat)
	assert.Len(t, unsat.Steps, 2)
}

func TestEngine_RunEmitsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, err := NewEngine(newTestRegistry(&fakes{})).
		WithTracer(tp.Tracer("test")).
		Run(context.Background(), &Pipeline{Steps: []Step{gen("a", "red"), fx("a", "x", "b")}})
	require.NoError(t, err)

	counts := map[string]int{}
	for _, s := range exporter.GetSpans() {
		counts[s.Name]++
	}
	assert.Equal(t, 1, counts["pipeline.run"])
	assert.Equal(t, 2, counts["pipeline.wave"])
	assert.Equal(t, 2, counts["pipeline.step"])
}

func TestEngine_RunLogsWithRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	res, err := NewEngine(newTestRegistry(&fakes{})).WithLogger(logger).
		Run(context.Background(), &Pipeline{Name: "p", Steps: []Step{gen("a", "red")}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"run_id":"`+res.RunID+`"`)
	assert.Contains(t, buf.String(), `"step_id":"a"`)
}

func TestEngine_Plan(t *testing.T) {
	e := NewEngine(nil)
	waves, err := e.Plan(&Pipeline{Steps: []Step{gen("a", "red"), fx("in", "x", "b")}, Initial: map[string]artifact.Value{"in": &artifact.Image{}}})
	require.NoError(t, err)
	require.Len(t, waves, 1)
	assert.Len(t, waves[0].Nodes, 2)

	_, err = e.Plan(nil)
	assert.Error(t, err)
}

func TestEngine_RunIDFromContext(t *testing.T) {
	e := NewEngine(newTestRegistry(&fakes{}))
	ctx := ContextWithRunID(context.Background(), "run-42")

	res, err := e.Run(ctx, &Pipeline{Steps: []Step{gen("a", "red")}})
	require.NoError(t, err)
	assert.Equal(t, "run-42", res.RunID)

	pres, err := e.RunProgressive(ctx, &Pipeline{Steps: []Step{gen("a", "red")}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-42", pres.RunID)
	assert.Equal(t, "run-42", pres.Events[0].RunID)

	res, err = e.Run(context.Background(), &Pipeline{Steps: []Step{gen("a", "red")}})
	require.NoError(t, err)
	assert.NotEqual(t, "run-42", res.RunID)
}

func TestEngine_ProviderContextCarriesIDs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}

	reg := provider.NewRegistry()
	reg.RegisterGenerator("probe", provider.GeneratorFunc(func(ctx context.Context, p provider.Params) (*artifact.Image, error) {
		mu.Lock()
		seen[StepIDFromContext(ctx)] = RunIDFromContext(ctx)
		mu.Unlock()
		return &artifact.Image{Bytes: []byte("x"), Format: "png"}, nil
	}))

	p := &Pipeline{Steps: []Step{
		&GenerateStep{Name: "first", Provider: "probe", Output: "a"},
		&GenerateStep{Provider: "probe", Output: "b"},
	}}

	res, err := NewEngine(reg).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"first": res.RunID, "b": res.RunID}, seen)

	assert.Empty(t, StepIDFromContext(context.Background()))
	assert.Empty(t, RunIDFromContext(context.Background()))
}
