package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/provider"
)

func dispatchOne(t *testing.T, d *Dispatcher, s Step, vars map[string]artifact.Value) (*Outcome, error) {
	t.Helper()
	nodes, err := BuildGraph([]Step{s})
	require.NoError(t, err)
	return d.Dispatch(context.Background(), nodes[0], NewStore(vars))
}

func assigned(out *Outcome) map[string]artifact.Value {
	m := map[string]artifact.Value{}
	for _, a := range out.Assignments {
		m[a.Name] = a.Value
	}
	return m
}

func TestDispatch_FanOutCount(t *testing.T) {
	d := NewDispatcher(newTestRegistry(&fakes{}))
	src := &artifact.Image{Bytes: []byte("red"), Format: "png"}

	out, err := dispatchOne(t, d, NewFanOutCount("src", "v", 3), map[string]artifact.Value{"src": src})
	require.NoError(t, err)

	got := assigned(out)
	require.Len(t, got, 3)
	for _, name := range []string{"v_0", "v_1", "v_2"} {
		assert.Equal(t, src, got[name])
		assert.Same(t, src, got[name].(*artifact.Image))
	}
}

func TestDispatch_FanOutArray(t *testing.T) {
	d := NewDispatcher(newTestRegistry(&fakes{}))
	img := &artifact.Image{Format: "png"}

	tests := []struct {
		name    string
		step    *FanOutStep
		input   artifact.Value
		want    map[string]any
		wantErr bool
	}{
		{
			name:  "top-level property",
			step:  NewFanOutArray("in", "prompts", "p0", "p1"),
			input: mustJSON(map[string]any{"prompts": []any{"cat", "dog"}}),
			want:  map[string]any{"p0": "cat", "p1": "dog"},
		},
		{
			name:  "jq path",
			step:  NewFanOutArray("in", ".result.items", "p0"),
			input: mustJSON(map[string]any{"result": map[string]any{"items": []any{map[string]any{"n": 1.0}}}}),
			want:  map[string]any{"p0": map[string]any{"n": 1.0}},
		},
		{
			name:  "extra items dropped",
			step:  NewFanOutArray("in", "", "p0"),
			input: mustJSON([]any{"a", "b", "c"}),
			want:  map[string]any{"p0": "a"},
		},
		{
			name:  "outputs beyond items left unset",
			step:  NewFanOutArray("in", "xs", "p0", "p1", "p2"),
			input: mustJSON(map[string]any{"xs": []any{1.0}}),
			want:  map[string]any{"p0": 1.0},
		},
		{
			name:    "property not an array",
			step:    NewFanOutArray("in", "xs", "p0"),
			input:   mustJSON(map[string]any{"xs": "nope"}),
			wantErr: true,
		},
		{
			name:    "missing property",
			step:    NewFanOutArray("in", "ys", "p0"),
			input:   mustJSON(map[string]any{"xs": []any{}}),
			wantErr: true,
		},
		{
			name:    "image input",
			step:    NewFanOutArray("in", "", "p0"),
			input:   img,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := dispatchOne(t, d, tt.step, map[string]artifact.Value{"in": tt.input})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
				return
			}
			require.NoError(t, err)

			got := assigned(out)
			require.Len(t, got, len(tt.want))
			for name, want := range tt.want {
				data, ok := got[name].(*artifact.Data)
				require.True(t, ok, "%s should be wrapped as data", name)
				assert.Equal(t, artifact.DataJSON, data.Type)
				assert.Equal(t, want, data.Parsed)
			}
		})
	}
}

func TestDispatch_FanOutArrayOverCollection(t *testing.T) {
	d := NewDispatcher(newTestRegistry(&fakes{}))
	a := &artifact.Image{Bytes: []byte("a")}
	b := &artifact.Image{Bytes: []byte("b")}

	out, err := dispatchOne(t, d, NewFanOutArray("in", "", "x", "y"),
		map[string]artifact.Value{"in": &artifact.Collection{Items: []artifact.Value{a, b}}})
	require.NoError(t, err)
	got := assigned(out)
	assert.Same(t, a, got["x"])
	assert.Same(t, b, got["y"])
}

func TestDispatch_Collect(t *testing.T) {
	d := NewDispatcher(newTestRegistry(&fakes{}))
	one := artifact.NewText("one")
	two := artifact.NewText("two")

	t.Run("require all with missing input", func(t *testing.T) {
		_, err := dispatchOne(t, d, NewCollect("c", "one", "missing"), map[string]artifact.Value{"one": one})
		require.Error(t, err)
		assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
		var nf *errors.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "missing", nf.ID)
	})

	t.Run("best effort below threshold", func(t *testing.T) {
		_, err := dispatchOne(t, d, NewCollectAvailable("c", 2, "one", "missing"), map[string]artifact.Value{"one": one})
		require.Error(t, err)
		assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
		assert.Contains(t, err.Error(), "at least 2")
		assert.Contains(t, err.Error(), "only 1")
	})

	t.Run("best effort meets threshold in declared order", func(t *testing.T) {
		out, err := dispatchOne(t, d, NewCollectAvailable("c", 2, "two", "missing", "one"),
			map[string]artifact.Value{"one": one, "two": two})
		require.NoError(t, err)
		c := out.Value.(*artifact.Collection)
		assert.Equal(t, []artifact.Value{two, one}, c.Items)
	})

	t.Run("require all", func(t *testing.T) {
		out, err := dispatchOne(t, d, NewCollect("c", "one", "two"), map[string]artifact.Value{"one": one, "two": two})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Value.(*artifact.Collection).Len())
		assert.Equal(t, "c", out.Assignments[0].Name)
	})
}

func TestDispatch_RouterIndex(t *testing.T) {
	d := NewDispatcher(newTestRegistry(&fakes{}))
	a, b, c := artifact.NewText("a"), artifact.NewText("b"), artifact.NewText("c")
	candidates := &artifact.Collection{Items: []artifact.Value{a, b, c}}
	step := &RouterStep{Candidates: "cands", Selection: "sel", Output: "pick"}

	out, err := dispatchOne(t, d, step, map[string]artifact.Value{
		"cands": candidates,
		"sel":   mustJSON(map[string]any{"index": 1}),
	})
	require.NoError(t, err)
	assert.Same(t, b, out.Value)

	for _, idx := range []int{3, -1} {
		_, err = dispatchOne(t, d, step, map[string]artifact.Value{
			"cands": candidates,
			"sel":   mustJSON(map[string]any{"index": idx}),
		})
		require.Error(t, err)
		assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
		assert.Contains(t, err.Error(), "out of range")
	}

	_, err = dispatchOne(t, d, step, map[string]artifact.Value{
		"cands": candidates,
		"sel":   mustJSON(map[string]any{"index": 0.5}),
	})
	assert.Error(t, err)
}

func TestDispatch_RouterIndexJQField(t *testing.T) {
	d := NewDispatcher(newTestRegistry(&fakes{}))
	a, b := artifact.NewText("a"), artifact.NewText("b")

	out, err := dispatchOne(t, d,
		&RouterStep{Candidates: "cands", Selection: "sel", Output: "pick", Field: ".ranking[0].idx"},
		map[string]artifact.Value{
			"cands": &artifact.Collection{Items: []artifact.Value{a, b}},
			"sel":   mustJSON(map[string]any{"ranking": []any{map[string]any{"idx": 1}}}),
		})
	require.NoError(t, err)
	assert.Same(t, b, out.Value)
}

func TestDispatch_RouterProperty(t *testing.T) {
	d := NewDispatcher(newTestRegistry(&fakes{}))
	warm := &artifact.Image{Format: "png", Metadata: map[string]any{"style": "warm"}}
	cool := &artifact.Image{Format: "png", Metadata: map[string]any{"style": "cool"}}
	cands := &artifact.Collection{Items: []artifact.Value{warm, cool}}
	step := &RouterStep{Candidates: "cands", Selection: "sel", Output: "pick", By: SelectProperty, Property: "style"}

	out, err := dispatchOne(t, d, step, map[string]artifact.Value{
		"cands": cands,
		"sel":   mustJSON(map[string]any{"value": "cool"}),
	})
	require.NoError(t, err)
	assert.Same(t, cool, out.Value)

	_, err = dispatchOne(t, d, step, map[string]artifact.Value{
		"cands": cands,
		"sel":   mustJSON(map[string]any{"value": "neon"}),
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
	var nf *errors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDispatch_RouterPropertyOverJSONCandidates(t *testing.T) {
	d := NewDispatcher(newTestRegistry(&fakes{}))
	out, err := dispatchOne(t, d,
		&RouterStep{Candidates: "cands", Selection: "sel", Output: "pick", By: SelectProperty, Property: "id", Field: "want"},
		map[string]artifact.Value{
			"cands": mustJSON([]any{map[string]any{"id": 1, "name": "one"}, map[string]any{"id": 2, "name": "two"}}),
			"sel":   mustJSON(map[string]any{"want": 2}),
		})
	require.NoError(t, err)
	assert.Equal(t, "two", out.Value.(*artifact.Data).Object()["name"])
}

func TestDispatch_ProviderSteps(t *testing.T) {
	f := &fakes{}
	d := NewDispatcher(newTestRegistry(f))
	src := &artifact.Image{Bytes: []byte("red"), Format: "png"}
	vars := map[string]artifact.Value{"src": src}

	out, err := dispatchOne(t, d, fx("src", "blur", "b"), vars)
	require.NoError(t, err)
	assert.Equal(t, "red+blur", string(out.Value.(*artifact.Image).Bytes))
	assert.Equal(t, "fx", out.Provider)

	out, err = dispatchOne(t, d, &VisionStep{Provider: "caption", Input: "src", Output: "desc"}, vars)
	require.NoError(t, err)
	assert.Equal(t, "red", out.Value.(*artifact.Data).Object()["caption"])

	out, err = dispatchOne(t, d, &TextStep{Provider: "echo", Input: "src", Output: "t"}, vars)
	require.NoError(t, err)
	assert.Contains(t, out.Value.(*artifact.Data).Raw, "image/png")

	out, err = dispatchOne(t, d, &SaveStep{Provider: "mem", Input: "src", Destination: "out/x.png"}, vars)
	require.NoError(t, err)
	assert.Empty(t, out.Assignments)
	res := out.Value.(*artifact.SaveResult)
	assert.Equal(t, "mem", res.Provider)
	assert.Equal(t, int64(3), res.Size)

	assert.Equal(t, []string{"transform:blur", "vision", "text", "save:out/x.png"}, f.Calls())
}

func TestDispatch_Errors(t *testing.T) {
	d := NewDispatcher(newTestRegistry(&fakes{}))
	src := &artifact.Image{Bytes: []byte("red"), Format: "png"}

	t.Run("unregistered provider", func(t *testing.T) {
		_, err := dispatchOne(t, d, &GenerateStep{Provider: "nope", Output: "a"}, nil)
		require.Error(t, err)
		assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
	})

	t.Run("unclassified provider error becomes execution", func(t *testing.T) {
		_, err := dispatchOne(t, d, fx("src", "fail", "b"), map[string]artifact.Value{"src": src})
		require.Error(t, err)
		assert.Equal(t, errors.KindExecution, errors.KindOf(err))
		var pe *errors.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "fx", pe.Provider)
		assert.False(t, pe.Retryable)
	})

	t.Run("retryable flag forwarded", func(t *testing.T) {
		_, err := dispatchOne(t, d, &GenerateStep{Provider: "solid", Params: provider.Params{"fail": true}, Output: "a"}, nil)
		require.Error(t, err)
		assert.Equal(t, errors.KindExecution, errors.KindOf(err))
		assert.True(t, errors.IsRetryable(err))
	})

	t.Run("wrong input type", func(t *testing.T) {
		_, err := dispatchOne(t, d, fx("src", "blur", "b"), map[string]artifact.Value{"src": artifact.NewText("x")})
		require.Error(t, err)
		assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
	})

	t.Run("missing variable", func(t *testing.T) {
		_, err := dispatchOne(t, d, fx("src", "blur", "b"), nil)
		require.Error(t, err)
		var nf *errors.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})
}
