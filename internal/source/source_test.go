package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	raw  string
	err  error
	name string
	args map[string]any
	base *url.URL
}

func (f *fakeCaller) CallTool(ctx context.Context, base *url.URL, name string, args map[string]any) (json.RawMessage, error) {
	f.base, f.name, f.args = base, name, args
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.raw), nil
}

var chromaURL = &url.URL{Scheme: "http", Host: "chroma:8102"}
var haURL = &url.URL{Scheme: "http", Host: "ha:8101"}

func TestRetrievalFetch(t *testing.T) {
	caller := &fakeCaller{raw: `{"documents":["kitchen light is on circuit 4","garage door code","third","fourth"],"ids":["1","2","3","4"]}`}
	src := NewRetrieval(caller, chromaURL, 3)

	got, err := src.Fetch(context.Background(), "kitchen light")

	require.NoError(t, err)
	assert.Equal(t, "kitchen light is on circuit 4\n\ngarage door code\n\nthird", got)
	assert.Equal(t, RetrievalTool, caller.name)
	assert.Equal(t, "kitchen light", caller.args["query_text"])
	assert.Equal(t, 3, caller.args["n_results"])
	assert.Equal(t, chromaURL, caller.base)
	assert.Equal(t, KindRetrieval, src.Kind())
	assert.Equal(t, "Relevant Documents", src.Label())
}

func TestRetrievalSkipsNonTextDocuments(t *testing.T) {
	caller := &fakeCaller{raw: `{"documents":[null,"",{"x":1},"kept"]}`}

	got, err := NewRetrieval(caller, chromaURL, 3).Fetch(context.Background(), "q")

	require.NoError(t, err)
	assert.Equal(t, "kept", got)
}

func TestRetrievalEmpty(t *testing.T) {
	for _, raw := range []string{`{"documents":[]}`, `{}`} {
		got, err := NewRetrieval(&fakeCaller{raw: raw}, chromaURL, 3).Fetch(context.Background(), "q")
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestRetrievalPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := NewRetrieval(&fakeCaller{err: boom}, chromaURL, 3).Fetch(context.Background(), "q")
	assert.ErrorIs(t, err, boom)

	_, err = NewRetrieval(&fakeCaller{raw: `"nope"`}, chromaURL, 3).Fetch(context.Background(), "q")
	assert.Error(t, err)
}

func TestEnvironmentFetch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "wrapped states",
			raw:  `{"states":[{"entity_id":"light.kitchen","state":"off"},{"entity_id":"sensor.temp","state":"21.5"}]}`,
			want: "light.kitchen: off\nsensor.temp: 21.5",
		},
		{
			name: "bare list",
			raw:  `[{"entity_id":"light.kitchen","state":"off"}]`,
			want: "light.kitchen: off",
		},
		{
			name: "non-object entries skipped",
			raw:  `[1,"x",{"entity_id":"switch.fan","state":"on"}]`,
			want: "switch.fan: on",
		},
		{
			name: "non-string state",
			raw:  `[{"entity_id":"counter.visits","state":3}]`,
			want: "counter.visits: 3",
		},
		{
			name: "empty",
			raw:  `{"states":[]}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{raw: tt.raw}
			got, err := NewEnvironment(caller, haURL, 10).Fetch(context.Background(), "ignored")

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, EnvironmentTool, caller.name)
			assert.Empty(t, caller.args)
		})
	}
}

func TestEnvironmentCapsEntities(t *testing.T) {
	raw := `[`
	for i := 0; i < 15; i++ {
		if i > 0 {
			raw += ","
		}
		raw += `{"entity_id":"light.l` + string(rune('a'+i)) + `","state":"on"}`
	}
	raw += `]`

	got, err := NewEnvironment(&fakeCaller{raw: raw}, haURL, 10).Fetch(context.Background(), "q")

	require.NoError(t, err)
	assert.Len(t, strings.Split(got, "\n"), 10)
}

func TestEnvironmentMalformed(t *testing.T) {
	_, err := NewEnvironment(&fakeCaller{raw: `"bad"`}, haURL, 10).Fetch(context.Background(), "q")
	assert.Error(t, err)
}
