package aggregate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/logging"
	"github.com/joss/aiden/internal/metrics"
	"github.com/joss/aiden/internal/source"
)

type fakeSource struct {
	kind   source.Kind
	label  string
	body   string
	err    error
	delay  time.Duration
	panics bool
	ignore bool // ignore ctx cancellation
	calls  atomic.Int32
	query  atomic.Value
}

func (f *fakeSource) Kind() source.Kind { return f.kind }
func (f *fakeSource) Label() string     { return f.label }

func (f *fakeSource) Fetch(ctx context.Context, query string) (string, error) {
	f.calls.Add(1)
	f.query.Store(query)
	if f.panics {
		panic("source exploded")
	}
	if f.delay > 0 {
		if f.ignore {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return f.body, f.err
}

func retrieval(body string) *fakeSource {
	return &fakeSource{kind: source.KindRetrieval, label: source.RetrievalLabel, body: body}
}

func environment(body string) *fakeSource {
	return &fakeSource{kind: source.KindEnvironment, label: source.EnvironmentLabel, body: body}
}

func both() map[source.Kind]bool {
	return map[source.Kind]bool{source.KindRetrieval: true, source.KindEnvironment: true}
}

func TestAggregateDeclarationOrder(t *testing.T) {
	tests := []struct {
		name           string
		retrievalDelay time.Duration
		envDelay       time.Duration
	}{
		{"retrieval first", 0, 30 * time.Millisecond},
		{"environment first", 30 * time.Millisecond, 0},
		{"simultaneous", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := retrieval("doc one")
			r.delay = tt.retrievalDelay
			e := environment("light.kitchen: off")
			e.delay = tt.envDelay

			agg, err := New([]source.Source{r, e}, WithTimeout(time.Second))
			require.NoError(t, err)

			ctx := agg.Aggregate(context.Background(), "q", both())
			require.Len(t, ctx.Sections, 2)
			assert.Equal(t, source.RetrievalLabel, ctx.Sections[0].Label)
			assert.Equal(t, source.EnvironmentLabel, ctx.Sections[1].Label)
			assert.Equal(t,
				"Relevant Documents:\ndoc one\n\nHome Assistant States:\nlight.kitchen: off",
				ctx.String())
		})
	}
}

func TestAggregateOnlyEnabledSources(t *testing.T) {
	r := retrieval("doc")
	e := environment("state")
	agg, err := New([]source.Source{r, e})
	require.NoError(t, err)

	subsets := []map[source.Kind]bool{
		nil,
		{source.KindRetrieval: true},
		{source.KindEnvironment: true},
		{source.KindRetrieval: false, source.KindEnvironment: true},
		both(),
	}
	for _, enabled := range subsets {
		ctx := agg.Aggregate(context.Background(), "q", enabled)
		var labels []source.Kind
		for _, s := range ctx.Sections {
			labels = append(labels, s.Kind)
		}
		var want []source.Kind
		for _, k := range agg.Kinds() {
			if enabled[k] {
				want = append(want, k)
			}
		}
		assert.Equal(t, want, labels)
	}

	assert.Equal(t, int32(2), r.calls.Load())
	assert.Equal(t, int32(3), e.calls.Load())
}

func TestAggregateEmptyResultOmitted(t *testing.T) {
	agg, err := New([]source.Source{retrieval(""), environment("  \n")})
	require.NoError(t, err)

	ctx := agg.Aggregate(context.Background(), "q", both())
	assert.True(t, ctx.Empty())
	assert.Empty(t, ctx.Failures)
	assert.Equal(t, "", ctx.String())
}

func TestAggregateFailureIsolation(t *testing.T) {
	var buf bytes.Buffer
	store := audit.NewMemoryStore(10)
	m := metrics.New()

	r := retrieval("")
	r.err = errors.New("chroma unavailable")
	e := environment("sensor.temp: 21")

	agg, err := New([]source.Source{r, e},
		WithLogger(logging.NewWithWriter("aggregate", &buf)),
		WithRecorder(store),
		WithMetrics(m),
	)
	require.NoError(t, err)

	ctx := agg.Aggregate(logging.WithRequestID(context.Background(), "req-1"), "q", both())

	require.Len(t, ctx.Sections, 1)
	assert.Equal(t, source.KindEnvironment, ctx.Sections[0].Kind)
	require.Len(t, ctx.Failures, 1)
	assert.Equal(t, source.KindRetrieval, ctx.Failures[0].Kind)
	assert.False(t, ctx.Failures[0].Timeout)

	events, _ := store.Recent(context.Background(), 0)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategorySource, events[0].Category)
	assert.Equal(t, "retrieval", events[0].Operation)
	assert.Equal(t, audit.StatusError, events[0].Status)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Contains(t, events[0].ErrorMessage, "chroma unavailable")

	assert.Equal(t, int64(1), m.SourceFailures.Load())
	assert.Equal(t, int64(0), m.SourceTimeouts.Load())

	assert.Contains(t, buf.String(), `"event":"source_failed"`)
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
}

func TestAggregateRetrievalTimesOut(t *testing.T) {
	store := audit.NewMemoryStore(10)
	m := metrics.New()

	r := retrieval("late docs")
	r.delay = 2 * time.Second
	e := environment("light.kitchen: off")

	agg, err := New([]source.Source{r, e},
		WithTimeout(50*time.Millisecond),
		WithRecorder(store),
		WithMetrics(m),
	)
	require.NoError(t, err)

	start := time.Now()
	ctx := agg.Aggregate(context.Background(), "q", both())
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, ctx.Sections, 1)
	assert.Equal(t, source.EnvironmentLabel, ctx.Sections[0].Label)
	assert.Equal(t, "light.kitchen: off", ctx.Sections[0].Body)

	require.Len(t, ctx.Failures, 1)
	assert.True(t, ctx.Failures[0].Timeout)
	assert.True(t, errors.Is(ctx.Failures[0].Err, context.DeadlineExceeded))

	events, _ := store.Recent(context.Background(), 0)
	require.Len(t, events, 1)
	assert.Equal(t, "retrieval", events[0].Operation)
	assert.Equal(t, audit.StatusTimeout, events[0].Status)
	assert.Equal(t, int64(1), m.SourceTimeouts.Load())
}

func TestAggregateSourceIgnoringCancellation(t *testing.T) {
	r := retrieval("never")
	r.delay = 500 * time.Millisecond
	r.ignore = true

	agg, err := New([]source.Source{r, environment("ok")}, WithTimeout(30*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	ctx := agg.Aggregate(context.Background(), "q", both())
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	require.Len(t, ctx.Sections, 1)
	require.Len(t, ctx.Failures, 1)
	assert.True(t, ctx.Failures[0].Timeout)
}

func TestAggregateSourcePanic(t *testing.T) {
	r := retrieval("")
	r.panics = true

	agg, err := New([]source.Source{r, environment("ok")})
	require.NoError(t, err)

	ctx := agg.Aggregate(context.Background(), "q", both())
	require.Len(t, ctx.Sections, 1)
	require.Len(t, ctx.Failures, 1)
	assert.True(t, errors.Is(ctx.Failures[0].Err, logging.ErrPanic))
}

func TestAggregateSourcesRunConcurrently(t *testing.T) {
	r := retrieval("a")
	r.delay = 100 * time.Millisecond
	e := environment("b")
	e.delay = 100 * time.Millisecond

	agg, err := New([]source.Source{r, e})
	require.NoError(t, err)

	start := time.Now()
	ctx := agg.Aggregate(context.Background(), "q", both())
	assert.Less(t, time.Since(start), 190*time.Millisecond)
	assert.Len(t, ctx.Sections, 2)
}

func TestAggregateKitchenLight(t *testing.T) {
	r := retrieval("manual page")
	e := environment("light.kitchen: off")

	agg, err := New([]source.Source{r, e})
	require.NoError(t, err)

	ctx := agg.Aggregate(context.Background(), "turn on kitchen light",
		map[source.Kind]bool{source.KindRetrieval: false, source.KindEnvironment: true})

	require.Len(t, ctx.Sections, 1)
	assert.Equal(t, source.EnvironmentLabel, ctx.Sections[0].Label)
	assert.True(t, strings.Contains(ctx.Sections[0].Body, "light.kitchen: off"))
	assert.Equal(t, int32(0), r.calls.Load())
	assert.Equal(t, "turn on kitchen light", e.query.Load())
}

func TestNewRejectsDuplicateKinds(t *testing.T) {
	_, err := New([]source.Source{retrieval("a"), retrieval("b")})
	assert.True(t, errors.Is(err, ErrDuplicateSource))
}
