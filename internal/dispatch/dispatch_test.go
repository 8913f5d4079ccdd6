package dispatch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/savewarden/internal/event"
	"github.com/bamsammich/savewarden/internal/metrics"
)

// recorder collects the PIDs of delivered records.
type recorder struct {
	mu   sync.Mutex
	pids []uint32
	tcs  []*event.TraceContext
	fail func(rec event.Record) error
}

func (r *recorder) HandleTraceEvent(rec event.Record, tc *event.TraceContext) error {
	r.mu.Lock()
	r.pids = append(r.pids, rec.PID)
	r.tcs = append(r.tcs, tc)
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail(rec)
	}
	return nil
}

func (r *recorder) seen() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint32(nil), r.pids...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T, ctrl Controller, opts ...Option) *Dispatcher {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	d := New(ctrl, opts...)
	t.Cleanup(d.Stop)
	return d
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	tc := &event.TraceContext{Session: "test"}
	d := newTestDispatcher(t, rec, WithTraceContext(tc))
	require.NoError(t, d.Start())

	for i := range 500 {
		require.True(t, d.Enqueue(event.NewRecord(event.FileWrite, uint32(i), "x")))
	}

	require.Eventually(t, func() bool { return len(rec.seen()) == 500 },
		5*time.Second, time.Millisecond)

	got := rec.seen()
	for i, pid := range got {
		assert.Equal(t, uint32(i), pid)
	}
	assert.Same(t, tc, rec.tcs[0])
}

func TestDispatcher_ErrorDoesNotStopDispatch(t *testing.T) {
	rec := &recorder{fail: func(r event.Record) error {
		if r.PID%2 == 0 {
			return fmt.Errorf("bad record %d", r.PID)
		}
		return nil
	}}
	d := newTestDispatcher(t, rec)
	require.NoError(t, d.Start())

	for i := range 10 {
		d.Enqueue(event.NewRecord(event.FileWrite, uint32(i), ""))
	}

	require.Eventually(t, func() bool { return len(rec.seen()) == 10 },
		5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return d.Stats().Handled == 10 },
		time.Second, time.Millisecond)
	assert.Equal(t, uint64(5), d.Stats().Failed)
}

func TestDispatcher_PanicDoesNotStopDispatch(t *testing.T) {
	var mu sync.Mutex
	var after []uint32
	ctrl := ControllerFunc(func(rec event.Record, _ *event.TraceContext) error {
		if rec.PID == 1 {
			panic("malformed record")
		}
		mu.Lock()
		after = append(after, rec.PID)
		mu.Unlock()
		return nil
	})
	d := newTestDispatcher(t, ctrl)
	require.NoError(t, d.Start())

	d.Enqueue(event.NewRecord(event.ProcessStart, 1, ""))
	d.Enqueue(event.NewRecord(event.ProcessStart, 2, ""))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(after) == 1
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), d.Stats().Failed)
}

func TestDispatcher_SkipIsNotFailure(t *testing.T) {
	ctrl := ControllerFunc(func(event.Record, *event.TraceContext) error {
		return fmt.Errorf("uninteresting: %w", ErrSkip)
	})
	d := newTestDispatcher(t, ctrl)
	require.NoError(t, d.Start())

	d.Enqueue(event.NewRecord(event.FileRead, 1, ""))
	require.Eventually(t, func() bool { return d.Stats().Handled == 1 },
		5*time.Second, time.Millisecond)
	assert.Zero(t, d.Stats().Failed)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	m := metrics.New("test")
	d := newTestDispatcher(t, &recorder{}, WithCapacity(2), WithMetrics(m))

	// Not started: nothing drains the queue.
	assert.True(t, d.Enqueue(event.NewRecord(event.FileWrite, 1, "")))
	assert.True(t, d.Enqueue(event.NewRecord(event.FileWrite, 2, "")))
	assert.False(t, d.Enqueue(event.NewRecord(event.FileWrite, 3, "")))

	s := d.Stats()
	assert.Equal(t, uint64(2), s.Enqueued)
	assert.Equal(t, uint64(1), s.Dropped)
	assert.Equal(t, 2, s.Pending)

	count, err := testutil.GatherAndCount(m.Gatherer(), "test_events_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDispatcher_BufferedBeforeStart(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(t, rec)

	d.Enqueue(event.NewRecord(event.ProcessStart, 9, ""))
	require.NoError(t, d.Start())

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 },
		5*time.Second, time.Millisecond)
}

func TestDispatcher_DoubleStart(t *testing.T) {
	d := newTestDispatcher(t, &recorder{})
	require.NoError(t, d.Start())
	assert.ErrorIs(t, d.Start(), ErrAlreadyStarted)
}

func TestDispatcher_StopIsPromptAndIdempotent(t *testing.T) {
	d := New(&recorder{}, WithLogger(quietLogger()),
		WithBackoff(SleepBackoff{Min: time.Millisecond, Max: 10 * time.Millisecond}))
	require.NoError(t, d.Start())

	start := time.Now()
	d.Stop()
	assert.Less(t, time.Since(start), time.Second)

	d.Stop()
	assert.False(t, d.Enqueue(event.NewRecord(event.FileWrite, 1, "")),
		"enqueue after stop must be rejected")
}

func TestDispatcher_StopBeforeStart(t *testing.T) {
	d := New(&recorder{}, WithLogger(quietLogger()))
	assert.NotPanics(t, d.Stop)
}

func TestSleepBackoff_Delay(t *testing.T) {
	b := SleepBackoff{Min: time.Millisecond, Max: 8 * time.Millisecond}
	assert.Equal(t, time.Millisecond, b.delay(1))
	assert.Equal(t, 2*time.Millisecond, b.delay(2))
	assert.Equal(t, 4*time.Millisecond, b.delay(3))
	assert.Equal(t, 8*time.Millisecond, b.delay(4))
	assert.Equal(t, 8*time.Millisecond, b.delay(40))
}

func TestParseBackoff(t *testing.T) {
	tests := []struct {
		name string
		want Backoff
	}{
		{name: "", want: YieldBackoff{}},
		{name: "yield", want: YieldBackoff{}},
		{name: "spin", want: SpinBackoff{Spins: 64}},
	}
	for _, tt := range tests {
		got, err := ParseBackoff(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	b, err := ParseBackoff("sleep")
	require.NoError(t, err)
	assert.IsType(t, SleepBackoff{}, b)

	_, err = ParseBackoff("nap")
	require.Error(t, err)
}

func TestControllerFunc(t *testing.T) {
	want := errors.New("boom")
	f := ControllerFunc(func(event.Record, *event.TraceContext) error { return want })
	assert.ErrorIs(t, f.HandleTraceEvent(event.Record{}, nil), want)
}
