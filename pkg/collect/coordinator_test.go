package collect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ensoft/marple/pkg/config"
	"github.com/ensoft/marple/pkg/stream"
)

// fakeCollector scripts one collector's behavior and tracks the
// lifecycle the coordinator promises: attach before collect, detach
// exactly once even on failure paths.
type fakeCollector struct {
	kind       config.Interface
	attachErr  error
	collectErr error
	records    []stream.Record
	wait       bool

	mu       sync.Mutex
	attached bool
	detached bool
}

func (f *fakeCollector) Name() config.Interface { return f.kind }

func (f *fakeCollector) Attach(_ context.Context) error {
	if f.attachErr != nil {
		return f.attachErr
	}

	f.mu.Lock()
	f.attached = true
	f.mu.Unlock()

	return nil
}

func (f *fakeCollector) Collect(ctx context.Context) error {
	if f.wait {
		<-ctx.Done()
	}

	return f.collectErr
}

func (f *fakeCollector) Detach() error {
	f.mu.Lock()
	f.detached = true
	f.mu.Unlock()

	return nil
}

func (f *fakeCollector) Drain() ([]stream.Record, uint64) {
	for i := range f.records {
		f.records[i].Kind = f.kind
	}

	return f.records, 0
}

func (f *fakeCollector) Buffered() int { return len(f.records) }

func (f *fakeCollector) wasDetached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.detached
}

func fakeFactory(fakes map[config.Interface]*fakeCollector) func(config.Interface, ...Option) (Collector, error) {
	return func(kind config.Interface, _ ...Option) (Collector, error) {
		f, ok := fakes[kind]
		if !ok {
			return nil, errors.New("no fake for " + string(kind))
		}

		return f, nil
	}
}

func testConfig(window time.Duration, warnings bool) *config.Config {
	cfg := config.Default()
	cfg.General.Time = window
	cfg.General.Warnings = warnings

	return cfg
}

func TestRunMergesByTimestampThenAttachOrder(t *testing.T) {
	fakes := map[config.Interface]*fakeCollector{
		config.CPUSched: {kind: config.CPUSched, records: []stream.Record{
			{Ts: 50, Value: 1}, {Ts: 100, Value: 2},
		}},
		config.MemLeak: {kind: config.MemLeak, records: []stream.Record{
			{Ts: 100, Value: 3}, {Ts: 150, Value: 4},
		}},
	}

	coord := NewCoordinator(
		[]config.Interface{config.CPUSched, config.MemLeak},
		WithConfig(testConfig(50*time.Millisecond, true)),
		WithLogger(zerolog.Nop()),
		WithFactory(fakeFactory(fakes)),
	)

	s, err := coord.Run(context.Background())
	require.NoError(t, err)

	// The ts=100 tie resolves to cpusched because it attached first.
	values := make([]float64, 0, len(s.Records))
	for _, r := range s.Records {
		values = append(values, r.Value)
	}
	require.Equal(t, []float64{1, 2, 3, 4}, values)
	require.Equal(t, config.CPUSched, s.Records[1].Kind)
	require.Equal(t, config.MemLeak, s.Records[2].Kind)
	require.Equal(t, []config.Interface{config.CPUSched, config.MemLeak}, s.Meta.Interfaces)

	require.True(t, fakes[config.CPUSched].wasDetached())
	require.True(t, fakes[config.MemLeak].wasDetached())
}

func TestRunPartialFailureKeepsSurvivors(t *testing.T) {
	fakes := map[config.Interface]*fakeCollector{
		config.CPUSched: {kind: config.CPUSched, records: []stream.Record{{Ts: 1, Value: 1}}},
		config.MemLeak:  {kind: config.MemLeak, attachErr: errors.New("no kprobes")},
	}

	coord := NewCoordinator(
		[]config.Interface{config.CPUSched, config.MemLeak},
		WithConfig(testConfig(50*time.Millisecond, true)),
		WithLogger(zerolog.Nop()),
		WithFactory(fakeFactory(fakes)),
	)

	s, err := coord.Run(context.Background())
	require.NotNil(t, s)
	require.Len(t, s.Records, 1)

	var pf *PartialFailure
	require.ErrorAs(t, err, &pf)
	require.Equal(t, 2, pf.Total)
	require.Len(t, pf.Failures, 1)
	require.Equal(t, config.MemLeak, pf.Failures[0].Interface)
	require.Equal(t, StageAttach, pf.Failures[0].Stage)

	// The failed collector never armed, so it must not be detached.
	require.True(t, fakes[config.CPUSched].wasDetached())
	require.False(t, fakes[config.MemLeak].wasDetached())
}

func TestRunAbortsOnAttachFailureWithWarningsDisabled(t *testing.T) {
	fakes := map[config.Interface]*fakeCollector{
		config.CPUSched: {kind: config.CPUSched, records: []stream.Record{{Ts: 1, Value: 1}}},
		config.MemLeak:  {kind: config.MemLeak, attachErr: errors.New("no kprobes")},
	}

	coord := NewCoordinator(
		[]config.Interface{config.CPUSched, config.MemLeak},
		WithConfig(testConfig(time.Second, false)),
		WithLogger(zerolog.Nop()),
		WithFactory(fakeFactory(fakes)),
	)

	s, err := coord.Run(context.Background())
	require.Nil(t, s)
	require.ErrorContains(t, err, "warnings disabled")

	var pf *PartialFailure
	require.False(t, errors.As(err, &pf))

	// Whatever armed before the abort is released again.
	require.True(t, fakes[config.CPUSched].wasDetached())
}

func TestRunFailsWhenEveryAttachFails(t *testing.T) {
	fakes := map[config.Interface]*fakeCollector{
		config.CPUSched: {kind: config.CPUSched, attachErr: errors.New("eperm")},
		config.MemLeak:  {kind: config.MemLeak, attachErr: errors.New("eperm")},
	}

	coord := NewCoordinator(
		[]config.Interface{config.CPUSched, config.MemLeak},
		WithConfig(testConfig(time.Second, true)),
		WithLogger(zerolog.Nop()),
		WithFactory(fakeFactory(fakes)),
	)

	_, err := coord.Run(context.Background())
	require.ErrorIs(t, err, ErrNothingToCollect)
}

func TestRunNothingRequested(t *testing.T) {
	coord := NewCoordinator(nil, WithLogger(zerolog.Nop()))

	_, err := coord.Run(context.Background())
	require.ErrorIs(t, err, ErrNothingToCollect)
}

func TestRunCollectFailureIsPartial(t *testing.T) {
	fakes := map[config.Interface]*fakeCollector{
		config.CPUSched: {kind: config.CPUSched, records: []stream.Record{{Ts: 1, Value: 1}},
			collectErr: errors.New("pipe broke")},
	}

	coord := NewCoordinator(
		[]config.Interface{config.CPUSched},
		WithConfig(testConfig(50*time.Millisecond, true)),
		WithLogger(zerolog.Nop()),
		WithFactory(fakeFactory(fakes)),
	)

	s, err := coord.Run(context.Background())
	require.NotNil(t, s)
	require.Len(t, s.Records, 1)

	var pf *PartialFailure
	require.ErrorAs(t, err, &pf)
	require.Equal(t, StageCollect, pf.Failures[0].Stage)
}

func TestRunBlockingEndsWithSources(t *testing.T) {
	fakes := map[config.Interface]*fakeCollector{
		config.CPUSched: {kind: config.CPUSched},
	}

	coord := NewCoordinator(
		[]config.Interface{config.CPUSched},
		WithConfig(testConfig(time.Second, true)),
		WithLogger(zerolog.Nop()),
		WithFactory(fakeFactory(fakes)),
	)

	start := time.Now()
	_, err := coord.Run(context.Background())
	require.NoError(t, err)

	// The fake's source closes immediately, so a blocking run must not
	// sit out the full window.
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRunNonBlockingHoldsTheWindow(t *testing.T) {
	fakes := map[config.Interface]*fakeCollector{
		config.CPUSched: {kind: config.CPUSched},
	}

	cfg := testConfig(300*time.Millisecond, true)
	cfg.General.Blocking = false

	coord := NewCoordinator(
		[]config.Interface{config.CPUSched},
		WithConfig(cfg),
		WithLogger(zerolog.Nop()),
		WithFactory(fakeFactory(fakes)),
	)

	start := time.Now()
	_, err := coord.Run(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestRunDetachesOnCancel(t *testing.T) {
	fakes := map[config.Interface]*fakeCollector{
		config.CPUSched: {kind: config.CPUSched, wait: true},
		config.MemLeak:  {kind: config.MemLeak, wait: true},
	}

	coord := NewCoordinator(
		[]config.Interface{config.CPUSched, config.MemLeak},
		WithConfig(testConfig(time.Hour, true)),
		WithLogger(zerolog.Nop()),
		WithFactory(fakeFactory(fakes)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second)

	require.True(t, fakes[config.CPUSched].wasDetached())
	require.True(t, fakes[config.MemLeak].wasDetached())
}

func TestRunSignalsReadinessAfterAttach(t *testing.T) {
	fakes := map[config.Interface]*fakeCollector{
		config.CPUSched: {kind: config.CPUSched},
	}

	ready := false
	coord := NewCoordinator(
		[]config.Interface{config.CPUSched},
		WithConfig(testConfig(50*time.Millisecond, true)),
		WithLogger(zerolog.Nop()),
		WithFactory(fakeFactory(fakes)),
		WithReadyCallback(func() { ready = true }),
	)

	_, err := coord.Run(context.Background())
	require.NoError(t, err)
	require.True(t, ready)
}
