package xdispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

func TestBuilder_NoRegistry(t *testing.T) {
	_, err := NewDispatcherBuilder().Build()
	assert.Equal(t, ErrNoRegistryConfigured, err)
}

func TestBuilder_UnknownRegistry(t *testing.T) {
	_, err := NewDispatcherBuilder().WithRegistry("does-not-exist", nil).Build()
	var unknown ErrUnknownRegistry
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestBuilder_NamedRegistry(t *testing.T) {
	var gotCfg map[string]any
	require.NoError(t, RegisterRegistry("builder-test", func(cfg map[string]any) (Registry, error) {
		gotCfg = cfg
		return directRegistry(nil), nil
	}))
	assert.Contains(t, RegisteredRegistries(), "builder-test")

	d, err := NewDispatcherBuilder().WithRegistry("builder-test", nil).Build()
	require.NoError(t, err)
	defer d.Close(context.Background())

	assert.NotNil(t, gotCfg)
	_, err = d.Dispatch(context.Background(), accountRequest(Fields{"id": "acct-1"}, okHandler()))
	assert.NoError(t, err)
}

func TestRegisterRegistry_Rejects(t *testing.T) {
	assert.Error(t, RegisterRegistry("", func(map[string]any) (Registry, error) { return nil, nil }))
	assert.Error(t, RegisterRegistry("x", nil))
}

func TestBuilder_FactoryErrorSurfaces(t *testing.T) {
	errBoom := errors.New("boom")
	require.NoError(t, RegisterRegistry("builder-failing", func(map[string]any) (Registry, error) { return nil, errBoom }))

	_, err := NewDispatcherBuilder().WithRegistry("builder-failing", nil).Build()
	assert.ErrorIs(t, err, errBoom)
}

func TestBuilder_DefaultTimeoutApplies(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d := newTestDispatcher(t, directRegistry(nil), func(b *DispatcherBuilder) {
		b.WithDefaultTimeout(30 * time.Millisecond)
	})
	hang := func(ctx context.Context, state any, cmd Command) ([]any, error) {
		<-release
		return nil, nil
	}

	req := accountRequest(Fields{"id": "acct-1"}, hang)
	req.Timeout = 0
	_, err := d.Dispatch(context.Background(), req)

	assert.Equal(t, ErrAggregateExecutionTimeout, err)
}

func TestBuilder_WithLoggerAndClock(t *testing.T) {
	lg := xlog.Default()
	clk := xclock.Default()
	d := newTestDispatcher(t, directRegistry(nil), func(b *DispatcherBuilder) {
		b.WithLogger(lg).WithClock(clk)
	})
	var gotLogger *xlog.Logger
	h := func(ctx context.Context, state any, cmd Command) ([]any, error) {
		gotLogger, _ = LoggerFromContext(ctx)
		return nil, nil
	}

	_, err := d.Dispatch(context.Background(), accountRequest(Fields{"id": "acct-1"}, h))

	require.NoError(t, err)
	assert.Same(t, lg, gotLogger)
}

func TestNew_ReturnsCloseFunc(t *testing.T) {
	d, closeFn, err := New(func(b *DispatcherBuilder) { b.WithRegistryInstance(directRegistry(nil)) })
	require.NoError(t, err)
	require.NoError(t, closeFn())

	_, err = d.Dispatch(context.Background(), accountRequest(Fields{"id": "acct-1"}, okHandler()))
	assert.Equal(t, ErrDispatcherClosed, err)

	_, _, err = New(nil)
	assert.Equal(t, ErrNoRegistryConfigured, err)
}

func TestFacade(t *testing.T) {
	d := newTestDispatcher(t, directRegistry(nil), nil)
	SetDefault(d)

	got, err := Default()
	require.NoError(t, err)
	assert.Same(t, d, got)

	_, err = Dispatch(context.Background(), accountRequest(Fields{"id": "acct-1"}, okHandler()))
	assert.NoError(t, err)

	assert.Panics(t, func() { SetDefault(nil) })
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
default_timeout: 2s
registry:
  name: memory
  options:
    strict_types: true
observer_pool:
  workers: 4
  buffer_size: 2048
`))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, "memory", cfg.Registry.Name)
	assert.Equal(t, true, cfg.Registry.Options["strict_types"])
	assert.Equal(t, 4, cfg.ObserverPool.Workers)
	assert.Equal(t, 2048, cfg.ObserverPool.BufferSize)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("default_timeout: -1s"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("observer_pool:\n  workers: -2\n"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("registry: [unclosed"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xdispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_timeout: 250ms\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.DefaultTimeout)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuilder_WithConfig(t *testing.T) {
	require.NoError(t, RegisterRegistry("config-test", func(map[string]any) (Registry, error) {
		return directRegistry(nil), nil
	}))
	cfg := Config{
		DefaultTimeout: time.Second,
		Registry:       RegistryConfig{Name: "config-test"},
		ObserverPool:   ObserverPoolConfig{Workers: 1, BufferSize: 8},
	}

	d, err := NewDispatcherBuilder().WithConfig(cfg).Build()
	require.NoError(t, err)
	defer d.Close(context.Background())

	assert.Equal(t, time.Second, d.defaultTimeout)
	require.NotNil(t, d.observerPool)
	assert.Equal(t, 8, d.observerPool.Stats().BufferSize)
}

func TestCodec(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	b, err := c.Marshal(map[string]any{"id": "acct-1"})
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, c.Unmarshal(b, &out))
	assert.Equal(t, "acct-1", out["id"])

	_, err = NewCodec("nope")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `"nope"`)
	assert.Equal(t, ErrEmptyCodecName, RegisterCodec("", func() Codec { return JSONCodec{} }))
	assert.Equal(t, ErrNilCodec, RegisterCodec("x", nil))
}

func TestObserverPool_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	var delivered atomic.Int32
	obs := []Observer{ObserverFunc(func(Event) {
		<-block
		delivered.Add(1)
	})}
	op := NewObserverPool(1, 1)

	for i := 0; i < 10; i++ {
		op.Notify(Event{Type: DispatchStart}, obs)
	}
	close(block)
	require.NoError(t, op.Close(time.Second))

	s := op.Stats()
	assert.Greater(t, s.Dropped, uint64(0))
	assert.Equal(t, uint64(delivered.Load()), s.Processed)
	assert.Equal(t, uint64(10), s.Dropped+s.Processed)
}

func TestObserverPool_RecoversObserverPanic(t *testing.T) {
	var after atomic.Int32
	obs := []Observer{
		ObserverFunc(func(Event) { panic("observer bug") }),
		ObserverFunc(func(Event) { after.Add(1) }),
	}
	op := NewObserverPool(1, 4)
	op.Notify(Event{Type: DispatchDone}, obs)
	require.NoError(t, op.Close(time.Second))

	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, uint64(1), op.panics.Load())

	// closed pools ignore new events
	op.Notify(Event{Type: DispatchDone}, obs)
	assert.Equal(t, uint64(1), op.Stats().Processed)
}

func TestObserverPool_CloseTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	op := NewObserverPool(1, 4)
	op.Notify(Event{}, []Observer{ObserverFunc(func(Event) { <-block })})
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, ErrObserverPoolShutdown, op.Close(20*time.Millisecond))
	assert.NoError(t, op.Close(20*time.Millisecond))
}

type countingObserver struct{ n atomic.Int32 }

func (c *countingObserver) OnEvent(Event) { c.n.Add(1) }

func TestDispatcher_RemoveObserver(t *testing.T) {
	d := newTestDispatcher(t, directRegistry(nil), nil)
	obs := &countingObserver{}
	d.AddObserver(obs)

	_, err := d.Dispatch(context.Background(), accountRequest(Fields{"id": "acct-1"}, okHandler()))
	require.NoError(t, err)
	seen := obs.n.Load()
	assert.Equal(t, int32(3), seen)

	d.RemoveObserver(obs)
	_, err = d.Dispatch(context.Background(), accountRequest(Fields{"id": "acct-1"}, okHandler()))
	require.NoError(t, err)
	assert.Equal(t, seen, obs.n.Load())
}

func TestLoggingMiddleware(t *testing.T) {
	d := newTestDispatcher(t, directRegistry(nil), func(b *DispatcherBuilder) {
		b.WithMiddleware(LoggingMiddleware(xlog.Default(), xclock.Default()))
	})

	_, err := d.Dispatch(context.Background(), accountRequest(Fields{"id": "acct-1"}, okHandler()))
	assert.NoError(t, err)
	_, err = d.Dispatch(context.Background(), accountRequest(Fields{"id": "acct-1"}, errHandler(errInsufficientFunds)))
	assert.ErrorIs(t, err, errInsufficientFunds)
}
