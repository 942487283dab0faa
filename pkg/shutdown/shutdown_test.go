package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_ShutsDownInReverseOrder(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)
	var order []string

	m.RegisterNoErr("store", func() { order = append(order, "store") })
	m.Register("worker", func(context.Context) error {
		order = append(order, "worker")
		return nil
	})
	m.RegisterNoErr("http", func() { order = append(order, "http") })

	require.NoError(t, m.Shutdown())
	assert.Equal(t, []string{"http", "worker", "store"}, order)
}

type closer struct{ err error }

func (c closer) Close() error { return c.err }

func TestManager_JoinsErrorsAndContinues(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)
	errStore := errors.New("store close failed")
	errAMQP := errors.New("channel already closed")
	reached := false

	m.RegisterNoErr("first", func() { reached = true })
	m.RegisterCloser("store", closer{err: errStore})
	m.RegisterCloser("amqp", closer{err: errAMQP})

	err := m.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errStore)
	assert.ErrorIs(t, err, errAMQP)
	assert.True(t, reached)
}

func TestManager_WaitForShutdownOnContext(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)
	var stopped atomic.Bool
	m.RegisterNoErr("worker", func() { stopped.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.WaitForShutdown(ctx))
	assert.True(t, stopped.Load())
}

func TestPeriodicWorker_RunsAndStops(t *testing.T) {
	w := NewPeriodicWorker("scheduler", 10*time.Millisecond, zap.NewNop())
	var runs atomic.Int32

	w.Start(context.Background(), func(ctx context.Context) {
		runs.Add(1)
	})

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestPeriodicWorker_ShutdownWaitsForRunningJob(t *testing.T) {
	w := NewPeriodicWorker("scheduler", time.Hour, zap.NewNop())
	started := make(chan struct{})
	var finished atomic.Bool

	w.Start(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))
	assert.True(t, finished.Load())
}

func TestPeriodicWorker_ShutdownBeforeStart(t *testing.T) {
	w := NewPeriodicWorker("idle", time.Second, zap.NewNop())
	assert.NoError(t, w.Shutdown(context.Background()))
}
