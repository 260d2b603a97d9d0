package runguard

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGuard_TryAcquire は実行中の2回目の取得が拒否され、解放後は再取得できることを検証します。
func TestGuard_TryAcquire(t *testing.T) {
	t.Parallel()

	g := New("reconcile")

	release, err := g.TryAcquire("run-1")
	require.NoError(t, err)
	assert.True(t, g.Running())
	assert.Equal(t, "run-1", g.Status().RunID)

	_, err = g.TryAcquire("run-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConcurrentRun))

	var cre *ConcurrentRunError
	require.True(t, errors.As(err, &cre))
	assert.Equal(t, "run-1", cre.Current.RunID)
	assert.Equal(t, "reconcile", cre.Current.Name)
	assert.True(t, cre.Current.Running)

	release()
	release() // 二重解放は無害
	assert.False(t, g.Running())
	assert.Empty(t, g.Status().RunID)

	release, err = g.TryAcquire("run-3")
	require.NoError(t, err)
	release()
}

// TestGuard_ReleasedOnPanic は panic 時にも defer による解放が行われることを検証します。
func TestGuard_ReleasedOnPanic(t *testing.T) {
	t.Parallel()

	g := New("ingest")
	func() {
		defer func() { _ = recover() }()
		release, err := g.TryAcquire("x")
		require.NoError(t, err)
		defer release()
		panic("boom")
	}()
	assert.False(t, g.Running())
}

// TestGuard_ConcurrentAcquire は同時に取得を試みても1つしか成功しないことを検証します。
func TestGuard_ConcurrentAcquire(t *testing.T) {
	t.Parallel()

	g := New("ingest")
	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
		start    = make(chan struct{})
	)
	releases := make(chan func(), 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if release, err := g.TryAcquire("r"); err == nil {
				acquired.Add(1)
				releases <- release
			}
		}()
	}
	close(start)
	wg.Wait()
	close(releases)

	assert.Equal(t, int32(1), acquired.Load())
	for r := range releases {
		r()
	}
}
