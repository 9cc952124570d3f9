package inflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_AcquireRelease(t *testing.T) {
	var s Set

	require.True(t, s.TryAcquire("a"))
	assert.True(t, s.Has("a"))
	assert.False(t, s.TryAcquire("a"))
	assert.True(t, s.TryAcquire("b"))
	assert.Equal(t, 2, s.Len())

	s.Release("a")
	assert.False(t, s.Has("a"))
	s.Release("missing")
	assert.Equal(t, 1, s.Len())
}

func TestSet_DoReleasesOnError(t *testing.T) {
	var s Set
	boom := errors.New("boom")

	err := s.Do(context.Background(), "k", func(context.Context) error {
		assert.True(t, s.Has("k"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, s.Has("k"))
}

func TestSet_DoReleasesOnPanic(t *testing.T) {
	var s Set

	assert.Panics(t, func() {
		_ = s.Do(context.Background(), "k", func(context.Context) error {
			panic("crash")
		})
	})
	assert.False(t, s.Has("k"))
}

func TestSet_DoBusy(t *testing.T) {
	var s Set
	require.True(t, s.TryAcquire("k"))

	called := false
	err := s.Do(context.Background(), "k", func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrBusy)
	assert.False(t, called)
}

func TestSet_ConcurrentAcquire(t *testing.T) {
	var (
		s    Set
		wins atomic.Int32
		wg   sync.WaitGroup
	)

	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAcquire("hot") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
