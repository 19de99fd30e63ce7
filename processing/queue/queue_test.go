package queue

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framepipe/processing/frame"
	"framepipe/processing/frame/frametest"
)

func newHandle(seq uint64) (*frame.Handle, *frametest.Buffer) {
	buf := frametest.NewGray(frame.LayoutI420, 2, 2)
	return frame.Acquire(buf, seq), buf
}

func TestFIFO(t *testing.T) {
	q := New()
	for i := uint64(1); i <= 5; i++ {
		h, _ := newHandle(i)
		require.True(t, q.Push(h))
	}

	for i := uint64(1); i <= 5; i++ {
		h, ok := q.TryPop(context.Background(), time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, i, h.Seq)
		h.Release()
	}
	assert.Zero(t, q.Len())
}

func TestTryPopEmptyTimesOut(t *testing.T) {
	q := New()

	start := time.Now()
	h, ok := q.TryPop(context.Background(), 20*time.Millisecond)

	assert.False(t, ok)
	assert.Nil(t, h)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTryPopWakesOnPush(t *testing.T) {
	q := New()
	h, _ := newHandle(1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(h)
	}()

	start := time.Now()
	got, ok := q.TryPop(context.Background(), 2*time.Second)
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Less(t, time.Since(start), time.Second)
	got.Release()
}

func TestTryPopReturnsOnCancel(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := q.TryPop(ctx, 2*time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFlushReleasesEverything(t *testing.T) {
	q := New()
	var bufs []*frametest.Buffer
	for i := uint64(1); i <= 4; i++ {
		h, buf := newHandle(i)
		bufs = append(bufs, buf)
		q.Push(h)
	}

	assert.Equal(t, 4, q.Flush())
	assert.Zero(t, q.Len())
	for _, buf := range bufs {
		assert.Zero(t, buf.Held())
	}

	_, ok := q.TryPop(context.Background(), time.Millisecond)
	assert.False(t, ok, "flushed frames must never be popped")
}

func TestPushAfterFlushIsQueued(t *testing.T) {
	q := New()
	h1, _ := newHandle(1)
	q.Push(h1)
	q.Flush()

	h2, buf2 := newHandle(2)
	require.True(t, q.Push(h2))

	got, ok := q.TryPop(context.Background(), time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Seq)
	got.Release()
	assert.Zero(t, buf2.Held())
}

func TestCloseRejectsLaterPushes(t *testing.T) {
	q := New()
	h1, buf1 := newHandle(1)
	q.Push(h1)

	assert.Equal(t, 1, q.Close())
	assert.True(t, q.Closed())
	assert.Zero(t, buf1.Held())

	h2, buf2 := newHandle(2)
	assert.False(t, q.Push(h2))
	assert.Zero(t, buf2.Held())
	assert.Zero(t, q.Len())
}

// Pushers, one popper and a flusher race; every frame must end up either
// popped or flushed, never both, and every hold must be dropped exactly once.
func TestConcurrentPushPopFlushConservation(t *testing.T) {
	const pushers = 4
	const perPusher = 500

	q := New()
	var seq atomic.Uint64
	var bufMu sync.Mutex
	var bufs []*frametest.Buffer

	var popped, flushed atomic.Int64
	var doublePop atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var consumers sync.WaitGroup
	consumers.Add(2)
	go func() {
		defer consumers.Done()
		for ctx.Err() == nil {
			h, ok := q.TryPop(ctx, time.Millisecond)
			if !ok {
				continue
			}
			if h.Released() {
				doublePop.Store(true)
			}
			popped.Add(1)
			h.Release()
		}
	}()
	go func() {
		defer consumers.Done()
		r := rand.New(rand.NewSource(1))
		for ctx.Err() == nil {
			flushed.Add(int64(q.Flush()))
			time.Sleep(time.Duration(r.Intn(300)) * time.Microsecond)
		}
	}()

	var producers sync.WaitGroup
	for p := 0; p < pushers; p++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for i := 0; i < perPusher; i++ {
				buf := frametest.NewGray(frame.LayoutI420, 2, 2)
				bufMu.Lock()
				bufs = append(bufs, buf)
				bufMu.Unlock()
				q.Push(frame.Acquire(buf, seq.Add(1)))
			}
		}()
	}
	producers.Wait()

	require.Eventually(t, func() bool { return q.Len() == 0 }, 5*time.Second, time.Millisecond)
	cancel()
	consumers.Wait()
	flushed.Add(int64(q.Close()))

	assert.False(t, doublePop.Load())
	assert.Equal(t, int64(pushers*perPusher), popped.Load()+flushed.Load())
	for _, buf := range bufs {
		require.Equal(t, int64(1), buf.Refs())
		require.Equal(t, int64(1), buf.Unrefs())
	}
}
