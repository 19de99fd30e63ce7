package processing

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framepipe/processing/render"
)

func TestDispatchModulus(t *testing.T) {
	d := NewDispatcher(&fakeDetector{}, 3, time.Second, render.DefaultOptions())

	var due []int
	for i := 1; i <= 10; i++ {
		if d.Due() {
			due = append(due, i)
		}
	}
	assert.Equal(t, []int{3, 6, 9}, due)
}

func TestDispatchModulusOne(t *testing.T) {
	d := NewDispatcher(&fakeDetector{}, 1, time.Second, render.DefaultOptions())
	for i := 0; i < 5; i++ {
		assert.True(t, d.Due())
	}
}

func TestAnnotateKeepsDimensions(t *testing.T) {
	det := &fakeDetector{}
	d := NewDispatcher(det, 3, time.Second, render.DefaultOptions())
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))

	out, err := d.Annotate(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), out.Bounds())
	assert.NotSame(t, img, out)
	assert.Equal(t, uint64(1), d.Dispatched())
}

func TestAnnotateFailure(t *testing.T) {
	det := &fakeDetector{fail: func(int) bool { return true }}
	d := NewDispatcher(det, 3, time.Second, render.DefaultOptions())

	out, err := d.Annotate(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, uint64(1), d.Failed())
}

func TestAnnotateIgnoresCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	det := &fakeDetector{block: release}
	d := NewDispatcher(det, 1, time.Second, render.DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Annotate(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4)))
		done <- err
	}()

	require.Eventually(t, func() bool { return det.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()
	close(release)

	assert.NoError(t, <-done)
}
