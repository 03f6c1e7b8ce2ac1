package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRegistry(t *testing.T) {
	r := newTaskRegistry()

	ctx1, cancel1 := context.WithCancel(context.Background())
	first, ok := r.add("job-1", 1, cancel1)
	require.True(t, ok)
	assert.True(t, r.active("job-1"))

	ctx2, cancel2 := context.WithCancel(context.Background())
	second, ok := r.add("job-1", 2, cancel2)
	require.True(t, ok)
	assert.Error(t, ctx1.Err(), "replaced attempt is cancelled")

	r.finish(first)
	assert.True(t, r.active("job-1"), "finishing the old attempt keeps the new one")

	assert.True(t, r.cancel("job-1"))
	assert.Error(t, ctx2.Err())
	r.finish(second)
	assert.False(t, r.active("job-1"))
	assert.False(t, r.cancel("job-1"))

	require.NoError(t, r.wait(context.Background()))

	r.close()
	_, ok = r.add("job-2", 1, func() {})
	assert.False(t, ok)
}

func TestTaskRegistry_WaitAbandonsOnDeadline(t *testing.T) {
	r := newTaskRegistry()
	taskCtx, cancel := context.WithCancel(context.Background())
	tk, ok := r.add("job-1", 1, cancel)
	require.True(t, ok)

	ctx, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer stop()
	assert.ErrorIs(t, r.wait(ctx), context.DeadlineExceeded)
	assert.Error(t, taskCtx.Err())

	r.finish(tk)
	assert.Zero(t, r.count())
}
