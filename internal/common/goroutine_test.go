package common

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeGo_RecoversPanic(t *testing.T) {
	before := GetTaskStats()

	var wg sync.WaitGroup
	wg.Add(1)
	SafeGo(nil, "panicking", func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()

	assert.Eventually(t, func() bool {
		return GetTaskStats().Recovered > before.Recovered
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, before.Started+1, GetTaskStats().Started)
}

func TestRunSafely(t *testing.T) {
	err := RunSafely(nil, "ok", func() error { return nil })
	require.NoError(t, err)

	err = RunSafely(nil, "panicking", func() error { panic("bad input") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in panicking: bad input")
}
