// -----------------------------------------------------------------------
// Background tasks - panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// TaskStats is a snapshot of background task counters
type TaskStats struct {
	Started   int64 `json:"started"`
	Active    int64 `json:"active"`
	Recovered int64 `json:"recovered_panics"`
}

var (
	tasksStarted   atomic.Int64
	tasksActive    atomic.Int64
	tasksRecovered atomic.Int64
)

// GetTaskStats reports the tasks started through SafeGo and the panics recovered
// by SafeGo and RunSafely
func GetTaskStats() TaskStats {
	return TaskStats{
		Started:   tasksStarted.Load(),
		Active:    tasksActive.Load(),
		Recovered: tasksRecovered.Load(),
	}
}

// SafeGo starts fn on its own goroutine. A panic is logged with its stack and
// the goroutine exits without taking the process down.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	tasksStarted.Add(1)
	tasksActive.Add(1)

	go func() {
		defer tasksActive.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				logPanic(logger, name, r)
			}
		}()
		fn()
	}()
}

// RunSafely calls fn on the current goroutine and converts a panic into an error
func RunSafely(logger arbor.ILogger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, name, r)
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn()
}

func logPanic(logger arbor.ILogger, name string, r interface{}) {
	tasksRecovered.Add(1)
	if logger == nil {
		logger = GetLogger()
	}
	logger.Error().
		Str("task", name).
		Str("panic", fmt.Sprintf("%v", r)).
		Str("stack", GetStackTrace()).
		Msg("Recovered from panic")
}
