package utils

import (
	"context"
	"time"

	"go.viam.com/flexblock/logging"
)

// slowLogIntervals are the waits between warnings; the last one repeats.
var slowLogIntervals = []time.Duration{2 * time.Second, 3 * time.Second, 5 * time.Second}

// SlowLogger warns with msg at growing intervals until ctx is done or the returned function is
// called. Use it around operations that normally finish quickly.
func SlowLogger(ctx context.Context, msg, fieldName, fieldVal string, logger logging.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	start := time.Now()
	go func() {
		for i := 0; ; i++ {
			timer := time.NewTimer(slowLogIntervals[min(i, len(slowLogIntervals)-1)])
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				logger.Warnw(msg, fieldName, fieldVal, "time_elapsed", time.Since(start).Round(time.Second).String())
			}
		}
	}()
	return cancel
}
