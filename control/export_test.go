package control

import (
	"context"
	"time"
)

// Step runs a single tick on the calling goroutine.
func (l *Loop) Step(dt time.Duration) {
	l.step(context.Background(), dt)
}
