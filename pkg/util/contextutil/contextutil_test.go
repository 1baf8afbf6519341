package contextutil_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linefleet/linefleet/pkg/util/contextutil"
	"github.com/stretchr/testify/assert"
)

func TestSleepCompletes(t *testing.T) {
	start := time.Now()
	ok := contextutil.Sleep(context.Background(), 30*time.Millisecond, 10*time.Millisecond, nil)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSleepStopRequested(t *testing.T) {
	var stop atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		stop.Store(true)
	}()
	start := time.Now()
	ok := contextutil.Sleep(context.Background(), 10*time.Second, 10*time.Millisecond, stop.Load)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, contextutil.Sleep(ctx, time.Second, time.Second, nil))
}
