package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayDoublesUpToCap(t *testing.T) {
	w := &Worker{cfg: WorkerConfig{RetryBackoff: 30 * time.Second}}

	assert.Equal(t, 30*time.Second, w.retryDelay(1))
	assert.Equal(t, time.Minute, w.retryDelay(2))
	assert.Equal(t, 4*time.Minute, w.retryDelay(4))
	assert.Equal(t, maxRetryDelay, w.retryDelay(12))

	w.cfg.RetryBackoff = -1
	assert.Zero(t, w.retryDelay(3))
}
