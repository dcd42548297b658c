// File: internal/retry/retry_test.go
package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base := time.Minute
	tests := []struct {
		attempt int
		centre  time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		for range 20 {
			got := Backoff(base, 5*time.Minute, tt.attempt)
			assert.GreaterOrEqual(t, got, tt.centre*3/4, "attempt %d", tt.attempt)
			assert.LessOrEqual(t, got, tt.centre*5/4, "attempt %d", tt.attempt)
		}
	}
	assert.Zero(t, Backoff(base, time.Hour, 0))
	assert.Zero(t, Backoff(0, time.Hour, 3))
}

func TestUniform(t *testing.T) {
	for range 100 {
		d := Uniform(2*time.Second, 4*time.Second)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
	assert.Equal(t, time.Second, Uniform(time.Second, time.Millisecond))
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
