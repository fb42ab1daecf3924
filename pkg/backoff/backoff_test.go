package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Wait(t *testing.T) {
	t.Run("retries exhausted", func(t *testing.T) {
		b := New(3, time.Millisecond, time.Millisecond*4)

		for i := 0; i != 3; i++ {
			assert.True(t, b.Wait(context.Background()))
		}
		assert.False(t, b.Wait(context.Background()))
		assert.Equal(t, 3, b.Attempts())
	})

	t.Run("cancelled", func(t *testing.T) {
		b := New(0, time.Minute, time.Minute)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, b.Wait(ctx))
	})
}

func TestBackoff_NextWait(t *testing.T) {
	b := New(0, time.Millisecond*10, time.Millisecond*30)

	var waits []time.Duration
	for i := 0; i != 4; i++ {
		b.lastBackoff = b.nextWait()
		waits = append(waits, b.lastBackoff)
	}

	// Jitter adds up to 10%.
	assert.GreaterOrEqual(t, waits[0], time.Millisecond*10)
	assert.Less(t, waits[0], time.Millisecond*11)
	assert.GreaterOrEqual(t, waits[1], time.Millisecond*20)
	assert.LessOrEqual(t, waits[3], time.Millisecond*33)
}
