package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), backoff(0, time.Minute, 1))
	assert.Equal(t, time.Duration(0), backoff(-time.Second, time.Minute, 1))
	assert.Equal(t, time.Duration(0), backoff(time.Second, time.Minute, 0))
}

func TestBackoffGrowsExponentially(t *testing.T) {
	base := 2 * time.Second

	for attempt := 1; attempt <= 5; attempt++ {
		floor := base << (attempt - 1)
		ceil := floor + floor/2

		for i := 0; i < 50; i++ {
			d := backoff(base, 0, attempt)
			assert.GreaterOrEqual(t, d, floor, "attempt %d", attempt)
			assert.LessOrEqual(t, d, ceil, "attempt %d", attempt)
		}
	}
}

func TestBackoffCappedAtMax(t *testing.T) {
	base := 2 * time.Second
	max := 10 * time.Second

	for i := 0; i < 50; i++ {
		d := backoff(base, max, 10)
		assert.LessOrEqual(t, d, max)
		assert.GreaterOrEqual(t, d, base)
	}
}
