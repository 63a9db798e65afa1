package worker

import (
	"testing"
	"time"

	"pagemirror/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{
		InitialDelay:  2 * time.Second,
		MaxDelay:      1 * time.Minute,
		BackoffFactor: 2,
	}

	assert.Equal(t, 2*time.Second, policy.NextDelay(1))
	assert.Equal(t, 4*time.Second, policy.NextDelay(2))
	assert.Equal(t, 8*time.Second, policy.NextDelay(3))

	// clamped to MaxDelay
	assert.Equal(t, time.Minute, policy.NextDelay(10))

	// attempt below 1 behaves like the first attempt
	assert.Equal(t, 2*time.Second, policy.NextDelay(0))
	assert.Equal(t, 2*time.Second, policy.NextDelay(-3))
}

func TestRetryPolicyMonotonic(t *testing.T) {
	policy := RetryPolicy{
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 1.7,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := policy.NextDelay(attempt)
		assert.GreaterOrEqual(t, d, prev, "delay must not decrease at attempt %d", attempt)
		assert.GreaterOrEqual(t, d, policy.InitialDelay)
		prev = d
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	var policy RetryPolicy
	d := policy.NextDelay(1)
	assert.Equal(t, time.Second, d)
}

func TestRetryPolicyFromConfig(t *testing.T) {
	policy := RetryPolicyFromConfig(config.SyncConfig{
		InitialDelaySeconds: 3,
		MaxDelaySeconds:     90,
		BackoffFactor:       2.5,
	})

	assert.Equal(t, 3*time.Second, policy.InitialDelay)
	assert.Equal(t, 90*time.Second, policy.MaxDelay)
	assert.Equal(t, 2.5, policy.BackoffFactor)
}
