package services_test

import (
	"testing"
	"time"

	"github.com/benmeehan/garden-agent/internal/constants"
	"github.com/benmeehan/garden-agent/internal/services"
	"github.com/benmeehan/garden-agent/pkg/clock/clocktest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestScheduler(policy services.DelayPolicy) (*services.ReconnectScheduler, *clocktest.FakeClock, *int) {
	clk := clocktest.NewFakeClock()
	calls := 0
	r := services.NewReconnectScheduler(policy, clk, zerolog.Nop())
	r.SetConnect(func() { calls++ })
	return r, clk, &calls
}

// TestReconnectScheduler_Schedule_Debounces tests that at most one reconnect is pending.
func TestReconnectScheduler_Schedule_Debounces(t *testing.T) {
	r, clk, calls := newTestScheduler(services.ConstantDelay(3 * time.Second))

	assert.True(t, r.Schedule())
	clk.Advance(time.Second)
	assert.False(t, r.Schedule())
	assert.False(t, r.Schedule())
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(2 * time.Second)
	assert.Equal(t, 1, *calls)
	assert.False(t, r.Pending())

	clk.Advance(time.Minute)
	assert.Equal(t, 1, *calls)
}

// TestReconnectScheduler_GuardClearedBeforeConnect tests that connect may schedule the next attempt.
func TestReconnectScheduler_GuardClearedBeforeConnect(t *testing.T) {
	clk := clocktest.NewFakeClock()
	r := services.NewReconnectScheduler(services.ConstantDelay(3*time.Second), clk, zerolog.Nop())
	calls := 0
	r.SetConnect(func() {
		calls++
		r.Schedule()
	})

	r.Schedule()
	clk.Advance(9 * time.Second)

	assert.Equal(t, 3, calls)
	assert.True(t, r.Pending())
}

// TestReconnectScheduler_Cancel tests that a cancelled reconnect never fires.
func TestReconnectScheduler_Cancel(t *testing.T) {
	r, clk, calls := newTestScheduler(services.ConstantDelay(3 * time.Second))

	r.Schedule()
	r.Cancel()
	clk.Advance(time.Minute)

	assert.Equal(t, 0, *calls)
	assert.False(t, r.Pending())
	assert.True(t, r.Schedule())
}

// TestExponentialDelay_GrowsAndCaps tests the optional backoff policy.
func TestExponentialDelay_GrowsAndCaps(t *testing.T) {
	policy := services.NewExponentialDelay(time.Second, 5*time.Second, 2, false)

	assert.Equal(t, time.Second, policy.Next())
	assert.Equal(t, 2*time.Second, policy.Next())
	assert.Equal(t, 4*time.Second, policy.Next())
	assert.Equal(t, 5*time.Second, policy.Next())
	assert.Equal(t, 5*time.Second, policy.Next())

	policy.Reset()
	assert.Equal(t, time.Second, policy.Next())
}

// TestReconnectScheduler_Reset_RestartsPolicy tests that an opened connection resets the backoff.
func TestReconnectScheduler_Reset_RestartsPolicy(t *testing.T) {
	r, clk, calls := newTestScheduler(services.NewExponentialDelay(time.Second, time.Minute, 2, false))

	r.Schedule() // 1s
	clk.Advance(time.Second)
	r.Schedule() // 2s
	clk.Advance(2 * time.Second)
	assert.Equal(t, 2, *calls)

	r.Reset()
	r.Schedule()
	clk.Advance(time.Second)
	assert.Equal(t, 3, *calls)
}

// TestNewDelayPolicy tests strategy selection.
func TestNewDelayPolicy(t *testing.T) {
	constant := services.NewDelayPolicy(constants.ReconnectStrategyConstant, 3*time.Second, time.Minute, 2, true)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 3*time.Second, constant.Next())
	}

	exponential := services.NewDelayPolicy(constants.ReconnectStrategyExponential, time.Second, time.Minute, 2, false)
	assert.IsType(t, &services.ExponentialDelay{}, exponential)
}
