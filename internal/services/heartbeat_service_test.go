package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/garden-agent/internal/services"
	"github.com/benmeehan/garden-agent/pkg/clock/clocktest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// TestHeartbeatController_Arm_PingsEveryInterval tests the ping cadence.
func TestHeartbeatController_Arm_PingsEveryInterval(t *testing.T) {
	// Setup
	clk := clocktest.NewFakeClock()
	h := services.NewHeartbeatController(15*time.Second, clk, zerolog.Nop())
	pings := 0

	// Execute
	h.Arm(func() error { pings++; return nil })
	clk.Advance(14 * time.Second)
	assert.Equal(t, 0, pings)
	clk.Advance(31 * time.Second)

	// Assert
	assert.Equal(t, 3, pings)
	assert.True(t, h.Armed())
}

// TestHeartbeatController_Rearm_DoesNotStack tests that re-arming replaces the previous timer.
func TestHeartbeatController_Rearm_DoesNotStack(t *testing.T) {
	clk := clocktest.NewFakeClock()
	h := services.NewHeartbeatController(15*time.Second, clk, zerolog.Nop())
	first, second := 0, 0

	h.Arm(func() error { first++; return nil })
	clk.Advance(10 * time.Second)
	h.Arm(func() error { second++; return nil })
	clk.Advance(30 * time.Second)

	assert.Equal(t, 0, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, clk.Pending())
}

// TestHeartbeatController_Disarm_StopsPinging tests that no ping fires after Disarm.
func TestHeartbeatController_Disarm_StopsPinging(t *testing.T) {
	clk := clocktest.NewFakeClock()
	h := services.NewHeartbeatController(15*time.Second, clk, zerolog.Nop())
	pings := 0

	h.Arm(func() error { pings++; return nil })
	clk.Advance(15 * time.Second)
	h.Disarm()
	clk.Advance(time.Minute)

	assert.Equal(t, 1, pings)
	assert.False(t, h.Armed())
	assert.Equal(t, 0, clk.Pending())

	// Disarming twice is harmless.
	h.Disarm()
}

// TestHeartbeatController_PingError_KeepsTicking tests that a failed ping is only logged.
func TestHeartbeatController_PingError_KeepsTicking(t *testing.T) {
	clk := clocktest.NewFakeClock()
	h := services.NewHeartbeatController(15*time.Second, clk, zerolog.Nop())
	attempts := 0

	h.Arm(func() error { attempts++; return errors.New("write: broken pipe") })
	clk.Advance(45 * time.Second)

	assert.Equal(t, 3, attempts)
	assert.True(t, h.Armed())
}

// TestHeartbeatController_PanicRecovered tests that a panicking probe does not stop the cadence.
func TestHeartbeatController_PanicRecovered(t *testing.T) {
	clk := clocktest.NewFakeClock()
	h := services.NewHeartbeatController(15*time.Second, clk, zerolog.Nop())
	attempts := 0

	h.Arm(func() error { attempts++; panic("boom") })

	assert.NotPanics(t, func() { clk.Advance(30 * time.Second) })
	assert.Equal(t, 2, attempts)
}
