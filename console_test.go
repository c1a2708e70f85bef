package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yarb/sunburn/governor"
)

func TestConsoleEmptyLineCancelsPrompt(t *testing.T) {
	c := &consoleState{}

	events, _ := c.Handle("pid")
	assert.Empty(t, events)

	events, output := c.Handle("")
	assert.Empty(t, events)
	require.Len(t, output, 1)
	assert.Equal(t, "Cancelled", output[0])

	// Back at idle: empty line is now a no-op.
	events, output = c.Handle("")
	assert.Empty(t, events)
	assert.Empty(t, output)
}

func TestConsolePidFlow(t *testing.T) {
	c := &consoleState{}

	c.Handle("pid")
	events, _ := c.Handle("20")
	assert.Empty(t, events)
	events, _ = c.Handle("0.7")
	assert.Empty(t, events)
	events, _ = c.Handle("1.5")

	require.Len(t, events, 1)
	assert.Equal(t, eventSetGains, events[0].kind)
	assert.Equal(t, governor.Gains{Kp: 20, Ki: 0.7, Kd: 1.5}, events[0].gains)
}

func TestConsoleInvalidNumberReprompts(t *testing.T) {
	c := &consoleState{}

	c.Handle("pid")
	events, output := c.Handle("banana")
	assert.Empty(t, events)
	require.Len(t, output, 2)
	assert.Equal(t, "Given value is not a valid number", output[0])

	// Flow is still on the same step, a valid value continues it.
	events, _ = c.Handle("19")
	assert.Empty(t, events)
	c.Handle("0.5")
	events, _ = c.Handle("1")
	require.Len(t, events, 1)
	assert.Equal(t, eventSetGains, events[0].kind)
}

func TestConsoleModeAutomatic(t *testing.T) {
	c := &consoleState{}

	c.Handle("mode")
	events, _ := c.Handle("a")
	require.Len(t, events, 1)
	assert.Equal(t, eventSetMode, events[0].kind)
	assert.Equal(t, ModeAutomatic, events[0].mode)
}

func TestConsoleModeManualLimitFlowsIntoLimits(t *testing.T) {
	c := &consoleState{}

	c.Handle("mode")
	events, _ := c.Handle("l")
	require.Len(t, events, 1)
	assert.Equal(t, eventSetMode, events[0].kind)
	assert.Equal(t, ModeManualLimit, events[0].mode)

	// Mode selection continues directly into limit entry.
	events, _ = c.Handle("80")
	assert.Empty(t, events)
	events, _ = c.Handle("3")
	require.Len(t, events, 1)
	assert.Equal(t, eventSetLimits, events[0].kind)
	assert.Equal(t, 80.0, events[0].cpu)
	assert.Equal(t, 3, events[0].cores)
}

func TestConsoleModeManualPowerFlowsIntoTarget(t *testing.T) {
	c := &consoleState{}

	c.Handle("mode")
	events, _ := c.Handle("p")
	require.Len(t, events, 1)
	assert.Equal(t, ModeManualPower, events[0].mode)

	events, _ = c.Handle("30")
	require.Len(t, events, 1)
	assert.Equal(t, eventSetTarget, events[0].kind)
	assert.Equal(t, 30.0, events[0].target)
}

func TestConsoleModeInvalidSelectionReprompts(t *testing.T) {
	c := &consoleState{}

	c.Handle("mode")
	events, output := c.Handle("x")
	assert.Empty(t, events)
	require.Len(t, output, 1)

	events, _ = c.Handle("a")
	require.Len(t, events, 1)
}

func TestConsoleStatusAndUnknown(t *testing.T) {
	c := &consoleState{}

	events, _ := c.Handle("status")
	require.Len(t, events, 1)
	assert.Equal(t, eventShowStatus, events[0].kind)

	events, output := c.Handle("frobnicate")
	assert.Empty(t, events)
	require.Len(t, output, 1)
	assert.Contains(t, output[0], "frobnicate")
	assert.Contains(t, output[0], "help")
}

func TestConsoleLimitsCommandEntersManualLimit(t *testing.T) {
	c := &consoleState{}

	// Direct limit entry takes manual control first, otherwise the values
	// would not stick past the next adjustment.
	events, _ := c.Handle("limits")
	require.Len(t, events, 1)
	assert.Equal(t, eventSetMode, events[0].kind)
	assert.Equal(t, ModeManualLimit, events[0].mode)

	c.Handle("55.5")
	events, _ = c.Handle("2")
	require.Len(t, events, 1)
	assert.Equal(t, eventSetLimits, events[0].kind)
	assert.Equal(t, 55.5, events[0].cpu)
	assert.Equal(t, 2, events[0].cores)
}

func TestConsoleDirectPowerCommand(t *testing.T) {
	c := &consoleState{}

	c.Handle("power")
	events, _ := c.Handle("0.5")
	require.Len(t, events, 1)
	assert.Equal(t, eventSetTarget, events[0].kind)
	assert.Equal(t, 0.5, events[0].target)
}
