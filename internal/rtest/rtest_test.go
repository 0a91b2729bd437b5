package rtest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForkCOWSmokeScenario(t *testing.T) {
	r := ForkCOWSmoke()
	require.True(t, r.Passed, r.Detail)
}

func TestStrideRatioScenario(t *testing.T) {
	r := StrideRatio(300)
	require.True(t, r.Passed, r.Detail)
}

func TestTimerFiresOnceScenario(t *testing.T) {
	r := TimerFiresOnce(10)
	require.True(t, r.Passed, r.Detail)
}

func TestChannelRTTScenario(t *testing.T) {
	r := ChannelRTT(10000)
	require.True(t, r.Passed, r.Detail)
}

func TestIRQMaskNestingScenario(t *testing.T) {
	r := IRQMaskNesting()
	require.True(t, r.Passed, r.Detail)
}

func TestExitReapsHandlesScenario(t *testing.T) {
	r := ExitReapsHandles()
	require.True(t, r.Passed, r.Detail)
}
