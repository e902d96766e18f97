package mode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModePredicates(t *testing.T) {
	running := map[Mode]bool{WaitInit: true, NeedAP: true, ConnectingAP: true, Running: true}
	receiving := map[Mode]bool{WaitInit: true, NeedAP: true, ConnectingAP: true, Running: true, Scanning: true, FlashErrorNotConnected: true}
	for m := Uninitialized; m <= FlashErrorOther; m++ {
		require.Equal(t, running[m], m.IsRunning(), m.String())
		require.Equal(t, receiving[m], m.CanReceive(), m.String())
	}
	require.Panics(t, func() { Mode(42).IsRunning() })
	require.Equal(t, "Mode(42)", Mode(42).String())
}

func TestDeviceInfo(t *testing.T) {
	c := NewController(DefaultInitCountdown)
	c.Set(WaitInit)
	require.NoError(t, c.OnDeviceInfo(c.RequiredVersion))
	require.Equal(t, NeedAP, c.Get())
	require.Equal(t, FwOK, c.FwState())
	require.Equal(t, LinkNoAP, c.LinkState())

	// a second device info is not re-applied.
	c.Set(ConnectingAP)
	require.Equal(t, ErrDuplicateDeviceInfo, c.OnDeviceInfo(c.RequiredVersion+1))
	require.Equal(t, ConnectingAP, c.Get())
}

func TestDeviceInfoWrongVersion(t *testing.T) {
	c := NewController(DefaultInitCountdown)
	c.Set(WaitInit)
	require.Equal(t, ErrWrongFirmware, c.OnDeviceInfo(c.RequiredVersion-1))
	require.Equal(t, WrongFirmware, c.Get())
	require.Equal(t, FwWrongVersion, c.FwState())
	require.Equal(t, LinkInit, c.LinkState())

	// sticks until reset.
	require.True(t, errors.Is(c.OnDeviceInfo(c.RequiredVersion), ErrDuplicateDeviceInfo))
	require.Equal(t, FwWrongVersion, c.FwState())
	c.Reset()
	require.Equal(t, WaitInit, c.Get())
	require.NoError(t, c.OnDeviceInfo(c.RequiredVersion))
	require.Equal(t, FwOK, c.FwState())
}

func TestFwStateWaitInit(t *testing.T) {
	c := NewController(2)
	require.Equal(t, FwUnknown, c.FwState())
	c.Set(WaitInit)
	require.Equal(t, FwNoESP, c.FwState())
	c.MarkDetected()
	require.Equal(t, FwUnknown, c.FwState())
	c.Tick(nil)
	require.Equal(t, FwUnknown, c.FwState())
	c.Tick(nil)
	require.Equal(t, FwNoFirmware, c.FwState())
	c.Tick(nil)
	require.Equal(t, FwNoFirmware, c.FwState())

	require.NoError(t, c.OnDeviceInfo(c.RequiredVersion))
	// once seen working, a reset never reports it missing.
	c.Reset()
	require.Equal(t, FwOK, c.FwState())
	c.Set(Uninitialized)
	require.Equal(t, FwOK, c.FwState())
}

func TestFwStateTable(t *testing.T) {
	testCases := []struct {
		mode Mode
		fw   FwState
		link LinkState
	}{
		{NeedAP, FwOK, LinkNoAP},
		{ConnectingAP, FwOK, LinkNoAP},
		{Running, FwOK, LinkNoAP},
		{Scanning, FwScanning, LinkInit},
		{WrongFirmware, FwWrongVersion, LinkInit},
		{FlashErrorNotConnected, FwFlashingErrorNotConnected, LinkInit},
		{FlashErrorOther, FwFlashingErrorOther, LinkInit},
	}
	for _, tc := range testCases {
		t.Run(tc.mode.String(), func(t *testing.T) {
			c := NewController(0)
			c.Set(tc.mode)
			require.Equal(t, tc.fw, c.FwState())
			require.Equal(t, tc.link, c.LinkState())
		})
	}
}

func TestLinkStateRunning(t *testing.T) {
	c := NewController(0)
	c.Set(Running)
	require.Equal(t, LinkNoAP, c.LinkState())
	require.True(t, c.SetLink(true))
	require.False(t, c.SetLink(true))
	require.Equal(t, LinkSilent, c.LinkState())
	c.MarkIntron()
	require.Equal(t, LinkUp, c.LinkState())
	require.True(t, c.Tick(func() error { return nil }))
	require.Equal(t, LinkSilent, c.LinkState())
	require.True(t, c.SetLink(false))
	require.Equal(t, LinkNoAP, c.LinkState())
}

func TestTickKeepalive(t *testing.T) {
	c := NewController(DefaultInitCountdown)
	c.Set(Running)
	c.SetLink(true)
	var pings int
	ping := func() error {
		pings++
		return nil
	}
	for i := 1; i <= 3; i++ {
		require.False(t, c.Tick(ping))
		require.Equal(t, i, pings)
	}

	// a received packet suppresses the keepalive for one period.
	c.MarkIntron()
	c.MarkPacket()
	require.True(t, c.Tick(ping))
	require.Equal(t, 3, pings)

	// no keepalive while scanning or with the link down.
	c.Set(Scanning)
	require.False(t, c.Tick(ping))
	c.Set(Running)
	c.SetLink(false)
	require.False(t, c.Tick(ping))
	require.Equal(t, 3, pings)
}

func TestTickPingError(t *testing.T) {
	c := NewController(0)
	c.Set(NeedAP)
	c.SetLink(true)
	require.False(t, c.Tick(func() error { return errors.New("busy") }))
}

func TestNotifyFlashResult(t *testing.T) {
	testCases := []struct {
		result FlashResult
		mode   Mode
	}{
		{FlashSuccess, WaitInit},
		{FlashNotConnected, FlashErrorNotConnected},
		{FlashFailure, FlashErrorOther},
	}
	for _, tc := range testCases {
		c := NewController(0)
		c.Set(Running)
		c.NotifyFlashResult(tc.result)
		require.Equal(t, tc.mode, c.Get())
	}
}

func TestParseFlashResult(t *testing.T) {
	r, err := ParseFlashResult("not-connected")
	require.NoError(t, err)
	require.Equal(t, FlashNotConnected, r)
	_, err = ParseFlashResult("maybe")
	require.Error(t, err)
}
