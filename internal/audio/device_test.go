package audio

import (
	"context"
	"testing"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"
)

func TestSelectDeviceFromListPrimaryDefault(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true},
		{ID: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "default", "default")
	require.NoError(t, err)
	require.Equal(t, "elgato", selection.Device.ID)
	require.Empty(t, selection.Warning)
	require.False(t, selection.Fallback)
}

func TestSelectDeviceFromListMutedPrimaryUsesFallback(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Muted: true, Default: true},
		{ID: "sony", Description: "Sony WH-1000XM6", Available: true},
	}

	selection, err := selectDeviceFromList(devices, "elgato", "sony")
	require.NoError(t, err)
	require.Equal(t, "sony", selection.Device.ID)
	require.Contains(t, selection.Warning, "muted")
	require.True(t, selection.Fallback)
}

func TestSelectDeviceFromListUnavailableInputFallsBackToDefault(t *testing.T) {
	devices := []Device{
		{ID: "usb-mic", Description: "USB Mic", Available: false},
		{ID: "builtin", Description: "Built-in", Available: true, Default: true},
	}

	selection, err := selectDeviceFromList(devices, "usb", "")
	require.NoError(t, err)
	require.Equal(t, "builtin", selection.Device.ID)
	require.Contains(t, selection.Warning, "unavailable")
}

func TestSelectDeviceFromListFailsWhenSelectedAndFallbackMuted(t *testing.T) {
	devices := []Device{
		{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Muted: true, Default: true},
	}

	_, err := selectDeviceFromList(devices, "default", "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "muted")
}

func TestSelectDeviceFromListUnknownInput(t *testing.T) {
	devices := []Device{{ID: "elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true}}

	_, err := selectDeviceFromList(devices, "missing", "default")
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not match")
}

func TestSelectDeviceFromListEmpty(t *testing.T) {
	_, err := selectDeviceFromList(nil, "", "")
	require.EqualError(t, err, "no audio input devices found")
}

func TestDeviceMatchesByIDAndDescription(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono"}
	require.True(t, deviceMatches(dev, "elgato"))
	require.True(t, deviceMatches(dev, "wave 3"))
	require.False(t, deviceMatches(dev, "missing"))
}

func TestDeviceLabel(t *testing.T) {
	require.Equal(t, "Mic (usb)", Device{ID: "usb", Description: "Mic"}.Label())
	require.Equal(t, "usb", Device{ID: "usb"}.Label())
	require.Equal(t, "Mic", Device{Description: "Mic"}.Label())
}

func TestListDevicesFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := ListDevices(context.Background())
	require.Error(t, err)
}

func TestSourceStateString(t *testing.T) {
	require.Equal(t, "running", sourceStateString(0))
	require.Equal(t, "idle", sourceStateString(1))
	require.Equal(t, "suspended", sourceStateString(2))
	require.Equal(t, "unknown(99)", sourceStateString(99))
}

func TestSourceAvailableUsesActivePort(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{}))
}
