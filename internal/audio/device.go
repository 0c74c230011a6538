// Package audio owns microphone capture, WAV payloads, and local playback.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const clientName = "rehearse"

// Device describes one Pulse input source.
type Device struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	State       string `json:"state"`
	Available   bool   `json:"available"`
	Muted       bool   `json:"muted"`
	Default     bool   `json:"default"`
}

// Label formats device metadata for logs and CLI output.
func (d Device) Label() string {
	description := strings.TrimSpace(d.Description)
	id := strings.TrimSpace(d.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves the configured input and fallback against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	var (
		defaultDevice *Device
		byInput       *Device
		byFallback    *Device
	)

	input = normalizeTerm(input)
	fallback = normalizeTerm(fallback)

	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && input != "" && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && fallback != "" && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	var primary *Device
	switch {
	case input == "":
		if defaultDevice == nil {
			return Selection{}, errors.New("default audio source is unavailable")
		}
		primary = defaultDevice
	case byInput != nil:
		primary = byInput
	default:
		return Selection{}, fmt.Errorf("audio input %q did not match any device", input)
	}
	if usable(*primary) {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	next := byFallback
	if fallback == "" {
		next = defaultDevice
	}
	if next == nil {
		return Selection{}, fmt.Errorf("input %q is %s and no usable fallback was found", primary.ID, reason)
	}
	if !usable(*next) {
		return Selection{}, fmt.Errorf("input %q is %s and fallback %q is not usable", primary.ID, reason, next.ID)
	}

	return Selection{
		Device:   *next,
		Warning:  fmt.Sprintf("audio input %q is %s; falling back to %q", primary.ID, reason, next.ID),
		Fallback: true,
	}, nil
}

func usable(d Device) bool {
	return d.Available && !d.Muted
}

func normalizeTerm(raw string) string {
	term := strings.TrimSpace(strings.ToLower(raw))
	if term == "default" {
		return ""
	}
	return term
}

func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
