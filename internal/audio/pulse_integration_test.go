//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestListDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := ListDevices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
}

func TestPulseRecorderIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := NewRecorder(PulseSource{}, zerolog.Nop())
	require.NoError(t, rec.Begin(ctx))
	time.Sleep(300 * time.Millisecond)

	payload, err := rec.End(ctx)
	require.NoError(t, err)
	require.Equal(t, MIMETypeWAV, payload.MIMEType)
	require.Greater(t, len(payload.Data), wavHeaderSize)
}
