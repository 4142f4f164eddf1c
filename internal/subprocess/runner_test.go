package subprocess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deployforge/internal/events"
)

func TestRunStreamsLinesAndCapturesTail(t *testing.T) {
	r := New(2 * time.Second)
	sink := make(events.ChannelSink, 16)
	res, err := r.Run(context.Background(), "test-stage", t.TempDir(), "sh", []string{"-c", "echo one; echo two >&2"}, nil, 5*time.Second, sink)
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Len(t, res.Tail, 2)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		p := <-sink
		seen[p.Text] = true
		require.Equal(t, events.PhaseLog, p.Phase)
	}
	require.True(t, seen["one"])
	require.True(t, seen["two"])
}

func TestRunReportsNonzeroExitWithoutError(t *testing.T) {
	r := New(2 * time.Second)
	sink := make(events.ChannelSink, 4)
	res, err := r.Run(context.Background(), "test-stage", t.TempDir(), "sh", []string{"-c", "exit 7"}, nil, 5*time.Second, sink)
	require.NoError(t, err)
	require.Equal(t, 7, res.ExitCode)
}

func TestRunRefusesUnknownBinary(t *testing.T) {
	r := New(2 * time.Second)
	sink := make(events.ChannelSink, 4)
	_, err := r.Run(context.Background(), "test-stage", t.TempDir(), "definitely-not-a-real-binary", nil, nil, time.Second, sink)
	require.Error(t, err)
}

func TestRunCaptureTrimsOutput(t *testing.T) {
	r := New(time.Second)
	out, err := r.RunCapture(context.Background(), t.TempDir(), "sh", "-c", "echo '  hi  '")
	require.NoError(t, err)
	require.Equal(t, "hi", out)
}
