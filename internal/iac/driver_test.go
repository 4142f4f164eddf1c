package iac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pulumi/pulumi/sdk/v3/go/auto"
	"github.com/stretchr/testify/require"

	"deployforge/internal/events"
)

func TestPlanResultIsNoop(t *testing.T) {
	require.True(t, PlanResult{}.IsNoop())
	require.False(t, PlanResult{Added: 1}.IsNoop())
	require.False(t, PlanResult{Changed: 1}.IsNoop())
	require.False(t, PlanResult{Removed: 1}.IsNoop())
}

func TestOutputBagFromCoercesNonStringValues(t *testing.T) {
	outs := auto.OutputMap{
		"public_ip": auto.OutputValue{Value: "1.2.3.4"},
		"node_count": auto.OutputValue{Value: float64(3)},
	}
	bag := outputBagFrom(outs)
	require.Equal(t, "1.2.3.4", bag["public_ip"])
	require.Equal(t, "3", bag["node_count"])
}

func TestHasStateFalseWhenDirAbsent(t *testing.T) {
	tfDir := t.TempDir()
	require.False(t, HasState(tfDir))
}

func TestHasStateFalseWhenDirEmpty(t *testing.T) {
	tfDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tfDir, "state"), 0o755))
	require.False(t, HasState(tfDir))
}

func TestHasStateTrueWhenStateFilePresent(t *testing.T) {
	tfDir := t.TempDir()
	stateDir := filepath.Join(tfDir, "state")
	require.NoError(t, os.MkdirAll(stateDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stateDir, ".pulumi-stack-deployforge.json"), []byte("{}"), 0o644))
	require.True(t, HasState(tfDir))
}

func TestLineSinkAccumulatesAndEmits(t *testing.T) {
	var lines []string
	sink := make(events.ChannelSink, 4)
	l := &lineSink{stage: "iac-plan", sink: sink, lines: &lines}
	n, err := l.Write([]byte("creating resource foo\n"))
	require.NoError(t, err)
	require.Equal(t, len("creating resource foo\n"), n)
	require.Equal(t, []string{"creating resource foo"}, lines)

	p := <-sink
	require.Equal(t, "creating resource foo", p.Text)
}
