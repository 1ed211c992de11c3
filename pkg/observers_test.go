package pkg

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xetys/kubefleet/pkg/clustermanager"
	"github.com/xetys/kubefleet/pkg/retry"
)

func TestProgressCoordinator_PlainOutput(t *testing.T) {
	var out bytes.Buffer
	coordinator := NewProgressCoordinator(&out, true)
	defer coordinator.Stop()

	coordinator.StartProgress("cluster-worker-1", 2)
	coordinator.AddEvent(clustermanager.Event{Type: clustermanager.EventStep, Phase: "provision/cluster-worker-1", Node: "cluster-worker-1", Message: "check prerequisites"})
	coordinator.AddEvent(clustermanager.Event{Type: clustermanager.EventPhaseSucceeded, Phase: "provision/cluster-worker-1", Node: "cluster-worker-1"})
	coordinator.AddEvent(clustermanager.Event{Type: clustermanager.EventPhaseSucceeded, Phase: "worker-join/cluster-worker-1", Node: "cluster-worker-1"})
	coordinator.AddEvent(clustermanager.Event{Type: clustermanager.EventStep, Node: "unknown-node", Message: "ignored"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "cluster-worker-1: check prerequisites (0/2)", lines[0])
	assert.Equal(t, "cluster-worker-1: provision/cluster-worker-1 done (1/2)", lines[1])
	assert.Equal(t, "cluster-worker-1: "+CompletedEvent+" (2/2)", lines[2])
}

func TestProgressCoordinator_Failure(t *testing.T) {
	var out bytes.Buffer
	coordinator := NewProgressCoordinator(&out, false)

	coordinator.StartProgress("cluster-master", 3)
	coordinator.AddEvent(clustermanager.Event{Type: clustermanager.EventPhaseFailed, Phase: "primary-init", Node: "cluster-master", Err: errors.New("boom")})
	coordinator.AddEvent(clustermanager.Event{Type: clustermanager.EventPhaseSkipped, Phase: "token-fetch", Node: "cluster-master"})

	assert.Contains(t, out.String(), "cluster-master: failed: primary-init (0/3)")
	assert.Contains(t, out.String(), "cluster-master: skipped: token-fetch (0/3)")
}

func TestShortLeftPadRight(t *testing.T) {
	assert.Equal(t, "abc  ", shortLeftPadRight("abc", 5))
	assert.Equal(t, "...789", shortLeftPadRight("0123456789", 6))
}

func TestEventLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	eventLog := NewEventLog(zap.New(core).Sugar())

	failure := retry.NewFailure("worker-join", "cluster-worker-2", errors.New("permission denied"))
	eventLog.AddEvent(clustermanager.Event{Type: clustermanager.EventPhaseStarted, Phase: "worker-join/cluster-worker-2", Node: "cluster-worker-2", Message: "started"})
	eventLog.AddEvent(clustermanager.Event{Type: clustermanager.EventStep, Phase: "worker-join", Node: "cluster-worker-2", Message: "install k3s agent"})
	eventLog.AddEvent(clustermanager.Event{Type: clustermanager.EventPhaseFailed, Phase: "worker-join/cluster-worker-2", Node: "cluster-worker-2", Message: "failed", Err: failure})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)

	fields := entries[2].ContextMap()
	assert.Equal(t, "permission", fields["category"])
	assert.Equal(t, "cluster-worker-2", fields["node"])
}
