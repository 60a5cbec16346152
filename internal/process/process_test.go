package process

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestSpawnAndWait(t *testing.T) {
	h, err := Spawn(context.Background(), logging.New("debug"), SpawnOptions{
		Exe:  "sh",
		Argv: []string{"-c", "exit 3"},
	})
	require.NoError(t, err)

	require.NoError(t, h.Wait(context.Background()))
	require.False(t, h.Running())
	require.Equal(t, 3, h.ExitCode())
}

func TestSpawnFiltersLogLines(t *testing.T) {
	var buf bytes.Buffer
	h, err := Spawn(context.Background(), logging.New("debug"), SpawnOptions{
		Exe:         "sh",
		Argv:        []string{"-c", "echo keep; echo GET /health 200"},
		LogWriter:   &buf,
		FilterRegex: `GET /health`,
	})
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))

	time.Sleep(50 * time.Millisecond)
	require.Contains(t, buf.String(), "keep")
	require.NotContains(t, buf.String(), "GET /health")
}

func TestStopIsIdempotent(t *testing.T) {
	h, err := Spawn(context.Background(), logging.New("debug"), SpawnOptions{
		Exe:  "sleep",
		Argv: []string{"30"},
	})
	require.NoError(t, err)

	require.NoError(t, h.Stop(context.Background()))
	require.False(t, h.Running())
	require.NoError(t, h.Stop(context.Background()))
}

func TestScopedStopsOnReturn(t *testing.T) {
	var handle *Handle
	err := Scoped(context.Background(), logging.New("debug"), SpawnOptions{
		Exe:  "sleep",
		Argv: []string{"30"},
	}, func(h *Handle) error {
		handle = h
		return nil
	})
	require.NoError(t, err)
	require.False(t, handle.Running())
}
