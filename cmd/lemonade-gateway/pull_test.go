package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPullStreamsProgressLines(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("event: progress\ndata: {\"percent\":50}\n\nevent: progress\ndata: {\"percent\":100}\n\n"))
	}))
	pointClientAt(t, srv)

	cmd := newPullCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, runPull(cmd, "llama-3-8b", &pullFlags{}))

	require.Equal(t, "/v1/pull", gotPath)
	out := buf.String()
	require.Contains(t, out, "Pulling llama-3-8b...")
	require.Contains(t, out, `{"percent":50}`)
	require.Contains(t, out, `{"percent":100}`)
}

func TestRunPullRequiresRecipeForAbsoluteLocalCheckpoint(t *testing.T) {
	cmd := newPullCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	err := runPull(cmd, "custom-model", &pullFlags{checkpoint: "/opt/models/custom.gguf"})
	require.ErrorIs(t, err, errRecipeRequiredForLocalPath)
}

func TestLabelsFromFlagsCollectsSelectedLabels(t *testing.T) {
	labels := labelsFromFlags(&pullFlags{reasoning: true, reranking: true})
	require.Equal(t, []string{"reasoning", "reranking"}, labels)
}

func TestLabelsFromFlagsEmptyWhenNoneSelected(t *testing.T) {
	require.Empty(t, labelsFromFlags(&pullFlags{}))
}
