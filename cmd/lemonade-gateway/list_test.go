package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListCmdRendersTabularOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		w.Write([]byte(`{"data":[
			{"model_name":"llama-3-8b","recipe":"llamacpp","type":"llm","size_gb":4.5,"downloaded":true},
			{"model_name":"whisper-base","recipe":"whispercpp","type":"audio-asr","size_gb":0,"downloaded":false}
		]}`))
	}))
	pointClientAt(t, srv)

	cmd := newListCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, cmd.RunE(cmd, nil))

	out := buf.String()
	require.Contains(t, out, "MODEL")
	require.Contains(t, out, "llama-3-8b")
	require.Contains(t, out, "yes")
	require.Contains(t, out, "whisper-base")
	require.Contains(t, out, "no")
}

func TestListCmdPropagatesClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"catalogue unavailable"}}`))
	}))
	pointClientAt(t, srv)

	cmd := newListCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	err := cmd.RunE(cmd, nil)
	require.EqualError(t, err, "catalogue unavailable")
}
