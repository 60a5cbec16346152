package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecipesCmdDescribesEachRecipeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/system-info", r.URL.Path)
		w.Write([]byte(`{"recipes":{
			"llamacpp": {"supported": true, "available": true, "supported_backends_in_preference_order": ["vulkan", "cpu"]},
			"ryzenai-llm": {"supported": true, "available": false},
			"flm": {"supported": false, "available": false, "reason_if_unsupported": "no NPU detected"}
		}}`))
	}))
	pointClientAt(t, srv)

	cmd := newRecipesCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, cmd.RunE(cmd, nil))

	out := buf.String()
	require.Contains(t, out, "llamacpp: ready (vulkan, cpu)")
	require.Contains(t, out, "ryzenai-llm: supported, not yet installed")
	require.Contains(t, out, "flm: unsupported - no NPU detected")
}
