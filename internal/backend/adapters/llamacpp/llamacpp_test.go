package llamacpp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

func testAdapter() *Adapter {
	return New(logging.New("error"), "/tmp/backends", "v1.0.0", "https://example.test/releases")
}

func TestBuildArgvDefaultsContextSizeAndBindsLoopback(t *testing.T) {
	a := testAdapter()
	info := &model.Info{
		ModelName:     "llama",
		ResolvedPaths: map[string]string{model.RoleMain: "/cache/model.gguf"},
	}
	argv, err := a.BuildArgv("/bin/llama-server", info, model.Options{}, 8080)
	require.NoError(t, err)
	require.Contains(t, argv, "--model")
	require.Contains(t, argv, "/cache/model.gguf")
	require.Contains(t, argv, "--ctx-size")
	require.Contains(t, argv, "4096")
	require.Contains(t, argv, "--host")
	require.Contains(t, argv, "127.0.0.1")
}

func TestBuildArgvHonorsCtxSizeOverrideAndMMProj(t *testing.T) {
	a := testAdapter()
	info := &model.Info{
		ModelName: "llava",
		ResolvedPaths: map[string]string{
			model.RoleMain:   "/cache/model.gguf",
			model.RoleMMProj: "/cache/mmproj.gguf",
		},
	}
	opts := model.Options{LlamaCpp: &model.LlamaCppOptions{CtxSize: 16384}}
	argv, err := a.BuildArgv("/bin/llama-server", info, opts, 8081)
	require.NoError(t, err)
	require.Contains(t, argv, "16384")
	require.Contains(t, argv, "--mmproj")
	require.Contains(t, argv, "/cache/mmproj.gguf")
}

func TestBuildArgvRejectsReservedOverride(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ModelName: "llama", ResolvedPaths: map[string]string{model.RoleMain: "/cache/model.gguf"}}
	opts := model.Options{LlamaCpp: &model.LlamaCppOptions{LlamaCppArgs: "--port 1234"}}
	_, err := a.BuildArgv("/bin/llama-server", info, opts, 8080)
	require.Error(t, err)
}

func TestBuildArgvAppendsExtraArgs(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ModelName: "llama", ResolvedPaths: map[string]string{model.RoleMain: "/cache/model.gguf"}}
	opts := model.Options{LlamaCpp: &model.LlamaCppOptions{LlamaCppArgs: "--flash-attn on"}}
	argv, err := a.BuildArgv("/bin/llama-server", info, opts, 8080)
	require.NoError(t, err)
	require.Contains(t, argv, "--flash-attn")
	require.Contains(t, argv, "on")
}

func TestTransformRequestRenamesMaxCompletionTokens(t *testing.T) {
	a := testAdapter()
	body := []byte(`{"model":"llama","max_completion_tokens":128}`)
	out, err := a.TransformRequest("chat", body, nil, model.Options{})
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &payload))
	require.Equal(t, float64(128), payload["max_tokens"])
	_, hasOld := payload["max_completion_tokens"]
	require.False(t, hasOld)
}

func TestTransformRequestPassesThroughUnrecognizedFields(t *testing.T) {
	a := testAdapter()
	body := []byte(`{"model":"llama","temperature":0.5}`)
	out, err := a.TransformRequest("chat", body, nil, model.Options{})
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &payload))
	require.Equal(t, 0.5, payload["temperature"])
}

func TestTransformRequestReturnsBodyUnchangedOnInvalidJSON(t *testing.T) {
	a := testAdapter()
	body := []byte("not json")
	out, err := a.TransformRequest("chat", body, nil, model.Options{})
	require.NoError(t, err)
	require.Equal(t, body, out)
}

func TestCapabilitiesAndEndpointMapAgree(t *testing.T) {
	a := testAdapter()
	caps := a.Capabilities()
	endpoints := a.EndpointMap()
	for name := range caps {
		_, ok := endpoints[name]
		require.True(t, ok, "capability %q has no endpoint mapping", name)
	}
}
