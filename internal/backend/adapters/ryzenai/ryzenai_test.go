package ryzenai

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

func TestBuildArgvPassesModelDirectoryNotFile(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ResolvedPaths: map[string]string{model.RoleMain: "/cache/acme-model"}}
	argv, err := a.BuildArgv("ryzenai-llm-server.exe", info, model.Options{}, 5000)
	require.NoError(t, err)
	require.Contains(t, argv, "--model-dir")
	require.Contains(t, argv, "/cache/acme-model")
	require.Contains(t, argv, "--ctx-size")
	require.Contains(t, argv, "4096")
}

func TestBuildArgvHonorsCtxSizeOverride(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ResolvedPaths: map[string]string{model.RoleMain: "/cache/acme-model"}}
	opts := model.Options{RyzenAI: &model.CtxSizeOptions{CtxSize: 2048}}
	argv, err := a.BuildArgv("ryzenai-llm-server.exe", info, opts, 5000)
	require.NoError(t, err)
	require.Contains(t, argv, "2048")
}

func TestBuildArgvAppendsNPUCacheWhenPresent(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ResolvedPaths: map[string]string{
		model.RoleMain:     "/cache/acme-model",
		model.RoleNPUCache: "/cache/acme-model/npu-cache",
	}}
	argv, err := a.BuildArgv("ryzenai-llm-server.exe", info, model.Options{}, 5000)
	require.NoError(t, err)
	require.Contains(t, argv, "--npu-cache")
	require.Contains(t, argv, "/cache/acme-model/npu-cache")
}

func TestBuildArgvOmitsNPUCacheWhenAbsent(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ResolvedPaths: map[string]string{model.RoleMain: "/cache/acme-model"}}
	argv, err := a.BuildArgv("ryzenai-llm-server.exe", info, model.Options{}, 5000)
	require.NoError(t, err)
	require.NotContains(t, argv, "--npu-cache")
}

func TestTransformRequestOverwritesModelWithModelName(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ModelName: "my-ryzenai-model"}
	body := []byte(`{"model":"whatever","temperature":0.3}`)
	out, err := a.TransformRequest("chat", body, info, model.Options{})
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &payload))
	require.Equal(t, "my-ryzenai-model", payload["model"])
}

func TestEnvOverlaySkipsProcessorCheck(t *testing.T) {
	a := testAdapter()
	overlay := a.EnvOverlay(&model.Info{}, model.Options{})
	require.Equal(t, "0", overlay["RYZENAI_SKIP_PROCESSOR_CHECK"])
}

func TestCapabilitiesAndEndpointMapAgree(t *testing.T) {
	a := testAdapter()
	for name := range a.Capabilities() {
		_, ok := a.EndpointMap()[name]
		require.True(t, ok, "capability %q has no endpoint mapping", name)
	}
}
