package sdcpp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

func testAdapter() *Adapter {
	return New(logging.New("error"), "/tmp/backends", "v1.0.0", "https://example.test/releases")
}

func TestBuildArgvOmitsVAEWhenAbsent(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ResolvedPaths: map[string]string{model.RoleMain: "/cache/sd.gguf"}}
	argv, err := a.BuildArgv("sd-server", info, model.Options{}, 6000)
	require.NoError(t, err)
	require.Contains(t, argv, "--model")
	require.NotContains(t, argv, "--vae")
}

func TestBuildArgvAppendsVAEWhenPresent(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ResolvedPaths: map[string]string{
		model.RoleMain: "/cache/sd.gguf",
		model.RoleVAE:  "/cache/vae.safetensors",
	}}
	argv, err := a.BuildArgv("sd-server", info, model.Options{}, 6000)
	require.NoError(t, err)
	require.Contains(t, argv, "--vae")
	require.Contains(t, argv, "/cache/vae.safetensors")
}

func extractSentinel(t *testing.T, prompt string) sdCppExtraArgs {
	t.Helper()
	start := strings.Index(prompt, "<sd_cpp_extra_args>")
	end := strings.Index(prompt, "</sd_cpp_extra_args>")
	require.NotEqual(t, -1, start)
	require.NotEqual(t, -1, end)
	var extra sdCppExtraArgs
	require.NoError(t, json.Unmarshal([]byte(prompt[start+len("<sd_cpp_extra_args>"):end]), &extra))
	return extra
}

func TestTransformRequestUsesDefaultsWhenNoOverridesGiven(t *testing.T) {
	a := testAdapter()
	body := []byte(`{"prompt":"a cat"}`)
	out, err := a.TransformRequest("image_generate", body, &model.Info{}, model.Options{})
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &payload))
	extra := extractSentinel(t, payload["prompt"].(string))
	require.Equal(t, 20, extra.Steps)
	require.Equal(t, 7.0, extra.CFGScale)
	require.Equal(t, 512, extra.Width)
	require.Equal(t, 512, extra.Height)
	require.True(t, strings.HasPrefix(payload["prompt"].(string), "a cat "))
}

func TestTransformRequestHonorsModelImageDefaults(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ImageDefaults: &model.ImageDefaults{Steps: 30, CFGScale: 5.5, Width: 768, Height: 768}}
	body := []byte(`{"prompt":"a dog"}`)
	out, err := a.TransformRequest("image_generate", body, info, model.Options{})
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &payload))
	extra := extractSentinel(t, payload["prompt"].(string))
	require.Equal(t, 30, extra.Steps)
	require.Equal(t, 5.5, extra.CFGScale)
	require.Equal(t, 768, extra.Width)
}

func TestTransformRequestRequestOverridesWinOverModelDefaults(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ImageDefaults: &model.ImageDefaults{Steps: 30, CFGScale: 5.5, Width: 768, Height: 768}}
	opts := model.Options{SDCpp: &model.SDCppOptions{Steps: 50, Width: 1024}}
	body := []byte(`{"prompt":"a dog","seed":42,"sample_method":"euler"}`)
	out, err := a.TransformRequest("image_generate", body, info, opts)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &payload))
	extra := extractSentinel(t, payload["prompt"].(string))
	require.Equal(t, 50, extra.Steps)
	require.Equal(t, 1024, extra.Width)
	require.Equal(t, 768, extra.Height)
	require.Equal(t, int64(42), extra.Seed)
	require.Equal(t, "euler", extra.SampleMethod)
}

func TestTransformRequestRejectsInvalidJSON(t *testing.T) {
	a := testAdapter()
	_, err := a.TransformRequest("image_generate", []byte("not json"), &model.Info{}, model.Options{})
	require.Error(t, err)
}

func TestCapabilitiesAndEndpointMapAgree(t *testing.T) {
	a := testAdapter()
	for name := range a.Capabilities() {
		_, ok := a.EndpointMap()[name]
		require.True(t, ok, "capability %q has no endpoint mapping", name)
	}
}
