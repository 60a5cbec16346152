package flm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

func testAdapter() *Adapter {
	return New(logging.New("error"), "https://example.test/flm-installer")
}

func TestCompareVersionsOrdersNumerically(t *testing.T) {
	require.Equal(t, 0, compareVersions("32.0.203.240", "32.0.203.240"))
	require.Equal(t, -1, compareVersions("31.9.0.0", "32.0.203.240"))
	require.Equal(t, 1, compareVersions("32.0.203.241", "32.0.203.240"))
	require.Equal(t, -1, compareVersions("32.0.203", "32.0.203.1"))
}

func TestCompareVersionsTreatsNumericTenAsGreaterThanTwo(t *testing.T) {
	// lexical comparison would get this backwards; compareVersions must not.
	require.Equal(t, 1, compareVersions("32.10.0.0", "32.2.0.0"))
}

func TestBuildArgvDefaultsContextSize(t *testing.T) {
	a := testAdapter()
	info := &model.Info{Checkpoints: map[string]string{model.RoleMain: "acme/flm-model"}}
	argv, err := a.BuildArgv("flm", info, model.Options{}, 7000)
	require.NoError(t, err)
	require.Contains(t, argv, "serve")
	require.Contains(t, argv, "acme/flm-model")
	require.Contains(t, argv, "--ctx-size")
	require.Contains(t, argv, "4096")
}

func TestBuildArgvHonorsCtxSizeOverride(t *testing.T) {
	a := testAdapter()
	info := &model.Info{Checkpoints: map[string]string{model.RoleMain: "acme/flm-model"}}
	opts := model.Options{FLM: &model.CtxSizeOptions{CtxSize: 8192}}
	argv, err := a.BuildArgv("flm", info, opts, 7000)
	require.NoError(t, err)
	require.Contains(t, argv, "8192")
}

func TestTransformRequestOverwritesModelWithCheckpoint(t *testing.T) {
	a := testAdapter()
	info := &model.Info{Checkpoints: map[string]string{model.RoleMain: "acme/flm-model"}}
	body := []byte(`{"model":"whatever-the-client-sent","temperature":0.2}`)
	out, err := a.TransformRequest("chat", body, info, model.Options{})
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &payload))
	require.Equal(t, "acme/flm-model", payload["model"])
	require.Equal(t, 0.2, payload["temperature"])
}

func TestTransformRequestPassesThroughOnInvalidJSON(t *testing.T) {
	a := testAdapter()
	body := []byte("not json")
	out, err := a.TransformRequest("chat", body, &model.Info{}, model.Options{})
	require.NoError(t, err)
	require.Equal(t, body, out)
}

func TestInstalledCheckpointsReturnsEmptyWhenBinaryMissing(t *testing.T) {
	a := testAdapter()
	installed, err := a.InstalledCheckpoints(context.Background())
	require.NoError(t, err)
	require.Empty(t, installed)
}

func TestCheckInvalidatedNoOpBeforeInstall(t *testing.T) {
	a := testAdapter()
	require.NoError(t, a.CheckInvalidated(context.Background(), "model", "acme/flm-model"))
}

func TestCapabilitiesAndEndpointMapAgree(t *testing.T) {
	a := testAdapter()
	for name := range a.Capabilities() {
		_, ok := a.EndpointMap()[name]
		require.True(t, ok, "capability %q has no endpoint mapping", name)
	}
}
