package whispercpp

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

func TestBuildArgvBindsLoopbackAndModel(t *testing.T) {
	a := testAdapter()
	info := &model.Info{ResolvedPaths: map[string]string{model.RoleMain: "/cache/ggml-base.bin"}}
	argv, err := a.BuildArgv("/bin/whisper-server", info, model.Options{}, 9090)
	require.NoError(t, err)
	require.Contains(t, argv, "--model")
	require.Contains(t, argv, "/cache/ggml-base.bin")
	require.Contains(t, argv, "--port")
	require.Contains(t, argv, "9090")
	require.Contains(t, argv, "--host")
	require.Contains(t, argv, "127.0.0.1")
}

func TestTransformRequestBuildsMultipartBodyWithLanguage(t *testing.T) {
	a := testAdapter()
	body, err := json.Marshal(map[string]interface{}{
		"file":     []byte("RIFF....WAVEfmt "),
		"language": "en",
	})
	require.NoError(t, err)

	out, err := a.TransformRequest("audio_transcribe", body, nil, model.Options{})
	require.NoError(t, err)
	require.Contains(t, string(out), `Content-Disposition: form-data; name="file"; filename="audio.wav"`)
	require.Contains(t, string(out), "RIFF....WAVEfmt")
	require.Contains(t, string(out), `name="language"`)
	require.Contains(t, string(out), "en")
	require.Contains(t, string(out), multipartBoundary)
}

func TestTransformRequestOmitsLanguageFieldWhenEmpty(t *testing.T) {
	a := testAdapter()
	body, err := json.Marshal(map[string]interface{}{"file": []byte("abc")})
	require.NoError(t, err)

	out, err := a.TransformRequest("audio_transcribe", body, nil, model.Options{})
	require.NoError(t, err)
	require.NotContains(t, string(out), `name="language"`)
}

func TestTransformRequestRejectsInvalidJSON(t *testing.T) {
	a := testAdapter()
	_, err := a.TransformRequest("audio_transcribe", []byte("not json"), nil, model.Options{})
	require.Error(t, err)
}

func TestContentTypeCarriesFixedBoundary(t *testing.T) {
	a := testAdapter()
	require.Equal(t, "multipart/form-data; boundary="+multipartBoundary, a.ContentType("audio_transcribe"))
}

func TestCapabilitiesAndEndpointMapAgree(t *testing.T) {
	a := testAdapter()
	for name := range a.Capabilities() {
		_, ok := a.EndpointMap()[name]
		require.True(t, ok, "capability %q has no endpoint mapping", name)
	}
}
