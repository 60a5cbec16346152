package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lemonade-sdk/lemonade-gateway/internal/download"
	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// hostRewriteTransport redirects every request's scheme+host to target, so a
// catalogue built against the real "https://huggingface.co" base URL can be
// pointed at an httptest server without touching production code.
type hostRewriteTransport struct{ target *url.URL }

func (t hostRewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestCatalog(t *testing.T, srv *httptest.Server) (*Catalog, string) {
	t.Helper()
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cacheRoot := t.TempDir()
	httpClient := &http.Client{Transport: hostRewriteTransport{target: target}}

	c, err := New(logging.New("error"), Config{
		CacheRoot:  cacheRoot,
		StateDir:   t.TempDir(),
		HTTPClient: httpClient,
	}, nil, map[string]*model.Info{})
	require.NoError(t, err)
	return c, cacheRoot
}

func TestPullDownloadsManifestVerifiesDigestAndInvalidates(t *testing.T) {
	content := []byte("fake gguf weights")
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/acme/model/tree/main", func(w http.ResponseWriter, r *http.Request) {
		files := []RepoFile{
			{Type: "file", Path: "model.Q4_K_M.gguf", Size: int64(len(content)), LFS: &struct {
				Oid string `json:"oid"`
			}{Oid: digest}},
		}
		json.NewEncoder(w).Encode(files)
	})
	mux.HandleFunc("/acme/model/resolve/main/model.Q4_K_M.gguf", func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	})
	srv := httptest.NewServer(mux)

	c, cacheRoot := newTestCatalog(t, srv)
	c.shipped = map[string]*model.Info{
		"llama": {
			ModelName:   "llama",
			Recipe:      model.RecipeLlamaCpp,
			Checkpoints: map[string]string{model.RoleMain: "acme/model:Q4_K_M"},
			Type:        model.TypeLLM,
		},
	}
	c.Invalidate()

	var lastPercent float64
	err := c.Pull(context.Background(), "llama", false, func(p download.ManifestProgress) bool {
		lastPercent = p.Percent
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 100.0, lastPercent)

	dest := filepath.Join(repoCacheDir(cacheRoot, "acme/model"), "snapshots", "main", "model.Q4_K_M.gguf")
	require.FileExists(t, dest)

	manifestPath := download.ManifestPath(filepath.Join(repoCacheDir(cacheRoot, "acme/model"), "snapshots", "main"))
	_, err = os.Stat(manifestPath)
	require.True(t, os.IsNotExist(err), "manifest should be removed after a successful pull")
}

func TestPullRejectsDigestMismatch(t *testing.T) {
	content := []byte("fake gguf weights")
	wrongDigest := strings.Repeat("0", 64)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/acme/model/tree/main", func(w http.ResponseWriter, r *http.Request) {
		files := []RepoFile{
			{Type: "file", Path: "model.Q4_K_M.gguf", Size: int64(len(content)), LFS: &struct {
				Oid string `json:"oid"`
			}{Oid: wrongDigest}},
		}
		json.NewEncoder(w).Encode(files)
	})
	mux.HandleFunc("/acme/model/resolve/main/model.Q4_K_M.gguf", func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	})
	srv := httptest.NewServer(mux)

	c, _ := newTestCatalog(t, srv)
	c.shipped = map[string]*model.Info{
		"llama": {
			ModelName:   "llama",
			Recipe:      model.RecipeLlamaCpp,
			Checkpoints: map[string]string{model.RoleMain: "acme/model:Q4_K_M"},
			Type:        model.TypeLLM,
		},
	}
	c.Invalidate()

	err := c.Pull(context.Background(), "llama", false, nil)
	require.Error(t, err)
	require.True(t, gatewayerr.Of(err, gatewayerr.KindDownloadFailed))
}

func TestPullRequiresGGUFVariantForLlamaCpp(t *testing.T) {
	c, _ := newTestCatalog(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))
	c.shipped = map[string]*model.Info{
		"llama": {
			ModelName:   "llama",
			Recipe:      model.RecipeLlamaCpp,
			Checkpoints: map[string]string{model.RoleMain: "acme/model"},
			Type:        model.TypeLLM,
		},
	}
	c.Invalidate()

	err := c.Pull(context.Background(), "llama", false, nil)
	require.Error(t, err)
	require.True(t, gatewayerr.Of(err, gatewayerr.KindInvalidRequest))
}

func TestPullFailsOffline(t *testing.T) {
	c, _ := newTestCatalog(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))
	c.cfg.Offline = true
	c.shipped = map[string]*model.Info{
		"whisper": {
			ModelName:   "whisper",
			Recipe:      model.RecipeWhisperCpp,
			Checkpoints: map[string]string{model.RoleMain: "acme/whisper"},
			Type:        model.TypeAudioASR,
		},
	}
	c.Invalidate()

	err := c.Pull(context.Background(), "whisper", false, nil)
	require.Error(t, err)
	require.True(t, gatewayerr.Of(err, gatewayerr.KindDownloadFailed))
}

func TestPullSkipsAlreadyDownloadedWhenDoNotUpgrade(t *testing.T) {
	content := []byte("weights")
	cacheRoot := t.TempDir()
	dest := filepath.Join(repoCacheDir(cacheRoot, "acme/whisper"), "snapshots", "main", "model.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, content, 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s; nothing should be fetched when already downloaded", r.URL.Path)
	}))
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	c, err := New(logging.New("error"), Config{
		CacheRoot:  cacheRoot,
		StateDir:   t.TempDir(),
		HTTPClient: &http.Client{Transport: hostRewriteTransport{target: target}},
	}, nil, map[string]*model.Info{
		"whisper": {
			ModelName:   "whisper",
			Recipe:      model.RecipeWhisperCpp,
			Checkpoints: map[string]string{model.RoleMain: "acme/whisper"},
			Type:        model.TypeAudioASR,
		},
	})
	require.NoError(t, err)

	err = c.Pull(context.Background(), "whisper", true, nil)
	require.NoError(t, err)
}

func TestPullUnregisteredModelNotFound(t *testing.T) {
	c, _ := newTestCatalog(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))
	err := c.Pull(context.Background(), "does-not-exist", false, nil)
	require.Error(t, err)
	require.True(t, gatewayerr.Of(err, gatewayerr.KindModelNotFound))
}
