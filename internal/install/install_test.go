package install

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

func zipArchive(t *testing.T, entryName, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(entryName)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestEnsureHonorsEnvOverride(t *testing.T) {
	t.Setenv("LEMONADE_LLAMACPP_CPU_BIN", "/opt/custom/llama-server")

	res, err := Ensure(context.Background(), logging.New("error"), nil, t.TempDir(), Spec{
		Recipe:      model.RecipeLlamaCpp,
		Flavour:     model.FlavourCPU,
		EnvOverride: "LEMONADE_LLAMACPP_CPU_BIN",
	})
	require.NoError(t, err)
	require.True(t, res.Overridden)
	require.Equal(t, "/opt/custom/llama-server", res.BinaryPath)
}

func TestEnsureDownloadsAndExtractsZip(t *testing.T) {
	archive := zipArchive(t, "llama-server", "#!/bin/sh\necho hi\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	root := t.TempDir()
	spec := Spec{
		Recipe:     model.RecipeLlamaCpp,
		Flavour:    model.FlavourCPU,
		Version:    "1.2.3",
		URL:        srv.URL + "/release.zip",
		EntryPoint: "llama-server",
	}
	res, err := Ensure(context.Background(), logging.New("error"), srv.Client(), root, spec)
	require.NoError(t, err)
	require.False(t, res.Overridden)
	require.Equal(t, "1.2.3", res.Version)
	require.FileExists(t, res.BinaryPath)

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(res.BinaryPath)
		require.NoError(t, err)
		require.NotZero(t, fi.Mode()&0o111, "installed binary should be executable")
	}

	versionFile := filepath.Join(InstallDir(root, spec.Recipe, spec.Flavour), "version.txt")
	require.FileExists(t, versionFile)
}

func TestEnsureSkipsReinstallWhenVersionMatches(t *testing.T) {
	root := t.TempDir()
	spec := Spec{
		Recipe:     model.RecipeLlamaCpp,
		Flavour:    model.FlavourCPU,
		Version:    "1.2.3",
		EntryPoint: "llama-server",
	}
	dir := InstallDir(root, spec.Recipe, spec.Flavour)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "version.txt"), []byte("1.2.3"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "llama-server"), []byte("stub"), 0o755))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected download for an already-installed version")
	}))
	defer srv.Close()
	spec.URL = srv.URL + "/release.zip"

	res, err := Ensure(context.Background(), logging.New("error"), srv.Client(), root, spec)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "llama-server"), res.BinaryPath)
}

func TestEnsureFailsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Ensure(context.Background(), logging.New("error"), srv.Client(), t.TempDir(), Spec{
		Recipe:     model.RecipeLlamaCpp,
		Flavour:    model.FlavourCPU,
		Version:    "1.0.0",
		URL:        srv.URL + "/release.zip",
		EntryPoint: "llama-server",
	})
	require.Error(t, err)
}

func TestExtractZipRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../../etc/passwd")
	require.NoError(t, err)
	_, err = w.Write([]byte("pwned"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dest := t.TempDir()
	err = extractZip(bytes.NewReader(buf.Bytes()), dest)
	require.Error(t, err)
}
