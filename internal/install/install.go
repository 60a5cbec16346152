// Package install fetches and extracts backend release archives into a
// per-recipe, per-flavour install directory, skipping the whole flow when a
// matching version.txt already exists or an environment variable override
// points at a prebuilt binary.
package install

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	archive "github.com/moby/go-archive"

	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// Spec describes one release archive to install.
type Spec struct {
	Recipe      model.Recipe
	Flavour     model.Flavour
	Version     string
	URL         string
	EntryPoint  string // binary name within the extracted tree, relative to InstallDir
	EnvOverride string // e.g. LEMONADE_LLAMACPP_CPU_BIN
}

// Result reports where the installed (or overridden) entry point lives.
type Result struct {
	BinaryPath string
	Version    string
	Overridden bool
}

// InstallDir returns the conventional per-recipe/flavour install directory
// under root.
func InstallDir(root string, recipe model.Recipe, flavour model.Flavour) string {
	return filepath.Join(root, string(recipe), string(flavour))
}

// DefaultRoot returns the conventional backends install root,
// "<user cache dir>/lemonade/backends", falling back to a relative
// directory if the user cache directory cannot be determined.
func DefaultRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "lemonade-backends")
	}
	return filepath.Join(dir, "lemonade", "backends")
}

// Ensure installs spec into InstallDir(root, spec.Recipe, spec.Flavour)
// unless a version.txt already records spec.Version, or spec.EnvOverride is
// set in the environment, in which case that path is used unchanged.
func Ensure(ctx context.Context, log logging.Logger, httpClient *http.Client, root string, spec Spec) (Result, error) {
	log = log.WithField("component", "install").WithField("recipe", string(spec.Recipe))

	if spec.EnvOverride != "" {
		if override := os.Getenv(spec.EnvOverride); override != "" {
			log.Infof("using %s override: %s", spec.EnvOverride, override)
			return Result{BinaryPath: override, Version: "override", Overridden: true}, nil
		}
	}

	dir := InstallDir(root, spec.Recipe, spec.Flavour)
	versionFile := filepath.Join(dir, "version.txt")
	binaryPath := filepath.Join(dir, spec.EntryPoint)

	if installed, err := os.ReadFile(versionFile); err == nil && strings.TrimSpace(string(installed)) == spec.Version {
		if _, err := os.Stat(binaryPath); err == nil {
			log.Debugf("already installed at version %s", spec.Version)
			return Result{BinaryPath: binaryPath, Version: spec.Version}, nil
		}
	}

	log.Infof("installing %s %s %s from %s", spec.Recipe, spec.Flavour, spec.Version, spec.URL)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create install directory: %w", err)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("download release archive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("download release archive: unexpected status %d", resp.StatusCode)
	}

	if strings.HasSuffix(spec.URL, ".zip") {
		if err := extractZip(resp.Body, dir); err != nil {
			return Result{}, fmt.Errorf("extract archive: %w", err)
		}
	} else {
		if err := archive.Untar(resp.Body, dir, &archive.TarOptions{NoLchown: true}); err != nil {
			return Result{}, fmt.Errorf("extract archive: %w", err)
		}
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(binaryPath, 0o755); err != nil {
			return Result{}, fmt.Errorf("set execute permission: %w", err)
		}
	}

	if err := os.WriteFile(versionFile, []byte(spec.Version), 0o644); err != nil {
		return Result{}, fmt.Errorf("write version.txt: %w", err)
	}

	return Result{BinaryPath: binaryPath, Version: spec.Version}, nil
}

// extractZip extracts a zip archive from r into dest. archive/zip requires a
// ReaderAt, so the body is buffered to a temp file first.
func extractZip(r io.Reader, dest string) error {
	tmp, err := os.CreateTemp("", "lemonade-install-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, r); err != nil {
		return err
	}

	zr, err := zip.OpenReader(tmp.Name())
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
