// Package kokoro adapts the kokoro text-to-speech server to the
// backend.Adapter interface.
package kokoro

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/install"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// Adapter drives the kokoro server.
type Adapter struct {
	log            logging.Logger
	releaseVersion string
	baseURL        string
	installRoot    string
}

// New creates a kokoro Adapter.
func New(log logging.Logger, installRoot, releaseVersion, baseURL string) *Adapter {
	return &Adapter{log: log, installRoot: installRoot, releaseVersion: releaseVersion, baseURL: baseURL}
}

func (a *Adapter) Recipe() model.Recipe { return model.RecipeKokoro }

func (a *Adapter) Capabilities() map[string]bool {
	return map[string]bool{"audio_speech": true}
}

func (a *Adapter) Install(ctx context.Context, httpClient *http.Client, flavour model.Flavour) (string, error) {
	entryPoint := "kokoro-server"
	if runtime.GOOS == "windows" {
		entryPoint = "kokoro-server.exe"
	}
	ext := "tar.gz"
	if runtime.GOOS == "windows" {
		ext = "zip"
	}
	url := fmt.Sprintf("%s/kokoro-%s-%s.%s", a.baseURL, a.releaseVersion, runtime.GOOS, ext)
	res, err := install.Ensure(ctx, a.log, httpClient, a.installRoot, install.Spec{
		Recipe:      model.RecipeKokoro,
		Flavour:     flavour,
		Version:     a.releaseVersion,
		URL:         url,
		EntryPoint:  entryPoint,
		EnvOverride: "LEMONADE_KOKORO_BIN",
	})
	if err != nil {
		return "", err
	}
	return res.BinaryPath, nil
}

func (a *Adapter) BuildArgv(binary string, info *model.Info, opts model.Options, port int) ([]string, error) {
	return []string{
		"--voice-dir", info.ResolvedPaths[model.RoleMain],
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
	}, nil
}

func (a *Adapter) EndpointMap() map[string]string {
	return map[string]string{"audio_speech": "/v1/audio/speech"}
}

func (a *Adapter) TransformRequest(endpoint string, body []byte, info *model.Info, opts model.Options) ([]byte, error) {
	return body, nil
}

func (a *Adapter) ContentType(endpoint string) string { return "application/json" }

func (a *Adapter) ReadinessPath() string { return "/" }

func (a *Adapter) ReadinessTimeout() time.Duration { return 120 * time.Second }

func (a *Adapter) EnvOverlay(info *model.Info, opts model.Options) map[string]string { return nil }
