// Package whispercpp adapts the whisper.cpp server binary: speech-to-text
// transcription over a multipart/form-data upload, CPU or NPU flavours.
package whispercpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/install"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// Adapter drives whisper-server.
type Adapter struct {
	log            logging.Logger
	releaseVersion string
	baseURL        string
	installRoot    string
}

// New creates a whispercpp Adapter.
func New(log logging.Logger, installRoot, releaseVersion, baseURL string) *Adapter {
	return &Adapter{log: log, installRoot: installRoot, releaseVersion: releaseVersion, baseURL: baseURL}
}

func (a *Adapter) Recipe() model.Recipe { return model.RecipeWhisperCpp }

func (a *Adapter) Capabilities() map[string]bool {
	return map[string]bool{"audio_transcribe": true}
}

func (a *Adapter) Install(ctx context.Context, httpClient *http.Client, flavour model.Flavour) (string, error) {
	entryPoint := "whisper-server"
	if runtime.GOOS == "windows" {
		entryPoint = "whisper-server.exe"
	}
	ext := "tar.gz"
	if runtime.GOOS == "windows" {
		ext = "zip"
	}
	url := fmt.Sprintf("%s/whispercpp-%s-%s-%s.%s", a.baseURL, a.releaseVersion, flavour, runtime.GOOS, ext)
	res, err := install.Ensure(ctx, a.log, httpClient, a.installRoot, install.Spec{
		Recipe:      model.RecipeWhisperCpp,
		Flavour:     flavour,
		Version:     a.releaseVersion,
		URL:         url,
		EntryPoint:  entryPoint,
		EnvOverride: "LEMONADE_WHISPERCPP_" + strings.ToUpper(string(flavour)) + "_BIN",
	})
	if err != nil {
		return "", err
	}
	return res.BinaryPath, nil
}

func (a *Adapter) BuildArgv(binary string, info *model.Info, opts model.Options, port int) ([]string, error) {
	return []string{
		"--model", info.ResolvedPaths[model.RoleMain],
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
	}, nil
}

func (a *Adapter) EndpointMap() map[string]string {
	return map[string]string{"audio_transcribe": "/inference"}
}

// TransformRequest repackages the gateway's inline-bytes transcription
// request (base64 audio + JSON options) into the multipart/form-data body
// whisper.cpp's /inference endpoint expects.
func (a *Adapter) TransformRequest(endpoint string, body []byte, info *model.Info, opts model.Options) ([]byte, error) {
	var req struct {
		File     []byte `json:"file"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid transcription request: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(multipartBoundary); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.File); err != nil {
		return nil, err
	}
	if req.Language != "" {
		_ = w.WriteField("language", req.Language)
	}
	_ = w.WriteField("response_format", "json")
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// multipartBoundary is fixed so ContentType (computed independently of the
// per-request TransformRequest call) always matches the body it describes.
const multipartBoundary = "lemonadegatewayboundary"

func (a *Adapter) ContentType(endpoint string) string {
	return "multipart/form-data; boundary=" + multipartBoundary
}

func (a *Adapter) ReadinessPath() string { return "/" }

func (a *Adapter) ReadinessTimeout() time.Duration { return 120 * time.Second }

func (a *Adapter) EnvOverlay(info *model.Info, opts model.Options) map[string]string { return nil }
