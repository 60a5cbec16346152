// Package sdcpp adapts the stable-diffusion.cpp server to the
// backend.Adapter interface, packing steps/cfg_scale/width/height/seed into
// a sentinel the sd-cpp server's prompt-parsing layer understands since it
// has no first-class generation-parameter fields of its own.
package sdcpp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/install"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// Adapter drives the sd-cpp server.
type Adapter struct {
	log            logging.Logger
	releaseVersion string
	baseURL        string
	installRoot    string
}

// New creates an sd-cpp Adapter.
func New(log logging.Logger, installRoot, releaseVersion, baseURL string) *Adapter {
	return &Adapter{log: log, installRoot: installRoot, releaseVersion: releaseVersion, baseURL: baseURL}
}

func (a *Adapter) Recipe() model.Recipe { return model.RecipeSDCpp }

func (a *Adapter) Capabilities() map[string]bool {
	return map[string]bool{"image_generate": true}
}

func (a *Adapter) Install(ctx context.Context, httpClient *http.Client, flavour model.Flavour) (string, error) {
	entryPoint := "sd-server"
	if runtime.GOOS == "windows" {
		entryPoint = "sd-server.exe"
	}
	ext := "tar.gz"
	if runtime.GOOS == "windows" {
		ext = "zip"
	}
	url := fmt.Sprintf("%s/sdcpp-%s-%s-%s.%s", a.baseURL, a.releaseVersion, flavour, runtime.GOOS, ext)
	res, err := install.Ensure(ctx, a.log, httpClient, a.installRoot, install.Spec{
		Recipe:      model.RecipeSDCpp,
		Flavour:     flavour,
		Version:     a.releaseVersion,
		URL:         url,
		EntryPoint:  entryPoint,
		EnvOverride: "LEMONADE_SDCPP_" + strings.ToUpper(string(flavour)) + "_BIN",
	})
	if err != nil {
		return "", err
	}
	return res.BinaryPath, nil
}

func (a *Adapter) BuildArgv(binary string, info *model.Info, opts model.Options, port int) ([]string, error) {
	argv := []string{
		"--model", info.ResolvedPaths[model.RoleMain],
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
	}
	if vae, ok := info.ResolvedPaths[model.RoleVAE]; ok && vae != "" {
		argv = append(argv, "--vae", vae)
	}
	return argv, nil
}

func (a *Adapter) EndpointMap() map[string]string {
	return map[string]string{"image_generate": "/v1/images/generations"}
}

// sdCppExtraArgs is the sentinel payload packed onto the end of the prompt
// field: "<prompt> <sd_cpp_extra_args>{...}</sd_cpp_extra_args>".
type sdCppExtraArgs struct {
	Steps        int     `json:"steps"`
	CFGScale     float64 `json:"cfg_scale"`
	Seed         int64   `json:"seed,omitempty"`
	SampleMethod string  `json:"sample_method,omitempty"`
	Scheduler    string  `json:"scheduler,omitempty"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

// TransformRequest packs generation parameters into a sentinel appended to
// the prompt, since sd-cpp's HTTP surface only carries a prompt string.
func (a *Adapter) TransformRequest(endpoint string, body []byte, info *model.Info, opts model.Options) ([]byte, error) {
	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid image generation request: %w", err)
	}

	extra := sdCppExtraArgs{Steps: 20, CFGScale: 7.0, Width: 512, Height: 512}
	if info.ImageDefaults != nil {
		extra.Steps = info.ImageDefaults.Steps
		extra.CFGScale = info.ImageDefaults.CFGScale
		extra.Width = info.ImageDefaults.Width
		extra.Height = info.ImageDefaults.Height
	}
	if opts.SDCpp != nil {
		if opts.SDCpp.Steps > 0 {
			extra.Steps = opts.SDCpp.Steps
		}
		if opts.SDCpp.CFGScale > 0 {
			extra.CFGScale = opts.SDCpp.CFGScale
		}
		if opts.SDCpp.Width > 0 {
			extra.Width = opts.SDCpp.Width
		}
		if opts.SDCpp.Height > 0 {
			extra.Height = opts.SDCpp.Height
		}
	}
	if v, ok := req["seed"].(float64); ok {
		extra.Seed = int64(v)
	}
	if v, ok := req["sample_method"].(string); ok {
		extra.SampleMethod = v
	}
	if v, ok := req["scheduler"].(string); ok {
		extra.Scheduler = v
	}

	encoded, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}

	prompt, _ := req["prompt"].(string)
	req["prompt"] = fmt.Sprintf("%s <sd_cpp_extra_args>%s</sd_cpp_extra_args>", prompt, string(encoded))
	return json.Marshal(req)
}

func (a *Adapter) ContentType(endpoint string) string { return "application/json" }

func (a *Adapter) ReadinessPath() string { return "/" }

func (a *Adapter) ReadinessTimeout() time.Duration { return 300 * time.Second }

func (a *Adapter) EnvOverlay(info *model.Info, opts model.Options) map[string]string { return nil }
