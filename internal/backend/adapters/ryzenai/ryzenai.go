// Package ryzenai adapts the RyzenAI-LLM NPU server to the backend.Adapter
// interface. Unlike llamacpp and sd-cpp, the checkpoint directory itself
// (located via genai_config.json) is the unit the child process loads, so
// BuildArgv passes a directory rather than a single file path.
package ryzenai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/install"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// Adapter drives the RyzenAI-LLM NPU server.
type Adapter struct {
	log            logging.Logger
	releaseVersion string
	baseURL        string
	installRoot    string
}

// New creates a ryzenai Adapter.
func New(log logging.Logger, installRoot, releaseVersion, baseURL string) *Adapter {
	return &Adapter{log: log, installRoot: installRoot, releaseVersion: releaseVersion, baseURL: baseURL}
}

func (a *Adapter) Recipe() model.Recipe { return model.RecipeRyzenAILLM }

func (a *Adapter) Capabilities() map[string]bool {
	return map[string]bool{"chat": true, "completion": true, "responses": true}
}

func (a *Adapter) Install(ctx context.Context, httpClient *http.Client, flavour model.Flavour) (string, error) {
	entryPoint := "ryzenai-llm-server.exe"
	url := fmt.Sprintf("%s/ryzenai-llm-%s-windows.zip", a.baseURL, a.releaseVersion)
	res, err := install.Ensure(ctx, a.log, httpClient, a.installRoot, install.Spec{
		Recipe:      model.RecipeRyzenAILLM,
		Flavour:     flavour,
		Version:     a.releaseVersion,
		URL:         url,
		EntryPoint:  entryPoint,
		EnvOverride: "LEMONADE_RYZENAI_LLM_BIN",
	})
	if err != nil {
		return "", err
	}
	return res.BinaryPath, nil
}

func (a *Adapter) BuildArgv(binary string, info *model.Info, opts model.Options, port int) ([]string, error) {
	ctxSize := 4096
	if opts.RyzenAI != nil && opts.RyzenAI.CtxSize > 0 {
		ctxSize = opts.RyzenAI.CtxSize
	}
	npuCache := info.ResolvedPaths[model.RoleNPUCache]
	argv := []string{
		"--model-dir", info.ResolvedPaths[model.RoleMain],
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
		"--ctx-size", strconv.Itoa(ctxSize),
	}
	if npuCache != "" {
		argv = append(argv, "--npu-cache", npuCache)
	}
	return argv, nil
}

func (a *Adapter) EndpointMap() map[string]string {
	return map[string]string{
		"chat":       "/v1/chat/completions",
		"completion": "/v1/completions",
		"responses":  "/v1/chat/completions",
	}
}

func (a *Adapter) TransformRequest(endpoint string, body []byte, info *model.Info, opts model.Options) ([]byte, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return body, nil
	}
	payload["model"] = info.ModelName
	return json.Marshal(payload)
}

func (a *Adapter) ContentType(endpoint string) string { return "application/json" }

func (a *Adapter) ReadinessPath() string { return "/health" }

func (a *Adapter) ReadinessTimeout() time.Duration { return 600 * time.Second }

func (a *Adapter) EnvOverlay(info *model.Info, opts model.Options) map[string]string {
	return map[string]string{"RYZENAI_SKIP_PROCESSOR_CHECK": "0"}
}
