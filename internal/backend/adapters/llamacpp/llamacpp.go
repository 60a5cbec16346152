// Package llamacpp adapts the llama.cpp server binary to the backend.Adapter
// interface: CPU/Vulkan/ROCm/Metal flavours, GGUF checkpoint loading, and
// the OpenAI-compatible chat/completion/embedding/reranking surface
// llama-server already exposes.
package llamacpp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/backend/adapters/common"
	"github.com/lemonade-sdk/lemonade-gateway/internal/install"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// reservedFlags are the llama-server flags the gateway itself controls;
// they cannot be reintroduced via --llamacpp-args.
var reservedFlags = []string{"-m", "--model", "--port", "--host", "-c", "--ctx-size"}

// Adapter drives llama-server.
type Adapter struct {
	log            logging.Logger
	releaseVersion string
	baseURL        string
	installRoot    string
}

// New creates a llamacpp Adapter pinned to a release version and the base
// URL releases are fetched from, installing under installRoot.
func New(log logging.Logger, installRoot, releaseVersion, baseURL string) *Adapter {
	return &Adapter{log: log, installRoot: installRoot, releaseVersion: releaseVersion, baseURL: baseURL}
}

func (a *Adapter) Recipe() model.Recipe { return model.RecipeLlamaCpp }

func (a *Adapter) Capabilities() map[string]bool {
	return map[string]bool{
		"chat": true, "completion": true, "responses": true,
		"embeddings": true, "reranking": true,
	}
}

func (a *Adapter) Install(ctx context.Context, httpClient *http.Client, flavour model.Flavour) (string, error) {
	entryPoint := "llama-server"
	if runtime.GOOS == "windows" {
		entryPoint = "llama-server.exe"
	}
	url := fmt.Sprintf("%s/llamacpp-%s-%s-%s.%s", a.baseURL, a.releaseVersion, flavour, runtime.GOOS, archiveExt())
	res, err := install.Ensure(ctx, a.log, httpClient, a.installRoot, install.Spec{
		Recipe:      model.RecipeLlamaCpp,
		Flavour:     flavour,
		Version:     a.releaseVersion,
		URL:         url,
		EntryPoint:  entryPoint,
		EnvOverride: envOverride(flavour),
	})
	if err != nil {
		return "", err
	}
	return res.BinaryPath, nil
}

func envOverride(flavour model.Flavour) string {
	return "LEMONADE_LLAMACPP_" + strings.ToUpper(strings.ReplaceAll(string(flavour), "-", "_")) + "_BIN"
}

func archiveExt() string {
	if runtime.GOOS == "windows" {
		return "zip"
	}
	return "tar.gz"
}

func (a *Adapter) BuildArgv(binary string, info *model.Info, opts model.Options, port int) ([]string, error) {
	ctxSize := 4096
	var raw string
	if opts.LlamaCpp != nil {
		if opts.LlamaCpp.CtxSize > 0 {
			ctxSize = opts.LlamaCpp.CtxSize
		}
		raw = opts.LlamaCpp.LlamaCppArgs
	}

	extra, err := common.TokenizeAndValidate(raw, reservedFlags)
	if err != nil {
		return nil, err
	}

	argv := []string{
		"--model", info.ResolvedPaths[model.RoleMain],
		"--port", strconv.Itoa(port),
		"--host", "127.0.0.1",
		"--ctx-size", strconv.Itoa(ctxSize),
	}
	if mmproj, ok := info.ResolvedPaths[model.RoleMMProj]; ok && mmproj != "" {
		argv = append(argv, "--mmproj", mmproj)
	}
	argv = append(argv, extra...)
	return argv, nil
}

func (a *Adapter) EndpointMap() map[string]string {
	return map[string]string{
		"chat":       "/v1/chat/completions",
		"completion": "/v1/completions",
		"responses":  "/v1/chat/completions",
		"embeddings": "/v1/embeddings",
		"reranking":  "/v1/rerank",
	}
}

// TransformRequest renames the OpenAI "max_completion_tokens" field to the
// "max_tokens" field llama-server expects; every other field passes through
// unchanged.
func (a *Adapter) TransformRequest(endpoint string, body []byte, info *model.Info, opts model.Options) ([]byte, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return body, nil
	}
	if v, ok := payload["max_completion_tokens"]; ok {
		payload["max_tokens"] = v
		delete(payload, "max_completion_tokens")
	}
	return json.Marshal(payload)
}

func (a *Adapter) ContentType(endpoint string) string { return "application/json" }

func (a *Adapter) ReadinessPath() string { return "/health" }

func (a *Adapter) ReadinessTimeout() time.Duration { return 600 * time.Second }

func (a *Adapter) EnvOverlay(info *model.Info, opts model.Options) map[string]string { return nil }
