// Package flm adapts the vendor FLM CLI (a self-contained NPU inference
// engine with its own model store) to the backend.Adapter interface. Unlike
// the other adapters, FLM does not install from a plain release archive: it
// runs a vendor installer, gates on a minimum NPU driver version, and
// invalidates previously-downloaded models across an FLM version upgrade.
package flm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
	"github.com/lemonade-sdk/lemonade-gateway/internal/system"
)

// minimumDriverVersion is the lowest NPU driver version FLM is validated
// against; older drivers must be upgraded before FLM will install.
const minimumDriverVersion = "32.0.203.240"

// driverVersionURL is surfaced to the user as the place to fetch a newer
// NPU driver.
const driverVersionURL = "https://ryzenai.docs.amd.com/en/latest/inst.html"

// Adapter drives the flm CLI.
type Adapter struct {
	log          logging.Logger
	installerURL string
	binary       string // path to the flm binary once installed; empty until Install runs
	lastVersion  string
}

// New creates an flm Adapter. installerURL points at the vendor installer
// for the current platform.
func New(log logging.Logger, installerURL string) *Adapter {
	return &Adapter{log: log, installerURL: installerURL}
}

func (a *Adapter) Recipe() model.Recipe { return model.RecipeFLM }

func (a *Adapter) Capabilities() map[string]bool {
	return map[string]bool{"chat": true, "completion": true, "responses": true}
}

// Install gates on the minimum NPU driver version, runs the vendor
// installer if flm is not already present, and verifies the result via
// `flm --version`. A version change since the last Install call marks
// previously-downloaded FLM models invalid (handled by CheckInvalidated).
func (a *Adapter) Install(ctx context.Context, httpClient *http.Client, flavour model.Flavour) (string, error) {
	driver := system.NPUDriverVersion()
	if driver != "" && compareVersions(driver, minimumDriverVersion) < 0 {
		a.log.Errorf("NPU driver %s is older than the minimum %s required by FLM; "+
			"update your driver at %s before loading an flm model", driver, minimumDriverVersion, driverVersionURL)
		return "", fmt.Errorf("NPU driver %s below minimum %s (see %s)", driver, minimumDriverVersion, driverVersionURL)
	}

	binary, err := exec.LookPath("flm")
	if err != nil {
		a.log.Infof("flm not found on PATH, running vendor installer from %s", a.installerURL)
		if err := runVendorInstaller(ctx, a.installerURL); err != nil {
			return "", fmt.Errorf("flm vendor installer failed: %w", err)
		}
		binary, err = exec.LookPath("flm")
		if err != nil {
			return "", fmt.Errorf("flm still not found on PATH after install: %w", err)
		}
	}

	version, err := flmVersion(ctx, binary)
	if err != nil {
		return "", fmt.Errorf("flm --version failed: %w", err)
	}

	a.lastVersion = version
	a.binary = binary
	return binary, nil
}

func runVendorInstaller(ctx context.Context, url string) error {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "msiexec", "/i", url, "/quiet").Run()
	}
	return exec.CommandContext(ctx, "sh", "-c", fmt.Sprintf("curl -fsSL %s | sh", url)).Run()
}

func flmVersion(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CheckInvalidated queries `flm list --filter installed --quiet` and
// returns a model_invalidated error if checkpoint is no longer reported as
// installed, the signal that an FLM upgrade erased it.
func (a *Adapter) CheckInvalidated(ctx context.Context, modelName, checkpoint string) error {
	if a.binary == "" {
		return nil
	}
	installed, err := a.InstalledCheckpoints(ctx)
	if err != nil {
		return nil // best-effort; a query failure should not block load
	}
	if !installed[checkpoint] {
		return gatewayerr.New(gatewayerr.KindModelInvalidated,
			"flm no longer reports this checkpoint as installed; it was likely erased by an flm upgrade").WithModel(modelName)
	}
	return nil
}

// InstalledCheckpoints implements catalog.FLMInventory.
func (a *Adapter) InstalledCheckpoints(ctx context.Context) (map[string]bool, error) {
	binary := a.binary
	if binary == "" {
		var err error
		binary, err = exec.LookPath("flm")
		if err != nil {
			return map[string]bool{}, nil
		}
	}
	out, err := exec.CommandContext(ctx, binary, "list", "--filter", "installed", "--quiet").Output()
	if err != nil {
		return nil, err
	}
	result := map[string]bool{}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			result[line] = true
		}
	}
	return result, nil
}

func (a *Adapter) BuildArgv(binary string, info *model.Info, opts model.Options, port int) ([]string, error) {
	ctxSize := 4096
	if opts.FLM != nil && opts.FLM.CtxSize > 0 {
		ctxSize = opts.FLM.CtxSize
	}
	return []string{
		"serve", info.Checkpoints[model.RoleMain],
		"--port", strconv.Itoa(port),
		"--ctx-size", strconv.Itoa(ctxSize),
	}, nil
}

func (a *Adapter) EndpointMap() map[string]string {
	return map[string]string{
		"chat":       "/v1/chat/completions",
		"completion": "/v1/completions",
		"responses":  "/v1/chat/completions",
	}
}

// TransformRequest overwrites the "model" field with the checkpoint string
// flm expects, per the recipe-specific transform rule for FLM.
func (a *Adapter) TransformRequest(endpoint string, body []byte, info *model.Info, opts model.Options) ([]byte, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return body, nil
	}
	payload["model"] = info.Checkpoints[model.RoleMain]
	return json.Marshal(payload)
}

func (a *Adapter) ContentType(endpoint string) string { return "application/json" }

func (a *Adapter) ReadinessPath() string { return "/v1/models" }

func (a *Adapter) ReadinessTimeout() time.Duration { return 600 * time.Second }

func (a *Adapter) EnvOverlay(info *model.Info, opts model.Options) map[string]string { return nil }

// compareVersions compares dotted version strings numerically component by
// component, returning -1, 0 or 1 like strings.Compare.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var an, bn int
		if i < len(as) {
			an, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bn, _ = strconv.Atoi(bs[i])
		}
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
	}
	return 0
}
