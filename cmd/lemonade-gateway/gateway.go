package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lemonade-sdk/lemonade-gateway/internal/backend"
	"github.com/lemonade-sdk/lemonade-gateway/internal/backend/adapters/flm"
	"github.com/lemonade-sdk/lemonade-gateway/internal/backend/adapters/kokoro"
	"github.com/lemonade-sdk/lemonade-gateway/internal/backend/adapters/llamacpp"
	"github.com/lemonade-sdk/lemonade-gateway/internal/backend/adapters/ryzenai"
	"github.com/lemonade-sdk/lemonade-gateway/internal/backend/adapters/sdcpp"
	"github.com/lemonade-sdk/lemonade-gateway/internal/backend/adapters/whispercpp"
	"github.com/lemonade-sdk/lemonade-gateway/internal/catalog"
	"github.com/lemonade-sdk/lemonade-gateway/internal/config"
	"github.com/lemonade-sdk/lemonade-gateway/internal/httpapi"
	"github.com/lemonade-sdk/lemonade-gateway/internal/install"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
	"github.com/lemonade-sdk/lemonade-gateway/internal/router"
	"github.com/lemonade-sdk/lemonade-gateway/internal/system"
)

// gatewayVersion is stamped into the system report cache key and the
// gateway_version field of /system-info.
const gatewayVersion = "0.1.0"

// releaseBaseURL is the default release-archive host; overridable so
// internal mirrors or air-gapped builds can point elsewhere.
func releaseBaseURL() string {
	if v := os.Getenv("LEMONADE_RELEASE_BASE_URL"); v != "" {
		return v
	}
	return "https://github.com/lemonade-sdk/lemonade-gateway/releases/download"
}

func releaseVersion() string {
	if v := os.Getenv("LEMONADE_RELEASE_VERSION"); v != "" {
		return v
	}
	return gatewayVersion
}

// gateway bundles the process-wide state constructed at startup; teardown
// is the inverse of construction (Router.Shutdown, then nothing else holds
// child processes).
type gateway struct {
	catalog *catalog.Catalog
	router  *router.Router
	report  *system.Report
	server  *httpapi.Server
}

func stateDir() string {
	if d, err := os.UserCacheDir(); err == nil {
		return filepath.Join(d, "lemonade-gateway")
	}
	return filepath.Join(os.TempDir(), "lemonade-gateway")
}

func newGateway(log logging.Logger, flags *config.ServeFlags, core config.Core) (*gateway, error) {
	base := stateDir()
	hardwareCachePath := filepath.Join(base, "hardware_cache.json")

	report, ok := system.LoadCache(hardwareCachePath, gatewayVersion)
	if !ok {
		var err error
		report, err = system.Detect(gatewayVersion)
		if err != nil {
			return nil, fmt.Errorf("detect system capabilities: %w", err)
		}
		if err := system.SaveCache(hardwareCachePath, report); err != nil {
			log.WithError(err).Warn("failed to persist hardware capability cache")
		}
	}

	shipped, err := catalog.LoadShippedCatalogue()
	if err != nil {
		return nil, fmt.Errorf("load shipped catalogue: %w", err)
	}

	cat, err := catalog.New(log, catalog.Config{
		CacheRoot:        core.CacheRoot,
		StateDir:         base,
		ExtraModelsDir:   flags.ExtraModelsDir,
		DisableFiltering: core.DisableModelFiltering,
		Offline:          core.Offline,
		HuggingFaceToken: core.HuggingFaceToken,
		HTTPClient:       http.DefaultClient,
	}, report, shipped)
	if err != nil {
		return nil, fmt.Errorf("build catalogue: %w", err)
	}

	installRoot := install.DefaultRoot()
	adapters := map[model.Recipe]backend.Adapter{
		model.RecipeLlamaCpp:   llamacpp.New(log, installRoot, releaseVersion(), releaseBaseURL()),
		model.RecipeWhisperCpp: whispercpp.New(log, installRoot, releaseVersion(), releaseBaseURL()),
		model.RecipeKokoro:     kokoro.New(log, installRoot, releaseVersion(), releaseBaseURL()),
		model.RecipeSDCpp:      sdcpp.New(log, installRoot, releaseVersion(), releaseBaseURL()),
		model.RecipeRyzenAILLM: ryzenai.New(log, installRoot, releaseVersion(), releaseBaseURL()),
		model.RecipeFLM:        flm.New(log, os.Getenv("LEMONADE_FLM_INSTALLER_URL")),
	}

	rt := router.New(log, cat, adapters, flags.MaxLoadedModels)

	srv := httpapi.New(log, rt, cat, report, httpapi.Config{
		APIKey:         core.APIKey,
		GatewayVersion: gatewayVersion,
		ShutdownFunc: func(ctx context.Context) error {
			return rt.Shutdown(ctx)
		},
	})

	return &gateway{catalog: cat, router: rt, report: report, server: srv}, nil
}
