// Package backend implements the generic backend supervisor shared by every
// recipe adapter: subprocess lifecycle, port selection, readiness polling,
// request/streaming forwarding and telemetry accumulation.
package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// Adapter is the per-recipe engine driver. One Adapter implementation exists
// per entry in model.Recipe; the Supervisor is recipe-agnostic and drives
// every adapter through this same interface.
type Adapter interface {
	// Recipe identifies which model.Recipe this adapter drives.
	Recipe() model.Recipe

	// Capabilities lists the named operations this adapter's child process
	// exposes (chat, completion, responses, embeddings, reranking,
	// audio_transcribe, audio_speech, image_generate). The router checks
	// capability presence before dispatch instead of using a class
	// hierarchy.
	Capabilities() map[string]bool

	// Install ensures the backend binary for flavour is present, returning
	// its executable path. httpClient is used for any release-archive
	// download the install requires.
	Install(ctx context.Context, httpClient *http.Client, flavour model.Flavour) (string, error)

	// BuildArgv constructs the child process command line for info/opts,
	// binding it to port on 127.0.0.1. Reserved flags present in any
	// free-form argument string are rejected before the process is spawned.
	BuildArgv(binary string, info *model.Info, opts model.Options, port int) ([]string, error)

	// EndpointMap maps a gateway endpoint name (e.g. "chat") to the child
	// process's HTTP path (e.g. "/v1/chat/completions"). A missing entry
	// means the operation is unsupported by this adapter.
	EndpointMap() map[string]string

	// TransformRequest rewrites body for endpoint before it is forwarded to
	// the child process (e.g. renaming fields, injecting the resolved model
	// path, packing image generation parameters into a sentinel).
	TransformRequest(endpoint string, body []byte, info *model.Info, opts model.Options) ([]byte, error)

	// ContentType returns the Content-Type header to send with endpoint's
	// forwarded request (most adapters return "application/json";
	// whispercpp returns a multipart boundary type for its upload).
	ContentType(endpoint string) string

	// ReadinessPath is polled with GET until it returns 2xx or the process
	// exits.
	ReadinessPath() string

	// ReadinessTimeout bounds how long Load waits for readiness.
	ReadinessTimeout() time.Duration

	// EnvOverlay returns additional environment variables the child process
	// should inherit beyond the gateway's own environment.
	EnvOverlay(info *model.Info, opts model.Options) map[string]string
}
