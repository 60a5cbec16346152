package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
	"github.com/lemonade-sdk/lemonade-gateway/internal/process"
)

// Telemetry accumulates the per-model counters surfaced by the status and
// system-stats endpoints.
type Telemetry struct {
	InputTokens      int64
	OutputTokens     int64
	PromptTokens     int64
	TimeToFirstToken time.Duration
	TokensPerSecond  float64
}

// Supervisor wraps one running backend child process: its Adapter, its
// process.Handle, and the busy/telemetry/last-access bookkeeping the router
// needs to dispatch requests and make eviction decisions.
type Supervisor struct {
	log        logging.Logger
	adapter    Adapter
	info       *model.Info
	httpClient *http.Client

	mu         sync.Mutex
	cond       *sync.Cond
	busy       bool
	handle     *process.Handle
	port       int
	baseURL    string
	lastAccess time.Time
	telemetry  Telemetry
	opts       model.Options
}

// New creates an unstarted Supervisor for info, driven by adapter.
func New(log logging.Logger, adapter Adapter, info *model.Info) *Supervisor {
	s := &Supervisor{
		log:     log.WithField("component", "backend").WithField("model", info.ModelName),
		adapter: adapter,
		info:    info,
		httpClient: &http.Client{
			Timeout: 0, // streaming endpoints manage their own deadlines via ctx
		},
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ModelName returns the supervised model's catalogue name.
func (s *Supervisor) ModelName() string { return s.info.ModelName }

// Recipe returns the adapter's recipe.
func (s *Supervisor) Recipe() model.Recipe { return s.adapter.Recipe() }

// Device reports the supervised model's device set.
func (s *Supervisor) Device() model.DeviceType { return s.info.Device }

// Type reports the supervised model's capability type.
func (s *Supervisor) Type() model.Type { return s.info.Type }

// HasCapability reports whether the adapter exposes the named operation.
func (s *Supervisor) HasCapability(name string) bool { return s.adapter.Capabilities()[name] }

// Checkpoint returns the main-role checkpoint string this supervisor loaded.
func (s *Supervisor) Checkpoint() string { return s.info.Checkpoints[model.RoleMain] }

// Options returns the recipe-options bag the supervisor was loaded with,
// the load-time link of the options inheritance chain (§3).
func (s *Supervisor) Options() model.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// LastAccess returns the last time this supervisor was dispatched to,
// the LRU eviction key.
func (s *Supervisor) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Telemetry returns a snapshot of accumulated counters.
func (s *Supervisor) Telemetry() Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telemetry
}

// BaseURL returns the child process's "http://127.0.0.1:<port>" address.
func (s *Supervisor) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// freePort binds an ephemeral TCP port and immediately releases it, the
// conventional way to reserve a port number without holding the socket open
// across the fork/exec that follows.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Load starts the child process from a binary already installed by the
// caller (the router performs installation and any recipe-specific
// invalidation check before calling Load, so it can react to an
// installation-time model invalidation without starting a process first),
// then polls its readiness endpoint once per second until it responds or
// the adapter's readiness timeout elapses.
func (s *Supervisor) Load(ctx context.Context, binary string, opts model.Options) error {
	port, err := freePort()
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindBackendStartupFailed, err, "could not reserve a port").WithModel(s.info.ModelName)
	}

	argv, err := s.adapter.BuildArgv(binary, s.info, opts, port)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindInvalidRequest, err, "invalid runtime arguments").WithModel(s.info.ModelName)
	}

	handle, err := process.Spawn(ctx, s.log, process.SpawnOptions{
		Exe:        binary,
		Argv:       argv,
		EnvOverlay: s.adapter.EnvOverlay(s.info, opts),
		LogWriter:  s.log.Writer(),
	})
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindBackendStartupFailed, err, "failed to start backend process").WithModel(s.info.ModelName)
	}

	s.mu.Lock()
	s.handle = handle
	s.port = port
	s.baseURL = "http://127.0.0.1:" + strconv.Itoa(port)
	s.lastAccess = time.Now()
	s.opts = opts
	s.mu.Unlock()

	if err := s.waitReady(ctx, handle); err != nil {
		_ = handle.Stop(context.Background())
		return gatewayerr.Wrap(gatewayerr.KindBackendStartupFailed, err, "backend did not become ready").WithModel(s.info.ModelName)
	}

	s.log.Infof("backend ready on port %d", port)
	return nil
}

func (s *Supervisor) waitReady(ctx context.Context, handle *process.Handle) error {
	timeout := s.adapter.ReadinessTimeout()
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	deadline := time.Now().Add(timeout)
	url := s.baseURL + s.adapter.ReadinessPath()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if !handle.Running() {
			if exitErr := handle.ExitErr(); exitErr != nil {
				return errors.Wrapf(exitErr, "backend process exited during startup with code %d", handle.ExitCode())
			}
			return errors.Errorf("backend process exited during startup with code %d", handle.ExitCode())
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := s.httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for readiness", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unload stops the child process. It is idempotent.
func (s *Supervisor) Unload(ctx context.Context) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return nil
	}
	return handle.Stop(ctx)
}

// MarkBusy marks the supervisor busy and bumps its last-access time. Callers
// must pair every MarkBusy with a ClearBusy, typically via defer.
func (s *Supervisor) MarkBusy() {
	s.mu.Lock()
	s.busy = true
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// ClearBusy clears the busy flag and wakes any WaitUntilNotBusy callers.
func (s *Supervisor) ClearBusy() {
	s.mu.Lock()
	s.busy = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

// WaitUntilNotBusy blocks until the supervisor is not busy, used by the
// router before evicting a supervisor it has decided to unload.
func (s *Supervisor) WaitUntilNotBusy() {
	s.mu.Lock()
	for s.busy {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// ForwardRequest sends body to the child process's endpoint (a gateway
// endpoint name, mapped through the adapter's EndpointMap) and returns the
// full response body and status code.
func (s *Supervisor) ForwardRequest(ctx context.Context, endpoint string, body []byte, opts model.Options) ([]byte, int, error) {
	path, ok := s.adapter.EndpointMap()[endpoint]
	if !ok {
		return nil, 0, gatewayerr.New(gatewayerr.KindUnsupportedOperation, "operation not supported by this backend").WithModel(s.info.ModelName)
	}

	transformed, err := s.adapter.TransformRequest(endpoint, body, s.info, opts)
	if err != nil {
		return nil, 0, gatewayerr.Wrap(gatewayerr.KindInvalidRequest, err, "could not build backend request").WithModel(s.info.ModelName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(transformed))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", s.adapter.ContentType(endpoint))

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, gatewayerr.Wrap(gatewayerr.KindBackendStartupFailed, err, "backend request failed").WithModel(s.info.ModelName)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	s.recordUsage(data, time.Since(start))
	return data, resp.StatusCode, nil
}

// usageEnvelope is the subset of an OpenAI-compatible response body that
// carries token accounting; every recipe's chat/completion/embedding
// response shares this shape.
type usageEnvelope struct {
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// recordUsage extracts token counts from a completed response and folds
// them into the running telemetry accumulator. A response with no "usage"
// field (e.g. audio/image endpoints) leaves the counters untouched.
func (s *Supervisor) recordUsage(body []byte, elapsed time.Duration) {
	var env usageEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Usage.CompletionTokens == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry.PromptTokens += env.Usage.PromptTokens
	s.telemetry.InputTokens += env.Usage.PromptTokens
	s.telemetry.OutputTokens += env.Usage.CompletionTokens
	if elapsed > 0 {
		s.telemetry.TokensPerSecond = float64(env.Usage.CompletionTokens) / elapsed.Seconds()
	}
}

// StreamSink receives raw bytes as they arrive from the child process,
// without any request-level buffering.
type StreamSink interface {
	io.Writer
	Flush()
}

// ForwardStreamingRequest streams body to the child process's endpoint and
// copies the response to sink chunk by chunk, flushing after every chunk so
// no buffering is introduced at the gateway layer.
func (s *Supervisor) ForwardStreamingRequest(ctx context.Context, endpoint string, body []byte, opts model.Options, sink StreamSink) error {
	path, ok := s.adapter.EndpointMap()[endpoint]
	if !ok {
		return gatewayerr.New(gatewayerr.KindUnsupportedOperation, "operation not supported by this backend").WithModel(s.info.ModelName)
	}

	transformed, err := s.adapter.TransformRequest(endpoint, body, s.info, opts)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindInvalidRequest, err, "could not build backend request").WithModel(s.info.ModelName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(transformed))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", s.adapter.ContentType(endpoint))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindBackendStartupFailed, err, "backend request failed").WithModel(s.info.ModelName)
	}
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	first := true
	start := time.Now()
	var tail []byte
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if first {
				s.mu.Lock()
				s.telemetry.TimeToFirstToken = time.Since(start)
				s.mu.Unlock()
				first = false
			}
			tail = lastSSEChunk(tail, buf[:n])
			if _, err := sink.Write(buf[:n]); err != nil {
				return err
			}
			sink.Flush()
		}
		if readErr == io.EOF {
			s.recordUsage(tail, time.Since(start))
			return nil
		}
		if readErr != nil {
			return readErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// lastSSEChunk keeps enough of the trailing "data: {...}" line to extract a
// final usage block (most OpenAI-compatible servers emit one on the last
// streamed chunk before "data: [DONE]"), without buffering the full stream.
func lastSSEChunk(prevTail, chunk []byte) []byte {
	combined := append(prevTail, chunk...)
	if idx := bytes.LastIndex(combined, []byte("data: ")); idx >= 0 {
		line := combined[idx+len("data: "):]
		if end := bytes.IndexByte(line, '\n'); end >= 0 {
			line = line[:end]
		}
		if !bytes.Equal(bytes.TrimSpace(line), []byte("[DONE]")) {
			return append([]byte(nil), line...)
		}
	}
	if len(combined) > 4096 {
		combined = combined[len(combined)-4096:]
	}
	return combined
}

// RecipeFlavour picks the flavour recorded in opts for recipe. ryzenai-llm
// and flm always use NPU; the other recipes default to CPU when opts
// carries no flavour for them.
func RecipeFlavour(recipe model.Recipe, opts model.Options) model.Flavour {
	switch recipe {
	case model.RecipeLlamaCpp:
		if opts.LlamaCpp != nil && opts.LlamaCpp.LlamaCppBackend != "" {
			return opts.LlamaCpp.LlamaCppBackend
		}
	case model.RecipeWhisperCpp:
		if opts.WhisperCpp != nil && opts.WhisperCpp.WhisperCppBackend != "" {
			return opts.WhisperCpp.WhisperCppBackend
		}
	case model.RecipeSDCpp:
		if opts.SDCpp != nil && opts.SDCpp.SDCppBackend != "" {
			return opts.SDCpp.SDCppBackend
		}
	case model.RecipeRyzenAILLM, model.RecipeFLM:
		return model.FlavourNPU
	}
	return model.FlavourCPU
}
