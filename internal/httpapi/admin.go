package httpapi

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/download"
	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	snapshot := s.catalog.Snapshot()
	out := make([]*model.Info, 0, len(snapshot))
	for _, info := range snapshot {
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": out})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("id")
	info, err := s.catalog.Lookup(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type loadRequest struct {
	Model        string        `json:"model"`
	DoNotUpgrade bool          `json:"do_not_upgrade"`
	Options      model.Options `json:"recipe_options"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeError(w, gatewayerr.New(gatewayerr.KindInvalidRequest, "\"model\" is required"))
		return
	}
	sup, err := s.router.LoadModel(r.Context(), req.Model, req.Options, req.DoNotUpgrade)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model_name":  sup.ModelName(),
		"backend_url": sup.BaseURL(),
	})
}

type modelNameRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	var req modelNameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.router.Unload(req.Model); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unloaded"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req modelNameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	_ = s.router.Unload(req.Model)
	if err := s.catalog.Delete(req.Model); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type paramsRequest struct {
	Model   string        `json:"model"`
	Recipe  model.Recipe  `json:"recipe"`
	Options model.Options `json:"recipe_options"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeError(w, gatewayerr.New(gatewayerr.KindInvalidRequest, "\"model\" is required"))
		return
	}
	if err := s.catalog.SaveOptions(req.Model, req.Recipe, req.Options); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

type logLevelRequest struct {
	Level string `json:"level"`
}

func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	var req logLevelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	logging.SetLevel(s.log, req.Level)
	writeJSON(w, http.StatusOK, map[string]string{"level": req.Level})
}

type pullRequest struct {
	Model        string       `json:"model"`
	DoNotUpgrade bool         `json:"do_not_upgrade"`
	Checkpoint   string       `json:"checkpoint,omitempty"`
	Recipe       model.Recipe `json:"recipe,omitempty"`
	MMProj       string       `json:"mmproj,omitempty"`
	Labels       []string     `json:"labels,omitempty"`
}

// handlePull streams three SSE event types derived from download.ManifestProgress:
// "progress" on every callback, "complete" once Pull returns successfully,
// and "error" (without aborting the connection) on failure. A request that
// carries Checkpoint/Recipe first registers a "user."-prefixed catalogue
// entry, the same entry point the "pull MODEL --checkpoint ..." CLI form
// uses to introduce a model the shipped catalogue doesn't know about.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeError(w, gatewayerr.New(gatewayerr.KindInvalidRequest, "\"model\" is required"))
		return
	}

	target := req.Model
	if req.Checkpoint != "" {
		if req.Recipe == "" {
			writeError(w, gatewayerr.New(gatewayerr.KindInvalidRequest, "\"recipe\" is required when registering a checkpoint"))
			return
		}
		if !model.IsUserModel(target) {
			target = "user." + target
		}
		labels := make([]model.Label, 0, len(req.Labels))
		for _, l := range req.Labels {
			labels = append(labels, model.Label(l))
		}
		if err := s.catalog.RegisterUser(target, req.Checkpoint, req.Recipe, labels, req.MMProj, model.SourceLocalUpload); err != nil {
			writeError(w, err)
			return
		}
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, gatewayerr.New(gatewayerr.KindUnsupportedOperation, "streaming not supported by this connection"))
		return
	}

	s.metrics.DownloadStarted()
	defer s.metrics.DownloadFinished()

	var progressMu sync.Mutex
	lastReported := map[int]int64{}
	err := s.catalog.Pull(r.Context(), target, req.DoNotUpgrade, func(p download.ManifestProgress) bool {
		progressMu.Lock()
		if p.BytesDownloaded > lastReported[p.FileIndex] {
			s.metrics.RecordDownloadBytes(target, p.BytesDownloaded-lastReported[p.FileIndex])
			lastReported[p.FileIndex] = p.BytesDownloaded
		}
		progressMu.Unlock()
		sendErr := sse.send("progress", map[string]interface{}{
			"file":             p.File,
			"file_index":       p.FileIndex,
			"total_files":      p.TotalFiles,
			"bytes_downloaded": p.BytesDownloaded,
			"bytes_total":      p.BytesTotal,
			"percent":          p.Percent,
		})
		return sendErr == nil && r.Context().Err() == nil
	})

	if err != nil {
		if gatewayerr.Of(err, gatewayerr.KindDownloadCancelled) {
			_ = sse.send("complete", map[string]interface{}{})
			return
		}
		_ = sse.send("error", map[string]string{"error": err.Error()})
		return
	}
	_ = sse.send("complete", map[string]interface{}{})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	lm, telemetry, ok := s.router.Stats()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"loaded": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loaded":              true,
		"model":               lm,
		"input_tokens":        telemetry.InputTokens,
		"output_tokens":       telemetry.OutputTokens,
		"prompt_tokens":       telemetry.PromptTokens,
		"tokens_per_second":   telemetry.TokensPerSecond,
		"time_to_first_token": telemetry.TimeToFirstToken.Seconds(),
	})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.report)
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	loaded := s.router.GetAllLoadedModels()
	s.metrics.SetModelsLoaded(len(loaded))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": time.Since(s.start).Seconds(),
		"loaded_models":  loaded,
		"goroutines":     runtime.NumGoroutine(),
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ShutdownFunc == nil {
		writeError(w, gatewayerr.New(gatewayerr.KindUnsupportedOperation, "shutdown not configured"))
		return
	}
	if err := s.cfg.ShutdownFunc(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
}

// decodeJSON reads and unmarshals r.Body into dst, writing a tagged 400 and
// returning false on any failure so handlers can early-return in one line.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, gatewayerr.New(gatewayerr.KindInvalidRequest, "request body is not valid JSON"))
		return false
	}
	return true
}
