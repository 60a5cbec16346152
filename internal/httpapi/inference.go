package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
)

const maxRequestBytes = 256 << 20 // 256MiB, generous enough for base64 audio/image payloads

// inferenceRequest is the subset of every inference body this layer needs
// to read before forwarding the rest opaquely to the backend.
type inferenceRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// streamSink adapts an http.ResponseWriter+http.Flusher pair to
// backend.StreamSink.
type streamSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s streamSink) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s streamSink) Flush()                      { s.flusher.Flush() }

// handleInference returns a handler that reads a model name and stream flag
// out of the request body, then forwards to Router.Dispatch or
// Router.DispatchStreaming depending on it. endpoint identifies which
// adapter capability/path this route maps to.
func (s *Server) handleInference(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.metrics.RecordRequest("", endpoint, strconv.Itoa(http.StatusBadRequest), time.Since(start))
			writeError(w, gatewayerr.New(gatewayerr.KindInvalidRequest, "request body too large or unreadable"))
			return
		}

		var req inferenceRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.metrics.RecordRequest("", endpoint, strconv.Itoa(http.StatusBadRequest), time.Since(start))
			writeError(w, gatewayerr.New(gatewayerr.KindInvalidRequest, "request body is not valid JSON"))
			return
		}
		if req.Model == "" {
			s.metrics.RecordRequest("", endpoint, strconv.Itoa(http.StatusBadRequest), time.Since(start))
			writeError(w, gatewayerr.New(gatewayerr.KindInvalidRequest, "\"model\" is required"))
			return
		}

		if !req.Stream {
			resp, status, err := s.router.Dispatch(r.Context(), endpoint, req.Model, body)
			if err != nil {
				s.metrics.RecordRequest(req.Model, endpoint, strconv.Itoa(statusForErr(err)), time.Since(start))
				writeError(w, err)
				return
			}
			s.metrics.RecordRequest(req.Model, endpoint, strconv.Itoa(status), time.Since(start))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write(resp)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			s.metrics.RecordRequest(req.Model, endpoint, strconv.Itoa(http.StatusNotImplemented), time.Since(start))
			writeError(w, gatewayerr.New(gatewayerr.KindUnsupportedOperation, "streaming not supported by this connection"))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sink := streamSink{w: w, flusher: flusher}
		err = s.router.DispatchStreaming(r.Context(), endpoint, req.Model, body, sink)
		status := http.StatusOK
		if err != nil {
			status = statusForErr(err)
			s.log.WithError(err).WithField("model", req.Model).Warn("streaming dispatch failed mid-stream")
		}
		s.metrics.RecordRequest(req.Model, endpoint, strconv.Itoa(status), time.Since(start))
	}
}
