package httpapi

import (
	"bufio"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
)

// logPollInterval bounds how quickly a newly-appended log line reaches an
// open logs/stream subscriber.
const logPollInterval = 500 * time.Millisecond

// handleLogsStream tails cfg.LogPath, pushing each new line as an SSE "log"
// event until the client disconnects. Disabled (501 unsupported_operation)
// when no LogPath is configured, since a gateway run without file logging has nothing to tail.
func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.LogPath == "" {
		writeError(w, gatewayerr.New(gatewayerr.KindUnsupportedOperation, "log streaming not configured"))
		return
	}

	f, err := os.Open(s.cfg.LogPath)
	if err != nil {
		writeError(w, gatewayerr.Wrap(gatewayerr.KindUnsupportedOperation, err, "log file unavailable"))
		return
	}
	defer f.Close()

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, gatewayerr.New(gatewayerr.KindUnsupportedOperation, "streaming not supported by this connection"))
		return
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return
	}
	reader := bufio.NewReader(f)

	ctx := r.Context()
	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if len(line) > 0 {
					if sendErr := sse.send("log", map[string]string{"line": line}); sendErr != nil {
						return
					}
				}
				if err != nil {
					break
				}
			}
		}
	}
}
