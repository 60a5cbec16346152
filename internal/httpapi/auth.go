package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
)

// authMiddleware enforces bearer auth against cfg.APIKey on every /api/*,
// /v0/* and /v1/* route. An empty APIKey disables auth entirely, matching a
// local single-user deployment. OPTIONS requests are always let through so
// CORS preflight never needs a token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if s.cfg.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(header, prefix)), []byte(s.cfg.APIKey)) != 1 {
			writeError(w, gatewayerr.New(gatewayerr.KindAuthFailed, "missing or invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
