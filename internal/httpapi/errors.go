package httpapi

import (
	"errors"
	"net/http"

	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
)

// errorBody is the JSON shape of every error response, modeled on the
// OpenAI-compatible {"error": {...}} envelope the inference endpoints also
// use for backend-reported failures.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Model   string `json:"model,omitempty"`
}

// statusForKind maps a tagged error Kind onto the HTTP status a client
// should see, per the error-kind table.
func statusForKind(kind gatewayerr.Kind) int {
	switch kind {
	case gatewayerr.KindInvalidRequest:
		return http.StatusBadRequest
	case gatewayerr.KindAuthFailed:
		return http.StatusUnauthorized
	case gatewayerr.KindModelNotFound:
		return http.StatusNotFound
	case gatewayerr.KindModelNotLoaded:
		return http.StatusConflict
	case gatewayerr.KindModelInvalidated:
		return http.StatusUnprocessableEntity
	case gatewayerr.KindUnsupportedOperation:
		return http.StatusNotImplemented
	case gatewayerr.KindDownloadCancelled:
		return http.StatusOK
	case gatewayerr.KindBackendInstallFailed, gatewayerr.KindBackendStartupFailed, gatewayerr.KindDownloadFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the JSON error envelope, choosing its status
// from the tagged Kind when err carries one and falling back to 500
// otherwise.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForErr(err), errorBody{Error: errorDetail{
		Message: errMessage(err),
		Type:    string(errKind(err)),
		Model:   errModel(err),
	}})
}

func statusForErr(err error) int { return statusForKind(errKind(err)) }

func errKind(err error) gatewayerr.Kind {
	var ge *gatewayerr.Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return gatewayerr.Kind("internal_error")
}

func errMessage(err error) string {
	var ge *gatewayerr.Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return err.Error()
}

func errModel(err error) string {
	var ge *gatewayerr.Error
	if errors.As(err, &ge) {
		return ge.ModelName
	}
	return ""
}
