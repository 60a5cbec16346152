package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
)

func TestStatusForKind(t *testing.T) {
	cases := []struct {
		kind gatewayerr.Kind
		want int
	}{
		{gatewayerr.KindInvalidRequest, http.StatusBadRequest},
		{gatewayerr.KindAuthFailed, http.StatusUnauthorized},
		{gatewayerr.KindModelNotFound, http.StatusNotFound},
		{gatewayerr.KindModelNotLoaded, http.StatusConflict},
		{gatewayerr.KindModelInvalidated, http.StatusUnprocessableEntity},
		{gatewayerr.KindUnsupportedOperation, http.StatusNotImplemented},
		{gatewayerr.KindBackendInstallFailed, http.StatusInternalServerError},
		{gatewayerr.KindBackendStartupFailed, http.StatusInternalServerError},
		{gatewayerr.KindDownloadFailed, http.StatusInternalServerError},
		{gatewayerr.KindDownloadCancelled, http.StatusOK},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, statusForKind(c.kind), "kind=%s", c.kind)
	}
}

func TestWriteErrorUsesTaggedKind(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, gatewayerr.New(gatewayerr.KindModelNotFound, "no such model").WithModel("foo"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "model_not_found")
	assert.Contains(t, w.Body.String(), "foo")
}

func TestWriteErrorFallsBackToInternal(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, assertError("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type assertError string

func (e assertError) Error() string { return string(e) }
