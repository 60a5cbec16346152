package router

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lemonade-sdk/lemonade-gateway/internal/backend"
	"github.com/lemonade-sdk/lemonade-gateway/internal/catalog"
	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

func testCatalog(t *testing.T, shipped map[string]*model.Info) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(logging.New("error"), catalog.Config{
		CacheRoot:        t.TempDir(),
		StateDir:         t.TempDir(),
		DisableFiltering: true,
	}, nil, shipped)
	require.NoError(t, err)
	return c
}

func TestDispatchModelNotLoaded(t *testing.T) {
	r := New(logging.New("error"), testCatalog(t, nil), nil, -1)
	_, _, err := r.Dispatch(context.Background(), "chat", "missing", []byte(`{}`))
	require.Error(t, err)
	require.True(t, gatewayerr.Of(err, gatewayerr.KindModelNotLoaded))
}

func TestDispatchStreamingModelNotLoaded(t *testing.T) {
	r := New(logging.New("error"), testCatalog(t, nil), nil, -1)
	var buf bytes.Buffer
	err := r.DispatchStreaming(context.Background(), "chat", "missing", []byte(`{}`), NewBufferSink(&buf))
	require.Error(t, err)
	require.True(t, gatewayerr.Of(err, gatewayerr.KindModelNotLoaded))
}

func TestUnloadIsNoOpWhenNotLoaded(t *testing.T) {
	r := New(logging.New("error"), testCatalog(t, nil), nil, -1)
	require.NoError(t, r.Unload("missing"))
}

func TestGetAllLoadedModelsEmptyPool(t *testing.T) {
	r := New(logging.New("error"), testCatalog(t, nil), nil, -1)
	require.Empty(t, r.GetAllLoadedModels())
}

func TestStatsReportsOkFalseOnEmptyPool(t *testing.T) {
	r := New(logging.New("error"), testCatalog(t, nil), nil, -1)
	_, _, ok := r.Stats()
	require.False(t, ok)
}

func TestLoadModelFailsWhenModelNotRegistered(t *testing.T) {
	r := New(logging.New("error"), testCatalog(t, nil), nil, -1)
	_, err := r.LoadModel(context.Background(), "missing", model.Options{}, false)
	require.Error(t, err)
	require.True(t, gatewayerr.Of(err, gatewayerr.KindModelNotFound))
}

func TestLoadModelFailsWhenNoAdapterRegisteredForRecipe(t *testing.T) {
	shipped := map[string]*model.Info{
		"llama": {
			ModelName:   "llama",
			Recipe:      model.RecipeLlamaCpp,
			Checkpoints: map[string]string{model.RoleMain: "acme/llama:Q4_K_M"},
			Type:        model.TypeLLM,
		},
	}
	r := New(logging.New("error"), testCatalog(t, shipped), map[model.Recipe]backend.Adapter{}, -1)
	_, err := r.LoadModel(context.Background(), "llama", model.Options{}, false)
	require.Error(t, err)
	require.True(t, gatewayerr.Of(err, gatewayerr.KindUnsupportedOperation))
}

func TestBufferSinkAccumulatesWrites(t *testing.T) {
	var buf bytes.Buffer
	sink := NewBufferSink(&buf)
	_, err := sink.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = sink.Write([]byte("world"))
	require.NoError(t, err)
	sink.Flush()
	require.Equal(t, "hello world", buf.String())
}

func TestRecipeFlavourDefaultsToCPU(t *testing.T) {
	require.Equal(t, model.FlavourCPU, backend.RecipeFlavour(model.RecipeLlamaCpp, model.Options{}))
}

func TestRecipeFlavourHonorsLlamaCppOverride(t *testing.T) {
	opts := model.Options{LlamaCpp: &model.LlamaCppOptions{LlamaCppBackend: model.FlavourVulkan}}
	require.Equal(t, model.FlavourVulkan, backend.RecipeFlavour(model.RecipeLlamaCpp, opts))
}

func TestRecipeFlavourForcesNPUForRyzenAI(t *testing.T) {
	require.Equal(t, model.FlavourNPU, backend.RecipeFlavour(model.RecipeRyzenAILLM, model.Options{}))
}
