package system

import (
	"testing"

	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLargestMemoryPoolPrefersRAMWhenLarger(t *testing.T) {
	r := &Report{TotalMemoryBytes: 32 << 30, GPUs: []GPU{{VRAMBytes: 4 << 30}}}
	require.Equal(t, uint64(float64(32<<30)*0.8), r.LargestMemoryPool())
}

func TestLargestMemoryPoolPrefersGPUWhenLarger(t *testing.T) {
	r := &Report{TotalMemoryBytes: 8 << 30, GPUs: []GPU{{VRAMBytes: 24 << 30}}}
	require.Equal(t, uint64(24<<30), r.LargestMemoryPool())
}

func TestComputeRecipeSupportNPUGating(t *testing.T) {
	r := &Report{NPUPresent: false}
	support := computeRecipeSupport(r)
	require.False(t, support[model.RecipeFLM].Supported)
	require.False(t, support[model.RecipeRyzenAILLM].Supported)
	require.True(t, support[model.RecipeLlamaCpp].Supported)
}

func TestCacheRoundTripInvalidatesOnVersionBump(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/hardware_cache.json"
	r := &Report{GatewayVersion: "1.0.0", CPUName: "Test CPU"}
	require.NoError(t, SaveCache(path, r))

	got, ok := LoadCache(path, "1.0.0")
	require.True(t, ok)
	require.Equal(t, "Test CPU", got.CPUName)

	_, ok = LoadCache(path, "2.0.0")
	require.False(t, ok)
}
