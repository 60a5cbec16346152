package config

import (
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func TestRegisterServeFlagsReadsEnvDefaults(t *testing.T) {
	os.Setenv("LEMONADE_PORT", "9999")
	defer os.Unsetenv("LEMONADE_PORT")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := RegisterServeFlags(fs, false)
	assert.Equal(t, 9999, f.Port)
}

func TestRecipeOptionsProjectsOnlyWhenSet(t *testing.T) {
	f := &ServeFlags{}
	empty := f.RecipeOptions()
	assert.Nil(t, empty.LlamaCpp)
	assert.Nil(t, empty.SDCpp)

	f.CtxSize = 2048
	opts := f.RecipeOptions()
	assert.NotNil(t, opts.LlamaCpp)
	assert.Equal(t, 2048, opts.LlamaCpp.CtxSize)
	assert.NotNil(t, opts.FLM)
	assert.NotNil(t, opts.RyzenAI)
	assert.Nil(t, opts.SDCpp)
}

func TestBinOverrideChecksBackendSpecificThenBareRecipe(t *testing.T) {
	os.Setenv("LEMONADE_LLAMACPP_BIN", "/usr/local/bin/llama-server")
	defer os.Unsetenv("LEMONADE_LLAMACPP_BIN")

	path, ok := BinOverride("llamacpp", "")
	assert.True(t, ok)
	assert.Equal(t, "/usr/local/bin/llama-server", path)

	os.Setenv("LEMONADE_LLAMACPP_VULKAN_BIN", "/opt/vulkan/llama-server")
	defer os.Unsetenv("LEMONADE_LLAMACPP_VULKAN_BIN")

	path, ok = BinOverride("llamacpp", "vulkan")
	assert.True(t, ok)
	assert.Equal(t, "/opt/vulkan/llama-server", path)

	_, ok = BinOverride("whispercpp", "")
	assert.False(t, ok)
}
