package model

import "fmt"

// Options is the recipe-options bag. It is modelled as a tagged union — one
// optional struct per recipe — rather than a free-form map, so that invalid
// recipe/option combinations are unrepresentable. Only the field matching
// the entry's own recipe is ever populated; the CLI parser and the JSON
// loader both project into this representation.
type Options struct {
	LlamaCpp   *LlamaCppOptions   `json:"llamacpp,omitempty"`
	WhisperCpp *WhisperCppOptions `json:"whispercpp,omitempty"`
	FLM        *CtxSizeOptions    `json:"flm,omitempty"`
	RyzenAI    *CtxSizeOptions    `json:"ryzenai-llm,omitempty"`
	SDCpp      *SDCppOptions      `json:"sd-cpp,omitempty"`
}

// CtxSizeOptions covers recipes whose only knob is context size (flm,
// ryzenai-llm).
type CtxSizeOptions struct {
	CtxSize int `json:"ctx_size,omitempty"`
}

// LlamaCppOptions covers the llamacpp recipe.
type LlamaCppOptions struct {
	CtxSize         int     `json:"ctx_size,omitempty"`
	LlamaCppBackend Flavour `json:"llamacpp_backend,omitempty"`
	LlamaCppArgs    string  `json:"llamacpp_args,omitempty"`
}

// WhisperCppOptions covers the whispercpp recipe.
type WhisperCppOptions struct {
	WhisperCppBackend Flavour `json:"whispercpp_backend,omitempty"`
}

// SDCppOptions covers the sd-cpp recipe.
type SDCppOptions struct {
	SDCppBackend Flavour `json:"sd-cpp_backend,omitempty"`
	Steps        int     `json:"steps,omitempty"`
	CFGScale     float64 `json:"cfg_scale,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
}

// Clone returns a deep copy.
func (o Options) Clone() Options {
	var c Options
	if o.LlamaCpp != nil {
		v := *o.LlamaCpp
		c.LlamaCpp = &v
	}
	if o.WhisperCpp != nil {
		v := *o.WhisperCpp
		c.WhisperCpp = &v
	}
	if o.FLM != nil {
		v := *o.FLM
		c.FLM = &v
	}
	if o.RyzenAI != nil {
		v := *o.RyzenAI
		c.RyzenAI = &v
	}
	if o.SDCpp != nil {
		v := *o.SDCpp
		c.SDCpp = &v
	}
	return c
}

// Merge overlays override on top of the receiver, field by field within
// each recipe's struct, so that the most specific value present always
// wins. The callers chain Merge calls from least to most specific: recipe
// defaults -> per-model saved overrides (optionsStore.effective) -> load-call
// overrides (Router.LoadModel). No global-defaults link is applied.
func Merge(base, override Options) Options {
	out := base.Clone()
	if override.LlamaCpp != nil {
		if out.LlamaCpp == nil {
			out.LlamaCpp = &LlamaCppOptions{}
		}
		if override.LlamaCpp.CtxSize != 0 {
			out.LlamaCpp.CtxSize = override.LlamaCpp.CtxSize
		}
		if override.LlamaCpp.LlamaCppBackend != "" {
			out.LlamaCpp.LlamaCppBackend = override.LlamaCpp.LlamaCppBackend
		}
		if override.LlamaCpp.LlamaCppArgs != "" {
			out.LlamaCpp.LlamaCppArgs = override.LlamaCpp.LlamaCppArgs
		}
	}
	if override.WhisperCpp != nil {
		if out.WhisperCpp == nil {
			out.WhisperCpp = &WhisperCppOptions{}
		}
		if override.WhisperCpp.WhisperCppBackend != "" {
			out.WhisperCpp.WhisperCppBackend = override.WhisperCpp.WhisperCppBackend
		}
	}
	if override.FLM != nil {
		if out.FLM == nil {
			out.FLM = &CtxSizeOptions{}
		}
		if override.FLM.CtxSize != 0 {
			out.FLM.CtxSize = override.FLM.CtxSize
		}
	}
	if override.RyzenAI != nil {
		if out.RyzenAI == nil {
			out.RyzenAI = &CtxSizeOptions{}
		}
		if override.RyzenAI.CtxSize != 0 {
			out.RyzenAI.CtxSize = override.RyzenAI.CtxSize
		}
	}
	if override.SDCpp != nil {
		if out.SDCpp == nil {
			out.SDCpp = &SDCppOptions{}
		}
		if override.SDCpp.SDCppBackend != "" {
			out.SDCpp.SDCppBackend = override.SDCpp.SDCppBackend
		}
		if override.SDCpp.Steps != 0 {
			out.SDCpp.Steps = override.SDCpp.Steps
		}
		if override.SDCpp.CFGScale != 0 {
			out.SDCpp.CFGScale = override.SDCpp.CFGScale
		}
		if override.SDCpp.Width != 0 {
			out.SDCpp.Width = override.SDCpp.Width
		}
		if override.SDCpp.Height != 0 {
			out.SDCpp.Height = override.SDCpp.Height
		}
	}
	return out
}

// RecipeDefaults returns the built-in defaults for a recipe, the least
// specific link in the inheritance chain.
func RecipeDefaults(recipe Recipe) Options {
	switch recipe {
	case RecipeLlamaCpp:
		return Options{LlamaCpp: &LlamaCppOptions{CtxSize: 4096, LlamaCppBackend: FlavourCPU}}
	case RecipeWhisperCpp:
		return Options{WhisperCpp: &WhisperCppOptions{WhisperCppBackend: FlavourCPU}}
	case RecipeFLM:
		return Options{FLM: &CtxSizeOptions{CtxSize: 4096}}
	case RecipeRyzenAILLM:
		return Options{RyzenAI: &CtxSizeOptions{CtxSize: 4096}}
	case RecipeSDCpp:
		return Options{SDCpp: &SDCppOptions{SDCppBackend: FlavourCPU, Steps: 20, CFGScale: 7.0, Width: 512, Height: 512}}
	default:
		return Options{}
	}
}

// Validate rejects option bags that name a recipe section which doesn't
// match recipe, keeping invalid combinations unrepresentable at the
// boundary where options are decoded from JSON or CLI flags.
func Validate(recipe Recipe, o Options) error {
	count := 0
	if o.LlamaCpp != nil {
		count++
		if recipe != RecipeLlamaCpp {
			return fmt.Errorf("llamacpp options set for recipe %q", recipe)
		}
	}
	if o.WhisperCpp != nil {
		count++
		if recipe != RecipeWhisperCpp {
			return fmt.Errorf("whispercpp options set for recipe %q", recipe)
		}
	}
	if o.FLM != nil {
		count++
		if recipe != RecipeFLM {
			return fmt.Errorf("flm options set for recipe %q", recipe)
		}
	}
	if o.RyzenAI != nil {
		count++
		if recipe != RecipeRyzenAILLM {
			return fmt.Errorf("ryzenai-llm options set for recipe %q", recipe)
		}
	}
	if o.SDCpp != nil {
		count++
		if recipe != RecipeSDCpp {
			return fmt.Errorf("sd-cpp options set for recipe %q", recipe)
		}
	}
	return nil
}
