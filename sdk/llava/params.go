package llava

import "github.com/hybridgroup/yzma/pkg/llama"

const (
	defTopK = 40
	defTopP = 0.9
	defTemp = 0.8
)

// Params represents the sampling options used for generation. Zero values
// are replaced with defaults.
type Params struct {
	TopK int32
	TopP float32
	Temp float32
}

func adjustParams(p Params) Params {
	if p.TopK <= 0 {
		p.TopK = defTopK
	}

	if p.TopP <= 0 || p.TopP > 1 {
		p.TopP = defTopP
	}

	if p.Temp <= 0 {
		p.Temp = defTemp
	}

	return p
}

func toSampler(p Params) llama.Sampler {
	sampler := llama.SamplerChainInit(llama.SamplerChainDefaultParams())

	llama.SamplerChainAdd(sampler, llama.SamplerInitTopK(p.TopK))
	llama.SamplerChainAdd(sampler, llama.SamplerInitTopP(p.TopP, 0))
	llama.SamplerChainAdd(sampler, llama.SamplerInitTempExt(p.Temp, 0, 1.0))
	llama.SamplerChainAdd(sampler, llama.SamplerInitDist(llama.DefaultSeed))

	return sampler
}
