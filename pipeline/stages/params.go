// Package stages implements the concrete pipeline.Stage types named in
// spec.md §4.3's stage table, grounded on the matching
// original_source/adapters/*.h adapter and the kept teacher DSP library
// each composes.
package stages

import (
	"fmt"

	"github.com/A-KGeorge/dspx/pipeline"
)

func floatParam(p pipeline.Params, key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: %q must be numeric", pipeline.ErrInvalidParams, key)
}

func requireFloatParam(p pipeline.Params, key string) (float64, error) {
	if _, ok := p[key]; !ok {
		return 0, fmt.Errorf("%w: missing required %q", pipeline.ErrInvalidParams, key)
	}
	return floatParam(p, key, 0)
}

func intParam(p pipeline.Params, key string, def int) (int, error) {
	v, err := floatParam(p, key, float64(def))
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func requireIntParam(p pipeline.Params, key string) (int, error) {
	if _, ok := p[key]; !ok {
		return 0, fmt.Errorf("%w: missing required %q", pipeline.ErrInvalidParams, key)
	}
	return intParam(p, key, 0)
}

func stringParam(p pipeline.Params, key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

func requireStringParam(p pipeline.Params, key string) (string, error) {
	v, ok := p[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing required %q", pipeline.ErrInvalidParams, key)
	}
	return v, nil
}

func boolParam(p pipeline.Params, key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func floatSliceParam(p pipeline.Params, key string) ([]float64, error) {
	v, ok := p[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing required %q", pipeline.ErrInvalidParams, key)
	}
	switch s := v.(type) {
	case []float64:
		return s, nil
	case []float32:
		out := make([]float64, len(s))
		for i, f := range s {
			out[i] = float64(f)
		}
		return out, nil
	case []any:
		out := make([]float64, len(s))
		for i, e := range s {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: %q elements must be numeric", pipeline.ErrInvalidParams, key)
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q must be a float slice", pipeline.ErrInvalidParams, key)
}

// floatSliceParamAlias looks up primary first, falling back to alias; used
// where spec.md's documented param name and an already-shipped shorthand
// both need to keep working (filter's "bCoeffs"/"b", "aCoeffs"/"a").
func floatSliceParamAlias(p pipeline.Params, primary, alias string) ([]float64, error) {
	if _, ok := p[primary]; ok {
		return floatSliceParam(p, primary)
	}
	return floatSliceParam(p, alias)
}

// frameWindowSamples resolves a stage's window size from either an explicit
// sample count or a duration in milliseconds against the context's sample
// rate, matching the adapters' dual "windowSize|windowDurationMs"
// constructor parameters.
func frameWindowSamples(p pipeline.Params, sampleRate float64) (int, error) {
	if v, ok := p["windowSize"]; ok {
		n, err := intParam(pipeline.Params{"windowSize": v}, "windowSize", 0)
		if err != nil {
			return 0, err
		}
		if n <= 0 {
			return 0, fmt.Errorf("%w: windowSize must be positive", pipeline.ErrInvalidParams)
		}
		return n, nil
	}
	if v, ok := p["windowDurationMs"]; ok {
		ms, err := floatParam(pipeline.Params{"windowDurationMs": v}, "windowDurationMs", 0)
		if err != nil {
			return 0, err
		}
		n := int(ms * sampleRate / 1000.0)
		if n <= 0 {
			n = 1
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: one of windowSize or windowDurationMs is required", pipeline.ErrInvalidParams)
}
