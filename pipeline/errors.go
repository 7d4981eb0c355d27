package pipeline

import "errors"

// Sentinel error kinds (spec §7), matched with errors.Is at call sites.
var (
	// ErrUnknownStage is returned when AddStage names a stage not present
	// in the registry.
	ErrUnknownStage = errors.New("pipeline: unknown stage type")

	// ErrInvalidParams is returned when a stage factory's parameter bag is
	// missing a required key or holds a value of the wrong type.
	ErrInvalidParams = errors.New("pipeline: invalid stage parameters")

	// ErrShapeMismatch is returned when a buffer's length is incompatible
	// with the declared channel count or a stage's expected frame size.
	ErrShapeMismatch = errors.New("pipeline: buffer shape mismatch")

	// ErrStateShapeMismatch is returned by DeserializeState when a
	// snapshot's topology doesn't match the stage it's being restored into.
	ErrStateShapeMismatch = errors.New("pipeline: state shape mismatch")

	// ErrStateCorrupt is returned when a TOON-encoded snapshot fails to
	// parse (malformed tags, truncated stream).
	ErrStateCorrupt = errors.New("pipeline: corrupt state")

	// ErrNumericInstability is returned by stages that detect NaN/Inf
	// propagation or divergence in their internal state (e.g. RLS
	// covariance blow-up).
	ErrNumericInstability = errors.New("pipeline: numeric instability detected")

	// ErrResource is returned for allocation or capacity failures.
	ErrResource = errors.New("pipeline: resource error")
)
