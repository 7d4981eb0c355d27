package pipeline

import (
	"fmt"

	"github.com/A-KGeorge/dspx/toon"
)

// Snapshot is a serialized capture of every stage's state, in pipeline
// order, keyed by type name so Restore can verify topology before writing
// into a differently-configured pipeline.
type Snapshot struct {
	StageTypes []string
	States     [][]byte
}

// Save captures the current state of every stage.
func (p *Pipeline) Save() Snapshot {
	s := Snapshot{
		StageTypes: make([]string, len(p.stages)),
		States:     make([][]byte, len(p.stages)),
	}
	for i, e := range p.stages {
		s.StageTypes[i] = e.typeName
		s.States[i] = e.stage.SerializeState()
	}
	return s
}

// Restore loads a Snapshot back into the pipeline. The snapshot's stage
// topology (type names, in order) must match the pipeline's current
// topology exactly; a mismatch returns ErrStateShapeMismatch without
// modifying any stage.
func (p *Pipeline) Restore(s Snapshot) error {
	if len(s.StageTypes) != len(p.stages) {
		return fmt.Errorf("%w: snapshot has %d stages, pipeline has %d",
			ErrStateShapeMismatch, len(s.StageTypes), len(p.stages))
	}
	for i, e := range p.stages {
		if s.StageTypes[i] != e.typeName {
			return fmt.Errorf("%w: stage %d is %q, snapshot expects %q",
				ErrStateShapeMismatch, i, e.typeName, s.StageTypes[i])
		}
	}
	for i, e := range p.stages {
		if err := e.stage.DeserializeState(s.States[i]); err != nil {
			return fmt.Errorf("pipeline: restoring stage %d (%q): %w", i, e.typeName, err)
		}
	}
	return nil
}

// EncodeSnapshot serializes a Snapshot to a single TOON byte stream,
// suitable for persistence (e.g. to Redis, a file, or any byte-oriented
// store).
func EncodeSnapshot(s Snapshot) []byte {
	ser := toon.NewSerializer(1024)
	ser.StartArray()
	for i, name := range s.StageTypes {
		ser.StartObject()
		ser.WriteString(name)
		ser.WriteString(string(s.States[i])) // raw bytes, not necessarily UTF-8
		ser.EndObject()
	}
	ser.EndArray()
	return ser.Bytes()
}

// DecodeSnapshot parses a byte stream produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	d := toon.NewDeserializer(data)
	if d.ReadToken() != toon.TokenArrayStart {
		return Snapshot{}, ErrStateCorrupt
	}

	var s Snapshot
	for d.PeekToken() == toon.TokenObjectStart {
		d.ReadToken()
		name := d.ReadString()
		state := []byte(d.ReadString())
		if d.ReadToken() != toon.TokenObjectEnd {
			return Snapshot{}, ErrStateCorrupt
		}
		s.StageTypes = append(s.StageTypes, name)
		s.States = append(s.States, state)
	}

	if d.ReadToken() != toon.TokenArrayEnd {
		return Snapshot{}, ErrStateCorrupt
	}
	if d.HasError() {
		return Snapshot{}, ErrStateCorrupt
	}
	return s, nil
}
