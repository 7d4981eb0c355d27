package circular

// State is the serializable snapshot of a Buffer, used by stages that embed
// a Buffer as part of their own state for pipeline snapshot/restore (§6).
type State struct {
	Samples    []float64
	Timestamps []float64 // nil unless time-aware
	Capacity   int
	WindowMS   float64
}

// Snapshot captures the buffer's current contents oldest-to-newest.
func (b *Buffer) Snapshot() State {
	s := State{
		Samples:  b.ToSlice(),
		Capacity: len(b.data),
		WindowMS: b.windowMS,
	}
	if b.IsTimeAware() {
		s.Timestamps = make([]float64, b.count)
		for i := 0; i < b.count; i++ {
			s.Timestamps[i] = b.timestamps[(b.tail+i)&b.mask]
		}
	}
	return s
}

// Restore rebuilds the buffer from a previously captured State. The
// capacity of the receiver is unchanged; only up to Capacity() most-recent
// samples from the snapshot are kept, matching FromSlice's truncation rule.
func (b *Buffer) Restore(s State) {
	b.Clear()
	if s.Timestamps != nil && b.IsTimeAware() {
		start := 0
		if len(s.Samples) > len(b.data) {
			start = len(s.Samples) - len(b.data)
		}
		for i := start; i < len(s.Samples); i++ {
			b.PushWithTimestamp(s.Samples[i], s.Timestamps[i])
		}
		return
	}
	b.FromSlice(s.Samples)
}
