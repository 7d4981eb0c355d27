package stages

import (
	"math"
	"testing"

	"github.com/A-KGeorge/dspx/pipeline"
)

func TestWaveformLengthStage(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("waveformLength", pipeline.Params{"windowSize": 3}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	res, err := p.Process([]float32{1, 3, 2}, []float32{0, 1, 2})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// window after 3 samples: [1,3,2] -> |3-1| + |2-3| = 2 + 1 = 3
	got := res.Samples[2]
	if math.Abs(float64(got-3)) > 1e-6 {
		t.Errorf("waveformLength = %v, want 3", got)
	}
}

func TestWillisonAmplitudeStage(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("willisonAmplitude", pipeline.Params{"windowSize": 4, "threshold": 0.5}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	res, err := p.Process([]float32{0, 1, 0, 1}, []float32{0, 1, 2, 3})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// every successive diff has magnitude 1 > 0.5, so each new sample
	// after the first increases the count within its window.
	if res.Samples[3] != 3 {
		t.Errorf("willisonAmplitude = %v, want 3", res.Samples[3])
	}
}

func TestCounterStageRejectsMismatchedWindowOnRestore(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("waveformLength", pipeline.Params{"windowSize": 3}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	snap := p.Save()

	p2 := newTestPipeline(t, 1)
	if err := p2.AddStage("waveformLength", pipeline.Params{"windowSize": 5}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	if err := p2.Restore(snap); err == nil {
		t.Fatal("expected Restore to fail on window size mismatch")
	}
}
