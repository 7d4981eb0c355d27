package stages

import (
	"math"
	"testing"

	"github.com/A-KGeorge/dspx/pipeline"
)

func TestWaveletTransformRejectsUnknownName(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("waveletTransform", pipeline.Params{"wavelet": "coif1"}); err == nil {
		t.Fatal("expected error for unknown wavelet name")
	}
}

func TestWaveletTransformRequiresWaveletParam(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("waveletTransform", pipeline.Params{}); err == nil {
		t.Fatal("expected error for missing wavelet param")
	}
}

func TestHaarWaveletDoublesChannelsHalvesFrames(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("waveletTransform", pipeline.Params{"wavelet": "haar"}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	in := []float32{1, 1, 1, 1}
	ts := []float32{0, 1, 2, 3}
	res, err := p.Process(in, ts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// 4 frames of 1 channel, decimated by 2 -> 2 output frames, 2 output
	// channels (approximation+detail) -> 4 samples total.
	if len(res.Samples) != 4 {
		t.Fatalf("got %d output samples, want 4", len(res.Samples))
	}
}

func TestHaarWaveletApproximationOnConstantSignal(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("waveletTransform", pipeline.Params{"wavelet": "haar"}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	// a constant signal has zero detail coefficients and approximation
	// coefficients equal to sqrt(2)*value.
	in := []float32{2, 2, 2, 2}
	ts := []float32{0, 1, 2, 3}
	res, err := p.Process(in, ts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := float32(2 * math.Sqrt2)
	for frame := 0; frame < 2; frame++ {
		approx := res.Samples[frame*2]
		detail := res.Samples[frame*2+1]
		if math.Abs(float64(approx-want)) > 1e-4 {
			t.Errorf("frame %d approximation = %v, want %v", frame, approx, want)
		}
		if math.Abs(float64(detail)) > 1e-4 {
			t.Errorf("frame %d detail = %v, want ~0", frame, detail)
		}
	}
}

func TestDb2WaveletAcceptedWithoutError(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("waveletTransform", pipeline.Params{"wavelet": "db2"}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	in := make([]float32, 8)
	ts := make([]float32, 8)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) * 0.4))
	}
	if _, err := p.Process(in, ts); err != nil {
		t.Fatalf("Process: %v", err)
	}
}

func TestDb4WaveletSnapshotRestore(t *testing.T) {
	params := pipeline.Params{"wavelet": "db4"}
	p := newTestPipeline(t, 1)
	if err := p.AddStage("waveletTransform", params); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	in := make([]float32, 9)
	ts := make([]float32, 9)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) * 0.6))
	}
	if _, err := p.Process(in, ts); err != nil {
		t.Fatalf("Process: %v", err)
	}
	snap := p.Save()

	p2 := newTestPipeline(t, 1)
	if err := p2.AddStage("waveletTransform", params); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	if err := p2.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	tail := []float32{0.1, 0.2, 0.3, 0.4}
	tailTs := []float32{9, 10, 11, 12}
	res1, err := p.Process(tail, tailTs)
	if err != nil {
		t.Fatalf("Process p: %v", err)
	}
	res2, err := p2.Process(tail, tailTs)
	if err != nil {
		t.Fatalf("Process p2: %v", err)
	}
	if len(res1.Samples) != len(res2.Samples) {
		t.Fatalf("length mismatch: %d vs %d", len(res1.Samples), len(res2.Samples))
	}
	for i := range res1.Samples {
		if math.Abs(float64(res1.Samples[i]-res2.Samples[i])) > 1e-6 {
			t.Errorf("sample %d diverged: %v vs %v", i, res1.Samples[i], res2.Samples[i])
		}
	}
}

func TestWaveletTransformDropsOddTrailingSample(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("waveletTransform", pipeline.Params{"wavelet": "haar"}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	in := []float32{1, 1, 1}
	ts := []float32{0, 1, 2}
	res, err := p.Process(in, ts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// 3 samples -> only 1 complete decimate-by-2 pair -> 1 output frame * 2 channels.
	if len(res.Samples) != 2 {
		t.Fatalf("got %d output samples, want 2", len(res.Samples))
	}
}
