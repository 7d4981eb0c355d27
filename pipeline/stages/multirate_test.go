package stages

import (
	"math"
	"testing"

	"github.com/A-KGeorge/dspx/pipeline"
)

func TestInterpolateProducesExpectedSampleCount(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("interpolate", pipeline.Params{"factor": 3, "order": 15}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	in := make([]float32, 20)
	ts := make([]float32, 20)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) * 0.3))
		ts[i] = float32(i)
	}
	res, err := p.Process(in, ts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Samples) != 60 {
		t.Errorf("got %d output samples, want 60 (20*3)", len(res.Samples))
	}
	if len(res.Timestamps) != len(res.Samples) {
		t.Errorf("timestamps length %d != samples length %d", len(res.Timestamps), len(res.Samples))
	}
}

func TestDecimateReducesSampleCount(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("decimate", pipeline.Params{"factor": 4, "order": 15}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	in := make([]float32, 40)
	ts := make([]float32, 40)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) * 0.1))
		ts[i] = float32(i)
	}
	res, err := p.Process(in, ts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Samples) != 10 {
		t.Errorf("got %d output samples, want 10 (40/4)", len(res.Samples))
	}
}

func TestResampleReducesToSimplestRatio(t *testing.T) {
	p := newTestPipeline(t, 1)
	// 4/6 should reduce to 2/3
	if err := p.AddStage("resample", pipeline.Params{"upFactor": 4, "downFactor": 6, "order": 15}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	in := make([]float32, 30)
	ts := make([]float32, 30)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) * 0.2))
		ts[i] = float32(i)
	}
	res, err := p.Process(in, ts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// 30 * 2 / 3 = 20
	if len(res.Samples) != 20 {
		t.Errorf("got %d output samples, want 20 (30*2/3)", len(res.Samples))
	}
}

func TestMultirateStageRejectsEvenOrder(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("decimate", pipeline.Params{"factor": 2, "order": 10}); err == nil {
		t.Fatal("expected error for even filter order")
	}
}

func TestDecimateSnapshotRestore(t *testing.T) {
	params := pipeline.Params{"factor": 3, "order": 9}
	p := newTestPipeline(t, 1)
	if err := p.AddStage("decimate", params); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	if _, err := p.Process([]float32{1, 2, 3, 4}, []float32{0, 1, 2, 3}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	snap := p.Save()

	p2 := newTestPipeline(t, 1)
	if err := p2.AddStage("decimate", params); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	if err := p2.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	res1, err := p.Process([]float32{5, 6, 7}, []float32{4, 5, 6})
	if err != nil {
		t.Fatalf("Process p: %v", err)
	}
	res2, err := p2.Process([]float32{5, 6, 7}, []float32{4, 5, 6})
	if err != nil {
		t.Fatalf("Process p2: %v", err)
	}
	if len(res1.Samples) != len(res2.Samples) {
		t.Fatalf("diverging output length: %d vs %d", len(res1.Samples), len(res2.Samples))
	}
	for i := range res1.Samples {
		if math.Abs(float64(res1.Samples[i]-res2.Samples[i])) > 1e-6 {
			t.Errorf("sample %d diverged: %v vs %v", i, res1.Samples[i], res2.Samples[i])
		}
	}
}
