package stages

import (
	"math"
	"testing"

	"github.com/A-KGeorge/dspx/pipeline"
)

func TestMovingAverageStage(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("movingAverage", pipeline.Params{"windowSize": 3}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	res, err := p.Process([]float32{1, 2, 3, 4}, []float32{0, 1, 2, 3})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// running means over window 3: [1], [1,2]->1.5, [1,2,3]->2, [2,3,4]->3
	want := []float32{1, 1.5, 2, 3}
	for i, v := range want {
		if math.Abs(float64(res.Samples[i]-v)) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, res.Samples[i], v)
		}
	}
}

func TestRMSStage(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("rms", pipeline.Params{"windowSize": 2}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	res, err := p.Process([]float32{3, 4}, []float32{0, 1})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// window [3,4]: rms = sqrt((9+16)/2) = sqrt(12.5)
	want := float32(math.Sqrt(12.5))
	if math.Abs(float64(res.Samples[1]-want)) > 1e-5 {
		t.Errorf("rms = %v, want %v", res.Samples[1], want)
	}
}

func TestZScoreNormalizeGuardsZeroVariance(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("zScoreNormalize", pipeline.Params{"windowSize": 3}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	res, err := p.Process([]float32{5, 5, 5}, []float32{0, 1, 2})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range res.Samples {
		if v != 0 {
			t.Errorf("sample %d = %v, want 0 (zero-variance guard)", i, v)
		}
	}
}

func TestWindowStageSnapshotRestore(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("movingAverage", pipeline.Params{"windowSize": 4}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	if _, err := p.Process([]float32{1, 2, 3}, []float32{0, 1, 2}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	snap := p.Save()

	p2 := newTestPipeline(t, 1)
	if err := p2.AddStage("movingAverage", pipeline.Params{"windowSize": 4}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	if err := p2.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	res1, err := p.Process([]float32{4}, []float32{3})
	if err != nil {
		t.Fatalf("Process p: %v", err)
	}
	res2, err := p2.Process([]float32{4}, []float32{3})
	if err != nil {
		t.Fatalf("Process p2: %v", err)
	}
	if res1.Samples[0] != res2.Samples[0] {
		t.Errorf("restored stage diverged: %v vs %v", res1.Samples[0], res2.Samples[0])
	}
}
