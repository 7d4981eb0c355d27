package stages

import (
	"testing"

	"github.com/A-KGeorge/dspx/pipeline"
)

func newTestPipeline(t *testing.T, channels int) *pipeline.Pipeline {
	t.Helper()
	reg := pipeline.NewDefaultRegistry()
	return pipeline.New(reg, pipeline.Context{SampleRate: 1000}, channels)
}

func TestRectifyStage(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("rectify", nil); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	buf := []float32{-1, 2, -3}
	res, err := p.Process(buf, []float32{0, 1, 2})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []float32{1, 2, 3}
	for i, v := range want {
		if res.Samples[i] != v {
			t.Errorf("sample %d = %v, want %v", i, res.Samples[i], v)
		}
	}
}

func TestSquareStage(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("square", nil); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	res, err := p.Process([]float32{-2, 3}, []float32{0, 1})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Samples[0] != 4 || res.Samples[1] != 9 {
		t.Errorf("got %v, want [4 9]", res.Samples)
	}
}

func TestDifferentiatorStage(t *testing.T) {
	p := newTestPipeline(t, 1)
	if err := p.AddStage("differentiator", nil); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	res, err := p.Process([]float32{1, 3, 6}, []float32{0, 1, 2})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []float32{1, 2, 3}
	for i, v := range want {
		if res.Samples[i] != v {
			t.Errorf("sample %d = %v, want %v", i, res.Samples[i], v)
		}
	}
}

func TestChannelSelectStage(t *testing.T) {
	p := newTestPipeline(t, 3)
	if err := p.AddStage("channelSelect", pipeline.Params{"channels": []int{0, 2}}); err != nil {
		t.Fatalf("AddStage: %v", err)
	}
	// frame0: 1,2,3 ; frame1: 4,5,6
	buf := []float32{1, 2, 3, 4, 5, 6}
	res, err := p.Process(buf, []float32{0, 1})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.NumChannels != 2 {
		t.Fatalf("NumChannels = %d, want 2", res.NumChannels)
	}
	want := []float32{1, 3, 4, 6}
	for i, v := range want {
		if res.Samples[i] != v {
			t.Errorf("sample %d = %v, want %v", i, res.Samples[i], v)
		}
	}
}
