package batch

import (
	"runtime"
	"sync"

	"github.com/A-KGeorge/dspx/fft"
)

// Job describes one FFT to run as part of a batch. Output must already be
// sized for the requested transform (Size for complex, HalfSize()+.. for
// real forward; see fft.Engine).
type Job struct {
	Input      []float32
	Output     []complex128
	IsReal     bool
	Forward    bool
	InputComplex []complex128 // used instead of Input when !IsReal
}

// Processor runs batches of FFT jobs across a worker pool of goroutines,
// each with its own per-size fft.Engine cache to avoid re-deriving
// twiddle factors and to avoid engine construction racing across workers.
// An optional SpectrumCache short-circuits repeated forward real FFTs.
type Processor struct {
	numWorkers int
	cache      *SpectrumCache
}

// NewProcessor returns a Processor with numWorkers goroutines (0 picks
// runtime.GOMAXPROCS(0)) and an LRU cache of cacheSize entries when
// enableCache is true.
func NewProcessor(numWorkers int, enableCache bool, cacheSize int) *Processor {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
		if numWorkers < 1 {
			numWorkers = 1
		}
	}
	p := &Processor{numWorkers: numWorkers}
	if enableCache {
		p.cache = NewSpectrumCache(cacheSize, 65536)
	}
	return p
}

// NumWorkers returns the configured worker count.
func (p *Processor) NumWorkers() int { return p.numWorkers }

// CacheStats returns the underlying cache's statistics, or zeros if
// caching is disabled.
func (p *Processor) CacheStats() (size int, hits, misses int64, hitRate float64) {
	if p.cache == nil {
		return 0, 0, 0, 0
	}
	return p.cache.Stats()
}

// ClearCache empties the result cache, if enabled.
func (p *Processor) ClearCache() {
	if p.cache != nil {
		p.cache.Clear()
	}
}

// ProcessBatch runs every job to completion, distributing work across the
// worker pool, and blocks until all jobs finish.
func (p *Processor) ProcessBatch(jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}

	jobCh := make(chan *Job, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	workers := p.numWorkers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engines := make(map[int]*fft.Engine)
			for job := range jobCh {
				p.runJob(job, engines)
			}
		}()
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func (p *Processor) runJob(job *Job, engines map[int]*fft.Engine) {
	if job.IsReal && job.Forward && p.cache != nil {
		if result, ok := p.cache.Lookup(job.Input, true); ok {
			copy(job.Output, result)
			return
		}
	}

	size := len(job.Input)
	if !job.IsReal {
		size = len(job.InputComplex)
	}
	engine, ok := engines[size]
	if !ok {
		var err error
		engine, err = fft.New(size)
		if err != nil {
			return
		}
		engines[size] = engine
	}

	switch {
	case job.IsReal && job.Forward:
		engine.RFFT(job.Input, job.Output)
		if p.cache != nil {
			p.cache.Store(job.Input, true, job.Output)
		}
	case job.IsReal && !job.Forward:
		out := make([]float32, size)
		engine.IRFFT(job.InputComplex, out)
		for i, v := range out {
			job.Output[i] = complex(float64(v), 0)
		}
	case job.Forward:
		engine.Forward(job.InputComplex, job.Output)
	default:
		engine.Inverse(job.InputComplex, job.Output)
	}
}
