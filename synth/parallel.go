package synth

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// ForEachVoice calls fn once for every voice in [0, batch). Voices are handed
// out in chunks of ReproducibleBatchUnit across up to GOMAXPROCS goroutines.
// fn must only touch state belonging to its own voice.
func ForEachVoice(batch int, fn func(v int)) {
	if batch <= 0 {
		return
	}
	chunks := (batch + ReproducibleBatchUnit - 1) / ReproducibleBatchUnit
	workers := runtime.GOMAXPROCS(0)
	if workers > chunks {
		workers = chunks
	}
	if workers <= 1 {
		for v := 0; v < batch; v++ {
			fn(v)
		}
		return
	}

	var next int64 = -1
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				c := int(atomic.AddInt64(&next, 1))
				if c >= chunks {
					return
				}
				end := (c + 1) * ReproducibleBatchUnit
				if end > batch {
					end = batch
				}
				for v := c * ReproducibleBatchUnit; v < end; v++ {
					fn(v)
				}
			}
		}()
	}
	wg.Wait()
}
