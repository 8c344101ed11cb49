package board

import (
	"context"
	"sync"
	"time"
)

// maxInFlight bounds the cycles a slow upstream can pile up. Ticks that find
// this many cycles running are skipped.
const maxInFlight = 2

// poller fetches on a fixed interval. Cycles may overlap up to maxInFlight; a
// result is applied only when it is newer than the last applied one. Applying
// cycle N cancels the cycles started before it, and their late results are
// counted as stale and dropped.
type poller[T any] struct {
	view     string
	interval time.Duration
	fetch    func(ctx context.Context) (T, error)
	apply    func(v T, err error) int // returns the item count
	metrics  Metrics

	mu       sync.Mutex
	gen      uint64
	applied  uint64
	inflight map[uint64]context.CancelFunc // generation -> cancel
	wg       sync.WaitGroup
}

// run fires a cycle immediately and then on every tick until ctx is done.
// It returns once in-flight cycles have finished.
func (p *poller[T]) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.wg.Wait()

	p.start(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.start(ctx)
		}
	}
}

// start launches a cycle. It reports false when the tick was skipped because
// maxInFlight cycles are still running.
func (p *poller[T]) start(parent context.Context) bool {
	p.mu.Lock()
	if len(p.inflight) >= maxInFlight {
		p.mu.Unlock()
		return false
	}
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(parent)
	if p.inflight == nil {
		p.inflight = make(map[uint64]context.CancelFunc)
	}
	p.inflight[gen] = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.cycle(ctx, parent, gen)
	}()
	return true
}

func (p *poller[T]) cycle(ctx, parent context.Context, gen uint64) {
	started := time.Now()
	v, err := p.fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.inflight[gen]; ok {
		cancel()
		delete(p.inflight, gen)
	}
	if parent.Err() != nil {
		return
	}
	if gen <= p.applied {
		if p.metrics != nil {
			p.metrics.StaleInc(p.view)
		}
		return
	}
	p.applied = gen
	for g, cancel := range p.inflight {
		if g < gen {
			cancel()
			delete(p.inflight, g)
		}
	}
	items := p.apply(v, err)
	if p.metrics != nil {
		p.metrics.PollObserve(p.view, items, time.Since(started))
	}
}
