package voice

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/voice/sfu"
)

// PoolSize returns the worker count for this host: half the CPUs, rounded
// up.
func PoolSize() int {
	return (runtime.NumCPU() + 1) / 2
}

// WorkerPool owns the process-wide set of media workers and hands them out
// round-robin. A worker that dies is replaced in place; routers created on
// it are lost and rebuilt lazily on the next join.
type WorkerPool struct {
	engine   sfu.Engine
	settings sfu.Settings
	log      zerolog.Logger

	mu      sync.Mutex
	workers []sfu.Worker
	next    int
	closed  bool
}

// NewWorkerPool spawns size workers and starts watching each for death.
func NewWorkerPool(engine sfu.Engine, settings sfu.Settings, size int, logger zerolog.Logger) (*WorkerPool, error) {
	if size < 1 {
		size = 1
	}
	p := &WorkerPool{
		engine:   engine,
		settings: settings,
		log:      logger,
		workers:  make([]sfu.Worker, size),
	}
	for i := range p.workers {
		w, err := engine.NewWorker(settings)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("spawn media worker %d: %w", i, err)
		}
		p.workers[i] = w
		go p.watch(i, w)
	}
	return p, nil
}

// Next returns a worker round-robin.
func (p *WorkerPool) Next() (sfu.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, sfu.ErrWorkerClosed
	}
	w := p.workers[p.next%len(p.workers)]
	p.next++
	return w, nil
}

// watch respawns the worker in slot i when it dies.
func (p *WorkerPool) watch(i int, w sfu.Worker) {
	<-w.Died()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.workers[i] != w {
		return
	}
	p.log.Warn().Int("slot", i).Msg("media worker died, respawning")

	replacement, err := p.engine.NewWorker(p.settings)
	if err != nil {
		p.log.Error().Err(err).Int("slot", i).Msg("media worker respawn failed")
		return
	}
	p.workers[i] = replacement
	go p.watch(i, replacement)
}

// Close shuts every worker down. The pool cannot be reused.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, w := range p.workers {
		if w != nil {
			w.Close()
		}
	}
}
