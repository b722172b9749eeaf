package exec

import (
	"context"
	"runtime"
	"sync"

	"github.com/grafeo-db/grafeo/gerrors"
)

// Morsel is one unit of work a worker pulls and runs to completion: pull
// chunks from Source and push each to Sink until Source is exhausted (spec §4.6: "work is divided into
// morsels — small chunks of input processed independently by a worker
// thread"). Grouping execution at chunk granularity, rather than row or
// whole-pipeline granularity, is what lets a small number of workers keep
// every core busy without fine-grained locking per row.
type Morsel struct {
	Source     Operator
	Sink       chan<- *Chunk
	Generation uint64
}

// WorkerPool runs a fixed number of goroutines pulling Morsels off a shared
// queue until the queue is closed or ctx is canceled — the teacher's
// goroutine-plus-context-cancellation shutdown idiom
// (`pkg/nornicdb/embed_queue.go`'s `EmbedWorker`: a `context.CancelFunc` plus
// `sync.WaitGroup` wraps one worker goroutine; morsel.go generalizes "one
// background worker" to "N morsel workers pulling from a shared channel"
// since the executor's parallelism target is core count, not one).
type WorkerPool struct {
	size    int
	queue   chan Morsel
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	errOnce sync.Once
	err     error
	gen     generationGuard
}

// NewGeneration starts a new execution generation and returns its id. A
// Morsel submitted under an older generation silently drops its output
// instead of delivering it to a sink a canceled query no longer reads from.
func (p *WorkerPool) NewGeneration() uint64 { return p.gen.advance() }

// NewWorkerPool starts a pool of size workers (size <= 0 defaults to
// runtime.GOMAXPROCS(0)), each pulling Morsels off an internally owned
// queue until Close is called or ctx is canceled.
func NewWorkerPool(ctx context.Context, size int) *WorkerPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &WorkerPool{
		size:   size,
		queue:  make(chan Morsel, size*4),
		cancel: cancel,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.runWorker(ctx)
	}
	return p
}

func (p *WorkerPool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(m)
		}
	}
}

func (p *WorkerPool) run(m Morsel) {
	for {
		chunk, err := m.Source.Next()
		if err != nil {
			p.errOnce.Do(func() { p.err = err })
			return
		}
		if chunk == nil {
			return
		}
		if m.Generation != 0 && p.gen.current() != m.Generation {
			// A later generation has started (the query that submitted this
			// morsel was canceled or superseded); drop the stale chunk rather
			// than deliver it to a sink nothing reads from anymore.
			PutChunk(chunk)
			return
		}
		m.Sink <- chunk
	}
}

// Submit enqueues a Morsel for some worker to pick up. Blocks if every
// worker is busy and the internal queue is full, providing natural
// backpressure against a producer that outruns consumers.
func (p *WorkerPool) Submit(m Morsel) {
	p.queue <- m
}

// Close stops accepting new Morsels, waits for in-flight ones to finish,
// and returns the first error (if any) observed by a worker.
func (p *WorkerPool) Close() error {
	close(p.queue)
	p.wg.Wait()
	p.cancel()
	return p.err
}

// Barrier collects every chunk produced by a set of morsel sources running
// across a WorkerPool's workers before letting a downstream operator (an
// Aggregate's final merge, a Sort) proceed — the one point morsel-driven
// execution needs synchronous fan-in (spec §4.6: "operators requiring a
// full view of their input, such as Sort or the final merge of an
// Aggregate, run after a barrier collects every upstream morsel").
type Barrier struct {
	pool      *WorkerPool
	sinks     chan *Chunk
	pending   int
	cols      []string
	chunksOut []*Chunk
}

// NewBarrier fans sources out across pool, each source running as its own
// Morsel; Wait collects the chunks they produce.
func NewBarrier(pool *WorkerPool, sources []Operator) *Barrier {
	sinks := make(chan *Chunk, len(sources)*2)
	b := &Barrier{pool: pool, sinks: sinks, pending: len(sources)}
	if len(sources) > 0 {
		b.cols = sources[0].Columns()
	}
	for _, src := range sources {
		pool.Submit(Morsel{Source: src, Sink: sinks})
	}
	return b
}

// Wait collects chunks from the fanned-out sources until generationDone is
// closed, then drains whatever is already buffered and returns. It does not
// count finished sources: the caller closes generationDone only once every
// morsel has run to exhaustion (for example after WorkerPool.Close), and a
// chunk sent after Wait returns is not collected.
func (b *Barrier) Wait(generationDone <-chan struct{}) ([]*Chunk, error) {
	for {
		select {
		case c := <-b.sinks:
			b.chunksOut = append(b.chunksOut, c)
		case <-generationDone:
			// Drain whatever is already buffered without blocking further.
			for {
				select {
				case c := <-b.sinks:
					b.chunksOut = append(b.chunksOut, c)
				default:
					return b.chunksOut, nil
				}
			}
		}
	}
}

// generationGuard tracks in-flight morsels for one query execution so a
// cancellation or error in one pipeline doesn't leave other pipelines'
// workers spinning forever on a closed chunk channel (spec §4.6: "a
// generation counter distinguishes in-flight morsels from a prior,
// canceled execution so a slow worker's stale result is dropped instead of
// corrupting the next query's output").
type generationGuard struct {
	mu  sync.Mutex
	gen uint64
}

func (g *generationGuard) advance() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	return g.gen
}

func (g *generationGuard) current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// RunPipeline drives a built Operator tree to completion, returning every
// output chunk concatenated in arrival order. A single goroutine pulls
// root.Next; pool is not used, so the tree does not run across workers.
// This is the entry point session.Session calls per query pipeline once
// optimizer.Lower and Build have produced a root Operator.
func RunPipeline(ctx context.Context, pool *WorkerPool, root Operator) ([]*Chunk, error) {
	if root == nil {
		return nil, nil
	}
	sink := make(chan *Chunk, 8)
	errCh := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			chunk, err := root.Next()
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			if chunk == nil {
				return
			}
			select {
			case sink <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	var out []*Chunk
	for {
		select {
		case c := <-sink:
			out = append(out, c)
		case <-done:
			for {
				select {
				case c := <-sink:
					out = append(out, c)
					continue
				default:
				}
				select {
				case err := <-errCh:
					return out, err
				case <-ctx.Done():
					return out, gerrors.New(gerrors.KindResourceExhausted, "pipeline canceled")
				default:
					return out, nil
				}
			}
		case <-ctx.Done():
			return out, gerrors.New(gerrors.KindResourceExhausted, "pipeline canceled")
		}
	}
}
