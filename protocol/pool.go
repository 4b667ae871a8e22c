package protocol

import (
	"context"
	"math/rand"
	"time"

	"github.com/relcore/relcore/internal/config"
)

// WorkerPool is the bounded pool both concurrency models dispatch connection
// turns onto: parallel worker goroutines drawn from a bounded pool (typical
// size 4).
type WorkerPool struct {
	jobs chan func()
	done chan struct{}
}

// NewWorkerPool starts size worker goroutines.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 4
	}
	p := &WorkerPool{jobs: make(chan func(), size*4), done: make(chan struct{})}
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// NewWorkerPoolFromConfig sizes the pool from cfg.MaximumWorkerThreads
// (config.Defaults() if cfg is nil), the way NewFarmer/NewThreadPerConnection
// are expected to be wired at server startup instead of a literal size.
func NewWorkerPoolFromConfig(cfg *config.Config) *WorkerPool {
	if cfg == nil {
		cfg = config.Defaults()
	}
	return NewWorkerPool(cfg.MaximumWorkerThreads)
}

func (p *WorkerPool) worker() {
	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.done:
			return
		}
	}
}

// Submit enqueues a turn of work. It blocks if every worker and the queue
// are busy, applying natural backpressure rather than spawning unbounded
// goroutines.
func (p *WorkerPool) Submit(job func()) { p.jobs <- job }

// Stop shuts the pool down; in-flight jobs finish. A worker picks between a
// queued job and the stop signal at random, so jobs still queued may or may
// not run before the workers exit.
func (p *WorkerPool) Stop() { close(p.done) }

// runTurn processes one connection's command turn on the calling worker
// goroutine, guarded by the connection's processing_command flag. If the connection should be torn down — a CLOSE command or an I/O
// error — its session and transport are closed and it is dropped from the
// handler's registry.
func runTurn(ctx context.Context, c *Connection) {
	if !c.tryAcquire() {
		return
	}
	defer c.release()
	if c.ProcessRequests(ctx) {
		c.closeSession(ctx)
	}
}

// Farmer implements single-threaded concurrency model: "one
// polling thread scans all connections every ≈ 3 ms, dispatches work to a
// worker pool, and pings a random connection every 45 s."
type Farmer struct {
	handler *Handler
	pool    *WorkerPool
	stop    chan struct{}
}

// NewFarmer starts the poll and ping loops against handler's connection
// registry, submitting ready turns onto pool.
func NewFarmer(handler *Handler, pool *WorkerPool) *Farmer {
	f := &Farmer{handler: handler, pool: pool, stop: make(chan struct{})}
	go f.pollLoop()
	go f.pingLoop()
	return f
}

// Stop ends both background loops. Connections and the worker pool outlive
// it; callers close those separately.
func (f *Farmer) Stop() { close(f.stop) }

func (f *Farmer) pollLoop() {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			ctx := context.Background()
			for _, c := range f.handler.Connections() {
				if c.hasPendingData() {
					conn := c
					f.pool.Submit(func() { runTurn(ctx, conn) })
				}
			}
		}
	}
}

func (f *Farmer) pingLoop() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			conns := f.handler.Connections()
			if len(conns) == 0 {
				continue
			}
			c := conns[rand.Intn(len(conns))]
			if !c.tryAcquire() {
				continue
			}
			err := c.Ping()
			c.release()
			if err != nil {
				c.closeSession(context.Background())
			}
		}
	}
}

// hasPendingData peeks for at least one readable byte without blocking,
// using a near-zero read deadline.
func (c *Connection) hasPendingData() bool {
	c.mu.Lock()
	busy := c.processing || c.closed
	c.mu.Unlock()
	if busy {
		return false
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(time.Microsecond)); err != nil {
		return false
	}
	_, err := c.r.Peek(1)
	_ = c.conn.SetReadDeadline(time.Time{})
	return err == nil
}

// ThreadPerConnection implements second concurrency model:
// "one blocking reader thread per connection, each dispatching to the
// shared worker pool." Serve blocks the calling goroutine for the
// connection's lifetime; callers spawn one goroutine per accepted
// connection.
type ThreadPerConnection struct {
	pool *WorkerPool
}

// NewThreadPerConnection wires the reader-thread model around pool.
func NewThreadPerConnection(pool *WorkerPool) *ThreadPerConnection {
	return &ThreadPerConnection{pool: pool}
}

// Serve runs c's handshake/login synchronously on the calling (reader)
// goroutine, then loops: it submits one ProcessRequests turn (which reads and
// handles the frames on the worker) to the shared pool and blocks until that
// turn finishes before submitting the next, closing the session when a turn
// reports the connection should close.
func (t *ThreadPerConnection) Serve(ctx context.Context, c *Connection) {
	if err := c.RunHandshakeAndLogin(ctx); err != nil {
		c.closeSession(ctx)
		return
	}
	for {
		done := make(chan struct{})
		var closeConn bool
		t.pool.Submit(func() {
			closeConn = c.ProcessRequests(ctx)
			close(done)
		})
		<-done
		if closeConn {
			c.closeSession(ctx)
			return
		}
	}
}
