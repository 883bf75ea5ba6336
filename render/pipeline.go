package render

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wudi/docview/doc"
	"github.com/wudi/docview/geo"
	"github.com/wudi/docview/observability"
)

// Source is the rendering seam the pipeline needs from a page.
// doc.Page satisfies it.
type Source interface {
	RenderImage(ctx context.Context, opts doc.RenderOptions) (image.Image, error)
}

// Request describes one submission. InitialWidth/Height set the coarse
// first-pass size; the caller typically derives it from the zoom level so
// the first pass lands within a perceptual deadline.
type Request struct {
	DocID         string
	PageIndex     int
	Source        Source
	InitialWidth  int
	InitialHeight int
	FinalWidth    int
	FinalHeight   int
	Zoom          float64
	Rotation      int
	Clip          geo.Rect // zero value means the full page
	QualityLevels int      // 0 uses the pipeline default
	Priority      int
}

// EventKind discriminates pipeline events.
type EventKind int

const (
	EventPass EventKind = iota
	EventCompleted
	EventFailed
	EventCanceled
)

// Event is delivered on a subscriber channel. For a request with N
// quality levels the stream is at most N EventPass entries followed by
// exactly one terminal event (Completed, Failed or Canceled).
type Event struct {
	RequestID uint64
	Kind      EventKind
	Pass      PassResult  // valid for EventPass
	Image     image.Image // final image on EventCompleted
	Err       error       // cause on EventFailed
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Queued         int
	Active         int
	MaxConcurrent  int
	Enabled        bool
	DefaultQuality int
	Rasterizations uint64
}

type request struct {
	id       uint64
	key      Key
	src      Source
	passes   []Pass
	levels   int
	canceled atomic.Bool
	active   bool
	done     bool
	subs     []chan Event
}

// Pipeline schedules progressive renders. Completion events are delivered
// on per-subscriber buffered channels sized so a worker never blocks on a
// slow consumer; per-request ordering is preserved, cross-request ordering
// is not promised.
type Pipeline struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*request
	requests map[uint64]*request
	inflight map[Key]*request
	nextID   uint64
	closed   bool

	sem            *semaphore.Weighted
	maxConcurrent  int
	defaultQuality int
	cache          *Cache
	logger         observability.Logger

	rasterizations atomic.Uint64
	activeCount    atomic.Int64
	wg             sync.WaitGroup
}

// NewPipeline builds a pipeline with the given parallelism (minimum 1)
// and default quality-level count, writing results into cache.
func NewPipeline(maxConcurrent, defaultQuality int, cache *Cache, logger observability.Logger) *Pipeline {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if defaultQuality < 1 {
		defaultQuality = 1
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}
	p := &Pipeline{
		requests:       make(map[uint64]*request),
		inflight:       make(map[Key]*request),
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent:  maxConcurrent,
		defaultQuality: defaultQuality,
		cache:          cache,
		logger:         logger.With(observability.String("component", "render")),
	}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(1)
	go p.dispatch()
	return p
}

// Cache returns the pipeline's page cache.
func (p *Pipeline) Cache() *Cache { return p.cache }

// Submit enqueues a render request and returns its id plus the event
// channel for this subscriber. A submission whose RenderKey matches an
// in-flight request collapses onto it: the existing id is returned and
// the new channel receives the remaining events.
func (p *Pipeline) Submit(req Request) (uint64, <-chan Event, error) {
	if req.Source == nil {
		return 0, nil, doc.Errorf(doc.KindInvalidArgument, "render.submit", "nil source")
	}
	if req.FinalWidth < 1 || req.FinalHeight < 1 {
		return 0, nil, doc.Errorf(doc.KindInvalidArgument, "render.submit", "final size %dx%d", req.FinalWidth, req.FinalHeight)
	}
	if req.Clip != (geo.Rect{}) && req.Clip.IsEmpty() {
		return 0, nil, doc.Errorf(doc.KindInvalidArgument, "render.submit", "zero-area clip rect")
	}
	levels := req.QualityLevels
	if levels < 1 {
		levels = p.defaultQuality
	}
	key := Key{
		DocID:    req.DocID,
		Page:     req.PageIndex,
		Zoom:     req.Zoom,
		Rotation: req.Rotation,
		Clip:     req.Clip,
		Width:    req.FinalWidth,
		Height:   req.FinalHeight,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, nil, doc.Errorf(doc.KindCanceled, "render.submit", "pipeline closed")
	}

	ch := make(chan Event, levels+1)
	if exist, ok := p.inflight[key]; ok && !exist.done {
		exist.subs = append(exist.subs, ch)
		return exist.id, ch, nil
	}

	p.nextID++
	r := &request{
		id:     p.nextID,
		key:    key,
		src:    req.Source,
		passes: Schedule(req.InitialWidth, req.InitialHeight, req.FinalWidth, req.FinalHeight, levels),
		levels: levels,
		subs:   []chan Event{ch},
	}
	p.requests[r.id] = r
	p.inflight[key] = r
	p.queue = append(p.queue, r)
	if p.cache != nil {
		p.cache.MarkPending(key)
	}
	p.cond.Signal()
	return r.id, ch, nil
}

// Cancel requests cancellation of one request. Queued requests finish
// immediately with a canceled event and no pass events; active requests
// observe the flag between passes. Canceling an unknown or finished id is
// a no-op.
func (p *Pipeline) Cancel(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.requests[id]
	if !ok || r.done {
		return
	}
	r.canceled.Store(true)
	if !r.active {
		p.removeFromQueue(r)
		p.finishLocked(r, Event{RequestID: r.id, Kind: EventCanceled})
	}
}

// CancelAll cancels every queued and active request.
func (p *Pipeline) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.requests {
		if r.done {
			continue
		}
		r.canceled.Store(true)
		if !r.active {
			p.removeFromQueue(r)
			p.finishLocked(r, Event{RequestID: r.id, Kind: EventCanceled})
		}
	}
}

// Close cancels everything and stops the dispatcher. The pipeline cannot
// be reused afterwards.
func (p *Pipeline) Close() {
	p.CancelAll()
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Queued:         len(p.queue),
		Active:         int(p.activeCount.Load()),
		MaxConcurrent:  p.maxConcurrent,
		Enabled:        !p.closed,
		DefaultQuality: p.defaultQuality,
		Rasterizations: p.rasterizations.Load(),
	}
}

func (p *Pipeline) dispatch() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		r := p.queue[0]
		p.queue = p.queue[1:]
		if r.canceled.Load() {
			p.finishLocked(r, Event{RequestID: r.id, Kind: EventCanceled})
			p.mu.Unlock()
			continue
		}
		p.mu.Unlock()

		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}

		p.mu.Lock()
		if r.canceled.Load() || p.closed {
			p.sem.Release(1)
			if !r.done {
				p.finishLocked(r, Event{RequestID: r.id, Kind: EventCanceled})
			}
			p.mu.Unlock()
			continue
		}
		r.active = true
		p.mu.Unlock()

		p.activeCount.Add(1)
		p.wg.Add(1)
		go p.run(r)
	}
}

func (p *Pipeline) run(r *request) {
	defer p.wg.Done()
	defer p.sem.Release(1)
	defer p.activeCount.Add(-1)

	p.rasterizations.Add(1)
	ctx := context.Background()
	var finalImg image.Image

	for _, pass := range r.passes {
		if r.canceled.Load() {
			p.finish(r, Event{RequestID: r.id, Kind: EventCanceled})
			return
		}
		start := time.Now()
		img, err := r.src.RenderImage(ctx, doc.RenderOptions{Width: pass.Width, Height: pass.Height})
		elapsed := time.Since(start)
		if err != nil {
			p.logger.Warn("render pass failed",
				observability.Int("pass", pass.Number),
				observability.Error("err", err))
			p.emit(r, Event{RequestID: r.id, Kind: EventPass, Pass: PassResult{
				Pass: pass.Number, Width: pass.Width, Height: pass.Height,
				ErrText: err.Error(), Duration: elapsed, Final: pass.Final,
			}})
			p.finish(r, Event{RequestID: r.id, Kind: EventFailed, Err: err})
			return
		}
		p.logger.Debug("render pass",
			observability.Int("pass", pass.Number),
			observability.Duration(observability.MetricRenderPassTime, elapsed))
		if p.cache != nil {
			if pass.Final {
				p.cache.Put(r.key, img)
			} else {
				p.cache.Put(r.key.WithPass(pass.Number), img)
			}
		}
		if pass.Final {
			finalImg = img
		}
		p.emit(r, Event{RequestID: r.id, Kind: EventPass, Pass: PassResult{
			Pass: pass.Number, Width: pass.Width, Height: pass.Height,
			Image: img, OK: true, Duration: elapsed, Final: pass.Final,
		}})
	}
	if r.canceled.Load() {
		p.finish(r, Event{RequestID: r.id, Kind: EventCanceled})
		return
	}
	p.finish(r, Event{RequestID: r.id, Kind: EventCompleted, Image: finalImg})
}

// emit delivers an event to every subscriber. Channels are sized for the
// full event stream, so a send only drops when a subscriber attached its
// channel to something it never drains.
func (p *Pipeline) emit(r *request, ev Event) {
	p.mu.Lock()
	subs := r.subs
	p.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			p.logger.Warn("dropping render event", observability.Int64("request", int64(r.id)))
		}
	}
}

func (p *Pipeline) finish(r *request, terminal Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked(r, terminal)
}

func (p *Pipeline) finishLocked(r *request, terminal Event) {
	if r.done {
		return
	}
	r.done = true
	for _, ch := range r.subs {
		select {
		case ch <- terminal:
		default:
		}
		close(ch)
	}
	delete(p.requests, r.id)
	if cur, ok := p.inflight[r.key]; ok && cur == r {
		delete(p.inflight, r.key)
	}
	if p.cache != nil && terminal.Kind != EventCompleted {
		p.cache.ClearPending(r.key)
	}
}

func (p *Pipeline) removeFromQueue(r *request) {
	for i, q := range p.queue {
		if q == r {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}
