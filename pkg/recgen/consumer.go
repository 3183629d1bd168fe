package recgen

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
	"github.com/movsoftware/silk-sub015/pkg/recheap"
	"github.com/movsoftware/silk-sub015/pkg/telemetry"
)

// consumer drives dispatch on its own RNG stream (seeded identically
// to the producers' dispatch streams) and moves records out of
// whichever producer's queue the draw selects.
type consumer struct {
	producers    []*producer
	ranges       []classRange
	dispatch     *dispatchStream
	cfg          Config
	sink         Sink
	heap         *recheap.Heap[Record]
	tracer       trace.Tracer
	metrics      *telemetry.Metrics
	shuttingDown *atomicBool
}

func newConsumer(producers []*producer, ranges []classRange, cfg Config, sink Sink, tracer trace.Tracer, metrics *telemetry.Metrics, shuttingDown *atomicBool) *consumer {
	c := &consumer{
		producers:    producers,
		ranges:       ranges,
		dispatch:     newDispatchStream(cfg.Seed),
		cfg:          cfg,
		sink:         sink,
		tracer:       tracer,
		metrics:      metrics,
		shuttingDown: shuttingDown,
	}
	if cfg.UseHeap {
		c.heap = recheap.New[Record](cfg.HeapCapacity)
	}
	return c
}

// run executes the consumer loop until every producer is finished and
// drained, or shutdown is requested.
func (c *consumer) run(ctx context.Context) error {
	current := c.cfg.StartTime
	nextFlush := current.Add(c.cfg.FlushInterval)
	eventsPerStep := c.eventsPerStep()

	for !c.allDone() && !c.shuttingDown.Load() {
		if c.anyProducerActive() {
			spanCtx, span := c.tracer.Start(ctx, "recgen.dispatch_batch")
			for i := 0; i < eventsPerStep && !c.shuttingDown.Load() && c.anyProducerActive(); i++ {
				if err := c.dispatchOne(spanCtx); err != nil {
					span.End()
					return err
				}
			}
			span.End()
		} else {
			// Every producer is finished and drained; only buffered
			// heap entries remain. No further dispatch can occur, so
			// release them unconditionally instead of waiting for
			// allProducersPast, which would never observe new progress.
			c.drainHeapRemaining()
		}

		current = current.Add(c.cfg.TimeStepOrDefault())
		if !current.Before(nextFlush) {
			flushCtx, flushSpan := c.tracer.Start(ctx, "recgen.flush")
			err := c.sink.Flush()
			flushSpan.End()
			if err != nil {
				return err
			}
			_ = flushCtx
			nextFlush = nextFlush.Add(c.cfg.FlushInterval)
		}
	}
	return nil
}

// anyProducerActive reports whether at least one producer is still
// generating or has a record queued.
func (c *consumer) anyProducerActive() bool {
	for _, p := range c.producers {
		if !p.isFinished() || p.hasAvailable() {
			return true
		}
	}
	return false
}

// drainHeapRemaining writes out every record still buffered in the
// heap, used once every producer is finished and drained so no
// further end-time can arrive.
func (c *consumer) drainHeapRemaining() {
	if c.heap == nil {
		return
	}
	for c.heap.Count() > 0 {
		rec, _ := c.heap.Pop()
		c.metrics.RecGenRecordsEmitted.Inc()
		_ = c.sink.WriteRecord(rec)
	}
}

// dispatchOne draws one value, locates the matching producer, blocks
// until it has at least one event available (or reports starvation),
// and moves its record out to the sink or heap.
func (c *consumer) dispatchOne(ctx context.Context) error {
	v := c.dispatch.next()
	className, ok := classForDispatchValue(c.ranges, v)
	if !ok {
		return apperr.New(apperr.InvalidArgument, "recgen", "dispatchOne",
			fmt.Errorf("dispatch value %d matched no class", v))
	}
	c.metrics.RecGenDispatchTotal.WithLabelValues(className).Inc()

	p := c.producerByName(className)
	if p == nil {
		return apperr.New(apperr.InvalidArgument, "recgen", "dispatchOne",
			fmt.Errorf("unknown class %q", className))
	}

	if p.isFinished() && !p.hasAvailable() {
		c.metrics.RecGenProducerStarved.Inc()
		return apperr.New(apperr.StarvedProducer, "recgen", "dispatchOne",
			fmt.Errorf("producer %q finished but queue empty and still dispatched", className))
	}

	rec, ok := p.take()
	if !ok {
		if c.shuttingDown.Load() {
			return nil
		}
		c.metrics.RecGenProducerStarved.Inc()
		return apperr.New(apperr.StarvedProducer, "recgen", "dispatchOne",
			fmt.Errorf("producer %q starved", className))
	}
	p.mu.Lock()
	depth := len(p.queue)
	p.mu.Unlock()
	c.metrics.RecGenQueueDepth.WithLabelValues(className).Set(float64(depth))

	if c.heap != nil {
		c.heap.Insert(rec)
		c.drainHeapReady()
		return nil
	}
	c.metrics.RecGenRecordsEmitted.Inc()
	return c.sink.WriteRecord(rec)
}

// drainHeapReady writes out any heap-held records once all producers
// have advanced far enough that no earlier end-time can still arrive.
// A conservative policy: drain whenever every producer's current time
// has passed the heap's minimum end-time.
func (c *consumer) drainHeapReady() {
	for {
		minRec, ok := c.heap.Peek()
		if !ok {
			return
		}
		if !c.allProducersPast(minRec.EndMillis) {
			return
		}
		rec, _ := c.heap.Pop()
		c.metrics.RecGenRecordsEmitted.Inc()
		_ = c.sink.WriteRecord(rec)
	}
}

func (c *consumer) allProducersPast(endMillis int64) bool {
	for _, p := range c.producers {
		p.mu.Lock()
		cur := p.current.UnixMilli()
		fin := p.finished
		p.mu.Unlock()
		if !fin && cur <= endMillis {
			return false
		}
	}
	return true
}

func (c *consumer) producerByName(name string) *producer {
	for _, p := range c.producers {
		if p.class.Name == name {
			return p
		}
	}
	return nil
}

func (c *consumer) allDone() bool {
	for _, p := range c.producers {
		if !p.isFinished() || p.hasAvailable() {
			return false
		}
	}
	if c.heap != nil {
		return c.heap.Count() == 0
	}
	return true
}

func (c *consumer) eventsPerStep() int {
	if len(c.cfg.Classes) == 0 {
		return 1
	}
	return c.cfg.Classes[0].EventsPerStep
}

// TimeStepOrDefault returns the consumer's own advancement step,
// taken from the first class's TimeStep, or one second when there are
// no classes or that step is not positive. Other classes' steps are
// not consulted.
func (cfg Config) TimeStepOrDefault() time.Duration {
	if len(cfg.Classes) > 0 && cfg.Classes[0].TimeStep > 0 {
		return cfg.Classes[0].TimeStep
	}
	return time.Second
}
