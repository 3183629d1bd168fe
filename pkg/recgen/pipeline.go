package recgen

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/movsoftware/silk-sub015/pkg/telemetry"
)

// Pipeline owns one single-process producer/consumer run: one
// goroutine per generator class plus one consumer goroutine, all
// within this process.
type Pipeline struct {
	cfg          Config
	sink         Sink
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
	shuttingDown atomicBool

	producers []*producer
	consumer  *consumer
	wg        sync.WaitGroup
}

// New builds a Pipeline ready to Run. sink receives emitted records;
// metrics/tracer may be nil, in which case no-op instances are used.
func New(cfg Config, sink Sink, metrics *telemetry.Metrics, tracer trace.Tracer) *Pipeline {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	if tracer == nil {
		tracer = otel.Tracer("silk-sub015/recgen")
	}

	ranges := assignDispatchRanges(cfg.Classes)
	p := &Pipeline{cfg: cfg, sink: sink, metrics: metrics, tracer: tracer}

	for i, cc := range cfg.Classes {
		p.producers = append(p.producers, newProducer(
			cc, i, cfg.StartTime, cfg.EndTime, cfg.Seed, ranges, cfg.MaxAvailable, &p.shuttingDown,
		))
		p.metrics.RecGenQueueDepth.WithLabelValues(cc.Name).Set(0)
	}
	p.consumer = newConsumer(p.producers, ranges, cfg, sink, tracer, metrics, &p.shuttingDown)
	return p
}

// Run starts every producer goroutine and runs the consumer loop on
// the calling goroutine until the run completes, shutdown is
// requested, or the consumer reports a fatal error (e.g. starvation).
// A fatal error flips shuttingDown so every producer goroutine also
// unwinds.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, prod := range p.producers {
		p.wg.Add(1)
		go func(pr *producer) {
			defer p.wg.Done()
			pr.run()
		}(prod)
	}

	err := p.consumer.run(ctx)
	if err != nil {
		p.shuttingDown.Store(true)
	}
	p.Shutdown()
	return err
}

// Shutdown sets shutting_down and broadcasts every producer's
// condvar so all producers exit their waits, release locks, and
// terminate; it then waits for every producer goroutine to return.
func (p *Pipeline) Shutdown() {
	p.shuttingDown.Store(true)
	for _, prod := range p.producers {
		prod.wake()
	}
	p.wg.Wait()
}
