package recgen

import (
	"sync"
	"time"
)

// producer owns one generator class's bounded record queue. Its
// mutex+condvar pair guards only this producer's queue and counters,
// never any other producer's state.
type producer struct {
	class       ClassConfig
	classIndex  int
	maxAvail    int
	endTime     time.Time
	dispatch    *dispatchStream
	content     *eventContentStream
	ranges      []classRange
	shuttingDown *atomicBool

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Record
	current  time.Time
	draws    int
	finished bool
}

func newProducer(cfg ClassConfig, idx int, cfgStart time.Time, cfgEnd time.Time, seed int64, ranges []classRange, maxAvail int, shuttingDown *atomicBool) *producer {
	p := &producer{
		class:        cfg,
		classIndex:   idx,
		maxAvail:     maxAvail,
		endTime:      cfgEnd,
		dispatch:     newDispatchStream(seed),
		content:      newEventContentStream(seed, idx),
		ranges:       ranges,
		shuttingDown: shuttingDown,
		current:      cfgStart,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// run executes the producer loop: while current time <= endTime, draw
// a dispatch value; if it selects this class, block until queue depth
// < maxAvail, generate one event's records, push them, and signal the
// consumer. After endTime the producer marks itself finished and
// returns; records still queued stay available to the consumer, which
// keeps taking them until the queue is empty.
func (p *producer) run() {
	for !p.current.After(p.endTime) && !p.shuttingDown.Load() {
		v := p.dispatch.next()
		selected, ok := classForDispatchValue(p.ranges, v)
		if !ok || selected != p.class.Name {
			continue
		}

		p.mu.Lock()
		for len(p.queue) >= p.maxAvail && !p.shuttingDown.Load() {
			p.cond.Wait()
		}
		if p.shuttingDown.Load() {
			p.mu.Unlock()
			break
		}
		recs := p.generateEvent()
		wasEmpty := len(p.queue) == 0
		p.queue = append(p.queue, recs...)
		if wasEmpty {
			p.cond.Signal()
		}
		p.mu.Unlock()

		p.draws++
		if p.draws%p.class.EventsPerStep == 0 {
			p.current = p.current.Add(p.class.TimeStep)
		}
	}

	p.mu.Lock()
	p.finished = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// generateEvent produces recs_per_event records for one event. The
// caller must hold p.mu.
func (p *producer) generateEvent() []Record {
	recs := make([]Record, p.class.RecsPerEvent)
	for i := range recs {
		start := p.current.UnixMilli()
		end := start + int64(p.content.nextUint32()%1000)
		recs[i] = Record{
			Class:       p.class.Name,
			StartMillis: start,
			EndMillis:   end,
			FlowtypeID:  uint32(p.classIndex),
		}
	}
	return recs
}

// take removes and returns the oldest queued record, blocking until
// one is available, the producer has finished with an empty queue
// (returns ok=false), or shutdown is signaled (returns ok=false).
func (p *producer) take() (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.finished && !p.shuttingDown.Load() {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return Record{}, false
	}
	r := p.queue[0]
	p.queue = p.queue[1:]
	if len(p.queue) < p.maxAvail {
		p.cond.Signal()
	}
	return r, true
}

// hasAvailable reports whether this producer currently has a queued
// record without blocking, used by the consumer's starvation check.
func (p *producer) hasAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) > 0
}

// isFinished reports whether the producer has stopped generating.
func (p *producer) isFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// wake broadcasts this producer's condvar, used by shutdown to release
// any producer currently blocked on a full queue.
func (p *producer) wake() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}
