// Package recgen implements the multi-producer/single-consumer flow
// record generator pipeline: one producer goroutine per generator
// class feeding a bounded per-class queue, a single consumer that
// dispatches deterministically between classes and publishes records
// either directly or through a RecordHeap, and optional subprocess
// parallelism across disjoint time windows.
package recgen

import (
	"time"

	"github.com/movsoftware/silk-sub015/pkg/recheap"
)

// Record is one generated flow record. EndTimeMillis satisfies
// recheap.Record so records can be inserted directly into the heap
// when heap-ordered output is enabled.
type Record struct {
	Class       string
	StartMillis int64
	EndMillis   int64
	SensorID    uint32
	FlowtypeID  uint32
	Payload     []byte
}

// EndTimeMillis implements recheap.Record.
func (r Record) EndTimeMillis() int64 { return r.EndMillis }

var _ recheap.Record = Record{}

// ClassConfig describes one generator class's share of the dispatch
// space and its event shape.
type ClassConfig struct {
	Name          string
	TargetPercent float64
	RecsPerEvent  int
	EventsPerStep int
	TimeStep      time.Duration
}

// Config parameterizes a single-process pipeline run.
type Config struct {
	Classes        []ClassConfig
	StartTime      time.Time
	EndTime        time.Time
	Seed           int64
	MaxAvailable   int
	FlushInterval  time.Duration
	UseHeap        bool
	HeapCapacity   int
}

// Sink receives records from the consumer, either writing them out
// immediately (UseHeap == false) or after heap-ordering
// (UseHeap == true). Implementations correspond to StreamCache, a
// single output stream, or a text formatter.
type Sink interface {
	WriteRecord(Record) error
	Flush() error
}
