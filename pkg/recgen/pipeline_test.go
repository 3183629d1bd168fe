package recgen

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu      sync.Mutex
	records []Record
	flushes int
}

func (s *collectingSink) WriteRecord(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *collectingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func smallConfig(useHeap bool) Config {
	start := time.Unix(0, 0).UTC()
	return Config{
		Classes: []ClassConfig{
			{Name: "all/in", TargetPercent: 50, RecsPerEvent: 1, EventsPerStep: 5, TimeStep: time.Second},
			{Name: "all/out", TargetPercent: 50, RecsPerEvent: 1, EventsPerStep: 5, TimeStep: time.Second},
		},
		StartTime:     start,
		EndTime:       start.Add(5 * time.Second),
		Seed:          42,
		MaxAvailable:  16,
		FlushInterval: time.Second,
		UseHeap:       useHeap,
		HeapCapacity:  64,
	}
}

// TestDispatchDeterminism checks that the same seed produces the same
// sequence of producer selections.
func TestDispatchDeterminism(t *testing.T) {
	ranges := assignDispatchRanges(smallConfig(false).Classes)
	s1 := newDispatchStream(42)
	s2 := newDispatchStream(42)

	for i := 0; i < 100; i++ {
		v1 := s1.next()
		v2 := s2.next()
		require.Equal(t, v1, v2)
		c1, ok1 := classForDispatchValue(ranges, v1)
		c2, ok2 := classForDispatchValue(ranges, v2)
		require.True(t, ok1)
		require.True(t, ok2)
		require.Equal(t, c1, c2)
	}
}

func TestPipelineRunProducesRecordsAndShutsDownCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &collectingSink{}
	p := New(smallConfig(false), sink, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.Run(ctx)
	require.NoError(t, err)
	require.Greater(t, sink.count(), 0)
}

func TestPipelineWithHeapOrdersByEndTime(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &collectingSink{}
	p := New(smallConfig(true), sink, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.Run(ctx)
	require.NoError(t, err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i := 1; i < len(sink.records); i++ {
		require.LessOrEqual(t, sink.records[i-1].EndMillis, sink.records[i].EndMillis)
	}
}

func TestAssignDispatchRangesCoversFullSpace(t *testing.T) {
	ranges := assignDispatchRanges([]ClassConfig{
		{Name: "a", TargetPercent: 70, RecsPerEvent: 1},
		{Name: "b", TargetPercent: 30, RecsPerEvent: 1},
	})
	require.Equal(t, uint32(0), ranges[0].lo)
	require.Equal(t, ranges[0].hi, ranges[1].lo)
	require.Equal(t, uint32(1<<dispatchSpaceBits), ranges[len(ranges)-1].hi)
}

func TestSplitWindowsCoversFullRangeWithAdjustedSeeds(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	end := start.Add(100 * time.Second)
	windows := SplitWindows(start, end, time.Second, 4, 1000, t.TempDir())

	require.Len(t, windows, 4)
	require.Equal(t, start, windows[0].StartTime)
	require.Equal(t, end, windows[len(windows)-1].EndTime)
	for i, w := range windows {
		require.Equal(t, int64(1000)+int64(i)*subprocessSeedStride, w.Seed)
	}
	for i := 1; i < len(windows); i++ {
		require.Equal(t, windows[i-1].EndTime, windows[i].StartTime)
	}
}
