package recgen

import "math/rand"

// dispatchSpaceBits is the width of the dispatch value space, [0, 2^31).
const dispatchSpaceBits = 31

// classRange is one class's contiguous sub-interval of the dispatch
// space, assigned proportional to weight_g / sum(weight).
type classRange struct {
	class string
	lo    uint32 // inclusive
	hi    uint32 // exclusive
}

// assignDispatchRanges computes weight_g = target_percent_g /
// recs_per_event_g for each class and partitions [0, 2^31) into
// contiguous sub-intervals proportional to weight_g / sum(weight).
// The same algorithm runs independently on the producer side and the
// consumer side so neither needs a shared structure to agree on
// ranges, only a shared seed.
func assignDispatchRanges(classes []ClassConfig) []classRange {
	weights := make([]float64, len(classes))
	var total float64
	for i, c := range classes {
		w := c.TargetPercent / float64(c.RecsPerEvent)
		weights[i] = w
		total += w
	}

	const space = uint64(1) << dispatchSpaceBits
	ranges := make([]classRange, len(classes))
	var cursor uint64
	for i, c := range classes {
		share := weights[i] / total
		width := uint64(share * float64(space))
		if i == len(classes)-1 {
			// Last class absorbs any rounding remainder so the
			// partition always covers the full space exactly.
			width = space - cursor
		}
		ranges[i] = classRange{class: c.Name, lo: uint32(cursor), hi: uint32(cursor + width)}
		cursor += width
	}
	return ranges
}

// classForDispatchValue returns the class whose range contains v, and
// false if v somehow falls outside every range (should not happen
// given assignDispatchRanges always covers [0, 2^31)).
func classForDispatchValue(ranges []classRange, v uint32) (string, bool) {
	for _, r := range ranges {
		if v >= r.lo && v < r.hi {
			return r.class, true
		}
	}
	return "", false
}

// dispatchStream draws successive 31-bit dispatch values from a
// deterministic RNG seeded from the run seed alone. Producer-side and
// consumer-side streams are seeded identically so the sequence of
// class selections is reproducible given a seed.
type dispatchStream struct {
	rng *rand.Rand
}

func newDispatchStream(seed int64) *dispatchStream {
	return &dispatchStream{rng: rand.New(rand.NewSource(seed))}
}

func (s *dispatchStream) next() uint32 {
	return uint32(s.rng.Int63n(int64(1) << dispatchSpaceBits))
}

// eventContentStream is the per-class RNG used to generate event
// payload content, independent of the dispatch-selection stream so
// that payload generation never perturbs dispatch determinism.
type eventContentStream struct {
	rng *rand.Rand
}

func newEventContentStream(seed int64, classIndex int) *eventContentStream {
	return &eventContentStream{rng: rand.New(rand.NewSource(seed + int64(classIndex)*0x00353535))}
}

func (s *eventContentStream) nextUint32() uint32 {
	return s.rng.Uint32()
}
