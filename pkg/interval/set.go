// Package interval implements a set of closed uint32 intervals.
//
// The set is kept as a sorted slice of disjoint, non-adjacent intervals.
// Insertion coalesces overlapping and adjacent intervals, so [a,b] and
// [b+1,c] become a single [a,c].
package interval

import (
	"fmt"
	"sort"
)

// Interval is a closed range [Start, End] of addresses.
type Interval struct {
	Start uint32
	End   uint32
}

// Contains reports whether addr lies inside the interval.
func (iv Interval) Contains(addr uint32) bool {
	return addr >= iv.Start && addr <= iv.End
}

// String returns the interval as "[start,end]" in hex.
func (iv Interval) String() string {
	return fmt.Sprintf("[0x%08x,0x%08x]", iv.Start, iv.End)
}

// Set is a sorted list of merged closed intervals. The zero value is an
// empty set ready to use.
type Set struct {
	ivs []Interval
}

// Add inserts the closed interval [start, end]. Arguments given in the
// wrong order are swapped.
func (s *Set) Add(start, end uint32) {
	if end < start {
		start, end = end, start
	}

	// First interval that could touch [start,end]: the first whose End+1 >= start.
	lo := sort.Search(len(s.ivs), func(i int) bool {
		return s.ivs[i].End == ^uint32(0) || s.ivs[i].End+1 >= start
	})

	hi := lo
	for hi < len(s.ivs) && (end == ^uint32(0) || s.ivs[hi].Start <= end+1) {
		if s.ivs[hi].Start < start {
			start = s.ivs[hi].Start
		}
		if s.ivs[hi].End > end {
			end = s.ivs[hi].End
		}
		hi++
	}

	merged := Interval{Start: start, End: end}
	switch {
	case lo == hi:
		s.ivs = append(s.ivs, Interval{})
		copy(s.ivs[lo+1:], s.ivs[lo:])
		s.ivs[lo] = merged
	default:
		s.ivs[lo] = merged
		s.ivs = append(s.ivs[:lo+1], s.ivs[hi:]...)
	}
}

// Contains reports whether addr lies in any interval of the set.
func (s *Set) Contains(addr uint32) bool {
	i := sort.Search(len(s.ivs), func(i int) bool {
		return s.ivs[i].End >= addr
	})
	return i < len(s.ivs) && s.ivs[i].Start <= addr
}

// Empty reports whether the set holds no intervals.
func (s *Set) Empty() bool {
	return len(s.ivs) == 0
}

// Len returns the number of disjoint intervals.
func (s *Set) Len() int {
	return len(s.ivs)
}

// Intervals returns a copy of the intervals in ascending order.
func (s *Set) Intervals() []Interval {
	out := make([]Interval, len(s.ivs))
	copy(out, s.ivs)
	return out
}

// Clear removes every interval.
func (s *Set) Clear() {
	s.ivs = s.ivs[:0]
}
