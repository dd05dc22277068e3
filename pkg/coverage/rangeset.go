package coverage

import "sort"

// Range is a half-open address interval [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// RangeSet is an ordered set of non-overlapping, non-adjacent ranges.
// Adding a block that overlaps or touches existing ranges coalesces them,
// so every covered byte is represented exactly once.
type RangeSet struct {
	ranges []Range
}

// Add inserts [start, start+size). Empty blocks are ignored.
func (s *RangeSet) Add(start, size uint64) {
	if size == 0 {
		return
	}
	end := start + size
	if end < start {
		// wrapped around the address space
		end = ^uint64(0)
	}

	// first range whose end reaches start
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].End >= start })
	// first range starting after end
	j := sort.Search(len(s.ranges), func(j int) bool { return s.ranges[j].Start > end })

	if i == j {
		s.ranges = append(s.ranges, Range{})
		copy(s.ranges[i+1:], s.ranges[i:])
		s.ranges[i] = Range{Start: start, End: end}
		return
	}

	merged := Range{Start: min(start, s.ranges[i].Start), End: max(end, s.ranges[j-1].End)}
	s.ranges[i] = merged
	s.ranges = append(s.ranges[:i+1], s.ranges[j:]...)
}

// Ranges returns the coalesced ranges in ascending order.
func (s *RangeSet) Ranges() []Range {
	return s.ranges
}

// Len returns the number of covered bytes.
func (s *RangeSet) Len() uint64 {
	var n uint64
	for _, r := range s.ranges {
		n += r.End - r.Start
	}
	return n
}

// Contains reports whether addr falls inside any range.
func (s *RangeSet) Contains(addr uint64) bool {
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].End > addr })
	return i < len(s.ranges) && s.ranges[i].Start <= addr
}

// AddressCount expands the set into one entry per byte, each set to count.
func (s *RangeSet) AddressCount(count uint64) AddressCount {
	ac := make(AddressCount, s.Len())
	for _, r := range s.ranges {
		for addr := r.Start; addr < r.End; addr++ {
			ac[addr] = count
		}
	}
	return ac
}
