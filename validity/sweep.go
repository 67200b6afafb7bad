package validity

import (
	"slices"

	"github.com/zefrenchwan/txl.git/geometry"
)

// segment is a region valid on [from, to)
type segment struct {
	from   Bound
	to     Bound
	region geometry.Region
}

// combiner computes the region of a sub interval given operands regions there.
// An operand that is not defined on the sub interval has defined[i] false and an empty region
type combiner func(regions []geometry.Region, defined []bool) geometry.Region

// sweep merges all breakpoints of operands and applies combine on each sub interval.
// Each operand is a sorted list of disjoint segments.
// Result is sorted, disjoint, with no empty region
func sweep(operands [][]segment, combine combiner) []segment {
	size := 0
	for _, operand := range operands {
		size += 2 * len(operand)
	}

	breakpoints := make([]Bound, 0, size)
	for _, operand := range operands {
		for _, current := range operand {
			breakpoints = append(breakpoints, current.from, current.to)
		}
	}

	slices.SortFunc(breakpoints, Bound.Compare)
	breakpoints = slices.CompactFunc(breakpoints, Bound.Equal)

	cursors := make([]int, len(operands))
	regions := make([]geometry.Region, len(operands))
	defined := make([]bool, len(operands))

	var result []segment
	for index := 0; index+1 < len(breakpoints); index++ {
		from, to := breakpoints[index], breakpoints[index+1]
		for position, operand := range operands {
			cursor := cursors[position]
			for cursor < len(operand) && !operand[cursor].to.After(from) {
				cursor++
			}

			cursors[position] = cursor
			if cursor < len(operand) && !operand[cursor].from.After(from) {
				regions[position], defined[position] = operand[cursor].region, true
			} else {
				regions[position], defined[position] = geometry.Empty(), false
			}
		}

		if region := combine(regions, defined); !region.IsEmpty() {
			result = append(result, segment{from: from, to: to, region: region})
		}
	}

	return result
}

// assemble groups contiguous segments into tracks and merges equal consecutive regions.
// Segments should be sorted, disjoint and not empty
func assemble(segments []segment) []Track {
	var result []Track
	var current Track
	for _, value := range segments {
		switch {
		case current.IsEmpty():
			current = Track{pieces: []piece{{start: value.from, region: value.region}}, end: value.to}
		case !current.end.Equal(value.from):
			result = append(result, current)
			current = Track{pieces: []piece{{start: value.from, region: value.region}}, end: value.to}
		case current.pieces[len(current.pieces)-1].region.Equal(value.region):
			current.end = value.to
		default:
			current.pieces = append(current.pieces, piece{start: value.from, region: value.region})
			current.end = value.to
		}
	}

	if !current.IsEmpty() {
		result = append(result, current)
	}

	return result
}

func unionOf(regions []geometry.Region, defined []bool) geometry.Region {
	result := geometry.Empty()
	for index, region := range regions {
		if defined[index] {
			result = result.Union(region)
		}
	}

	return result
}

func intersectionOf(regions []geometry.Region, defined []bool) geometry.Region {
	if len(regions) == 0 || slices.Contains(defined, false) {
		return geometry.Empty()
	}

	result := regions[0]
	for _, region := range regions[1:] {
		result = result.Intersection(region)
	}

	return result
}

// complementOf is the universe minus second operand, where first operand is defined
func complementOf(regions []geometry.Region, defined []bool) geometry.Region {
	if !defined[0] {
		return geometry.Empty()
	}

	return regions[1].Complement()
}

// differenceOf is first operand minus second operand
func differenceOf(regions []geometry.Region, defined []bool) geometry.Region {
	if !defined[0] {
		return geometry.Empty()
	}

	return regions[0].Difference(regions[1])
}
