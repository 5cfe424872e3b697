package sensor

import (
	"fmt"
	"math"
	"sort"
)

// Strategy selects how a requested size maps onto the supported list.
type Strategy int

const (
	// ClosestHigherThenLower prefers the smallest size at or above the
	// request, falling back to the largest below it.
	ClosestHigherThenLower Strategy = iota
	// ClosestLowerThenHigher prefers the largest size at or below the
	// request, falling back to the smallest above it.
	ClosestLowerThenHigher
	// ExactOrError accepts only an exact match.
	ExactOrError
	// Largest ignores the request and picks the maximum-area size.
	Largest
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case ClosestHigherThenLower:
		return "closest-higher"
	case ClosestLowerThenHigher:
		return "closest-lower"
	case ExactOrError:
		return "exact"
	case Largest:
		return "largest"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseStrategy maps a configuration name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "closest-higher", "":
		return ClosestHigherThenLower, nil
	case "closest-lower":
		return ClosestLowerThenHigher, nil
	case "exact":
		return ExactOrError, nil
	case "largest":
		return Largest, nil
	default:
		return 0, fmt.Errorf("sensor: unknown negotiation strategy %q", name)
	}
}

// Negotiate selects the streaming size from the supported list.
//
// Area is the comparison metric. Ties on area break toward the smaller
// aspect-ratio difference from the request, then toward the larger width.
func Negotiate(supported []Size, want Size, strategy Strategy) (Size, error) {
	if len(supported) == 0 {
		return Size{}, ErrNoResolution
	}

	switch strategy {
	case Largest:
		return pick(supported, want, func(s Size) bool { return true }, false), nil

	case ExactOrError:
		for _, s := range supported {
			if s == want {
				return s, nil
			}
		}
		return Size{}, fmt.Errorf("sensor: %w: no exact match for %s", ErrNoResolution, want)

	case ClosestHigherThenLower:
		if best := pick(supported, want, func(s Size) bool { return s.Area() >= want.Area() }, true); !best.IsZero() {
			return best, nil
		}
		return pick(supported, want, func(s Size) bool { return s.Area() < want.Area() }, false), nil

	case ClosestLowerThenHigher:
		if best := pick(supported, want, func(s Size) bool { return s.Area() <= want.Area() }, false); !best.IsZero() {
			return best, nil
		}
		return pick(supported, want, func(s Size) bool { return s.Area() > want.Area() }, true), nil

	default:
		return Size{}, fmt.Errorf("sensor: unknown negotiation strategy %d", strategy)
	}
}

// pick returns the best candidate passing the filter: the minimum area
// when smallestFirst is true, otherwise the maximum area. Returns the
// zero Size when nothing passes.
func pick(supported []Size, want Size, keep func(Size) bool, smallestFirst bool) Size {
	candidates := make([]Size, 0, len(supported))
	for _, s := range supported {
		if keep(s) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return Size{}
	}

	wantAspect := want.aspect()
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Area() != b.Area() {
			if smallestFirst {
				return a.Area() < b.Area()
			}
			return a.Area() > b.Area()
		}
		da := math.Abs(a.aspect() - wantAspect)
		db := math.Abs(b.aspect() - wantAspect)
		if da != db {
			return da < db
		}
		return a.Width > b.Width
	})

	return candidates[0]
}
