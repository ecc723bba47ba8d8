package engine

import "github.com/pe200012/cpupower-gui-qml/internal/sysfs"

// Bound names one side of a scaling range.
type Bound int

// Range bounds.
const (
	BoundMin Bound = iota
	BoundMax
)

func (b Bound) String() string {
	if b == BoundMax {
		return "max"
	}
	return "min"
}

func (b Bound) file() string {
	if b == BoundMax {
		return sysfs.FileScalingMax
	}
	return sysfs.FileScalingMin
}

// PlanRangeWrites returns the order in which to write the two bounds when
// moving from current to [newMin, newMax]. The kernel checks min <= max on
// every individual write, so:
//
//   - newMax below the current min lowers the floor first;
//   - newMin above the current max raises the ceiling first;
//   - overlapping ranges write min then max.
func PlanRangeWrites(current sysfs.FrequencyRange, newMin, newMax int) [2]Bound {
	switch {
	case newMax < current.MinKHz:
		return [2]Bound{BoundMin, BoundMax}
	case newMin > current.MaxKHz:
		return [2]Bound{BoundMax, BoundMin}
	default:
		return [2]Bound{BoundMin, BoundMax}
	}
}
