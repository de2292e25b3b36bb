// Package scaffold places contigs relative to each other from long read
// alignments.
package scaffold

import (
	"fmt"

	"npgraph/utils"
)

// Vector places a target contig relative to a reference contig. Magnitude
// is the position of the target 5' end in reference coordinates (reference
// 5' end at 0), Direction is 1 when both read the same way and -1 otherwise.
type Vector struct {
	Magnitude int
	Direction int
}

var Identity = Vector{Magnitude: 0, Direction: 1}

// Compose chains v2 (a to b) with v1 (b to c) into a to c.
func Compose(v1, v2 Vector) Vector {
	return Vector{
		Magnitude: v2.Magnitude + v2.Direction*v1.Magnitude,
		Direction: v1.Direction * v2.Direction,
	}
}

// Reverse turns a to b into b to a.
func (v Vector) Reverse() Vector {
	if v.Direction > 0 {
		return Vector{-v.Magnitude, v.Direction}
	}
	return v
}

// Span is the interval the target occupies in reference coordinates.
func (v Vector) Span(tarLen int) (lo, hi int) {
	if v.Direction > 0 {
		return v.Magnitude, v.Magnitude + tarLen
	}
	return v.Magnitude - tarLen, v.Magnitude
}

// Distance is the gap between the closest tips of reference and target,
// negative when they overlap.
func (v Vector) Distance(refLen, tarLen int) int {
	m := v.Magnitude
	if v.Direction > 0 {
		if m > 0 {
			return m - refLen
		}
		return -m - tarLen
	}
	if m > 0 {
		return m - refLen - tarLen
	}
	return -m
}

// Along is the distance from the tip refDir of the reference to the near
// tip of the target, measured in the direction the reference is left.
func (v Vector) Along(refDir bool, refLen, tarLen int) int {
	lo, hi := v.Span(tarLen)
	if refDir {
		return lo - refLen
	}
	return -hi
}

// EnterFlag is the end through which the target is entered when leaving
// the reference through refDir.
func (v Vector) EnterFlag(refDir bool) bool {
	return (v.Direction > 0) == !refDir
}

// Consistent reports whether two placements of the same target agree.
func (v Vector) Consistent(o Vector, aTol int, rTol float64) bool {
	if v.Direction != o.Direction {
		return false
	}
	tol := int(rTol * float64(utils.MaxInt(utils.AbsInt(v.Magnitude), utils.AbsInt(o.Magnitude))))
	return utils.AbsInt(v.Magnitude-o.Magnitude) <= utils.MaxInt(aTol, tol)
}

func (v Vector) String() string {
	sign := '+'
	if v.Direction < 0 {
		sign = '-'
	}
	return fmt.Sprintf("%c%d", sign, v.Magnitude)
}
