package lx16a

import "math"

// AngleRange is the mechanical range in degrees covered by positions 0-1000.
const AngleRange = 240.0

// AngleToPosition converts degrees to a position, rounding to the nearest
// unit and clamping to 0-1000.
func AngleToPosition(degrees float64) int {
	if math.IsNaN(degrees) {
		return 0
	}
	pos := math.Round(degrees / AngleRange * MaxPosition)
	if pos < 0 {
		return 0
	}
	if pos > MaxPosition {
		return MaxPosition
	}
	return int(pos)
}

// PositionToAngle converts a position to degrees.
func PositionToAngle(position int) float64 {
	return float64(position) * AngleRange / MaxPosition
}

// OffsetToDegrees converts an angle trim in position units to degrees.
func OffsetToDegrees(offset int) float64 {
	return PositionToAngle(offset)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// orderedRange clamps both ends into [lo, hi] and swaps them if reversed.
func orderedRange(a, b, lo, hi int) (int, int) {
	a, b = clamp(a, lo, hi), clamp(b, lo, hi)
	if a > b {
		a, b = b, a
	}
	return a, b
}
