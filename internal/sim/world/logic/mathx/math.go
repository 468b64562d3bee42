package mathx

import "math"

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// NormalizeDegrees maps any angle into [0,360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// ShortestAngle returns the signed delta in (-180,180] that rotates from onto to.
func ShortestAngle(from, to float64) float64 {
	d := NormalizeDegrees(to - from)
	if d > 180 {
		d -= 360
	}
	return d
}

// AngleDistance is the unsigned shortest angular distance in [0,180].
func AngleDistance(a, b float64) float64 {
	return math.Abs(ShortestAngle(a, b))
}

// LerpAngle interpolates along the shortest arc and normalizes the result.
func LerpAngle(from, to, t float64) float64 {
	if t <= 0 {
		return from
	}
	return NormalizeDegrees(from + ShortestAngle(from, to)*t)
}

func Radians(deg float64) float64 { return deg * math.Pi / 180 }

func Degrees(rad float64) float64 { return rad * 180 / math.Pi }
