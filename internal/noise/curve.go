package noise

import "sort"

// CurveKey is one keyframe of a remap curve.
type CurveKey struct {
	Time  float64
	Value float64
}

// Curve remaps normalized heights with piecewise-linear interpolation between
// keys. Inputs outside the key range clamp to the first or last value. An
// empty curve is the identity.
type Curve []CurveKey

// NewCurve copies keys and sorts them by time.
func NewCurve(keys []CurveKey) Curve {
	if len(keys) == 0 {
		return nil
	}
	c := make(Curve, len(keys))
	copy(c, keys)
	sort.SliceStable(c, func(i, j int) bool { return c[i].Time < c[j].Time })
	return c
}

func (c Curve) Evaluate(t float64) float64 {
	switch len(c) {
	case 0:
		return t
	case 1:
		return c[0].Value
	}
	if t <= c[0].Time {
		return c[0].Value
	}
	last := c[len(c)-1]
	if t >= last.Time {
		return last.Value
	}
	i := sort.Search(len(c), func(i int) bool { return c[i].Time >= t })
	a, b := c[i-1], c[i]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Value
	}
	return lerp(a.Value, b.Value, (t-a.Time)/span)
}
