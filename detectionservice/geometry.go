package detectionservice

import (
	"fmt"
	"math"
)

// Contains reports whether outer strictly contains inner. A box touching the
// outer edge on any side is not contained.
func Contains(outer, inner Region) bool {
	return outer.XMin < inner.XMin && inner.XMin < inner.XMax && inner.XMax < outer.XMax &&
		outer.YMin < inner.YMin && inner.YMin < inner.YMax && inner.YMax < outer.YMax
}

// IsIgnored reports whether the prediction lies inside any of the regions.
func IsIgnored(p Prediction, regions []Region) bool {
	box := p.Box()
	for _, region := range regions {
		if Contains(region, box) {
			return true
		}
	}
	return false
}

// PassesSize reports whether the box is strictly wider and taller than the minimums.
func PassesSize(p Prediction, minWidth, minHeight int) bool {
	return p.Width() > minWidth && p.Height() > minHeight
}

// ConfidencePercent converts a detector confidence to an integer percent,
// rounding half to even. Values above 1 are taken to be percent already.
func ConfidencePercent(confidence float64) int {
	if confidence > 1 {
		return int(math.RoundToEven(confidence))
	}
	return int(math.RoundToEven(100 * confidence))
}

// PassesConfidence reports whether the rounded percent is strictly above min.
func PassesConfidence(p Prediction, minConfidencePercent int) bool {
	return ConfidencePercent(p.Confidence) > minConfidencePercent
}

// Validate checks the region's bounds are ordered.
func (r Region) Validate() error {
	if r.XMin >= r.XMax {
		return fmt.Errorf("region x_min %d must be less than x_max %d", r.XMin, r.XMax)
	}
	if r.YMin >= r.YMax {
		return fmt.Errorf("region y_min %d must be less than y_max %d", r.YMin, r.YMax)
	}
	return nil
}
