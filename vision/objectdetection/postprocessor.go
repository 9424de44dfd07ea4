package objectdetection

import (
	"github.com/samber/lo"
)

// Postprocessor defines a function that filters/modifies on an incoming array of Detections.
type Postprocessor func([]Detection) []Detection

// NewAreaFilter returns a function that filters out detections below a certain area.
func NewAreaFilter(area int) Postprocessor {
	return func(in []Detection) []Detection {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return d.Box.Area() >= area
		})
	}
}

// NewScoreFilter returns a function that filters out detections below a certain confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []Detection) []Detection {
		return lo.Filter(in, func(d Detection, _ int) bool {
			return d.Confidence >= conf
		})
	}
}

// NewLabelFilter returns a function that keeps only detections with one of the given labels.
// An empty label set keeps everything.
func NewLabelFilter(labels []int) Postprocessor {
	keep := lo.SliceToMap(labels, func(l int) (int, struct{}) { return l, struct{}{} })
	return func(in []Detection) []Detection {
		if len(keep) == 0 {
			return in
		}
		return lo.Filter(in, func(d Detection, _ int) bool {
			_, ok := keep[d.Label]
			return ok
		})
	}
}

// Chain applies each postprocessor in turn. Nil entries are skipped.
func Chain(pps ...Postprocessor) Postprocessor {
	pps = lo.Filter(pps, func(pp Postprocessor, _ int) bool { return pp != nil })
	return func(in []Detection) []Detection {
		for _, pp := range pps {
			in = pp(in)
		}
		return in
	}
}
