package objectdetection

import (
	"sort"
)

// IoU is the intersection over union of two boxes, counting edge pixels inclusively.
func IoU(a, b Box) float64 {
	xOverlap := max(0, float64(min(a.X+a.Width, b.X+b.Width)-max(a.X, b.X)+1))
	yOverlap := max(0, float64(min(a.Y+a.Height, b.Y+b.Height)-max(a.Y, b.Y)+1))
	intersection := xOverlap * yOverlap
	union := (float64(a.Width)+1)*(float64(a.Height)+1) +
		(float64(b.Width)+1)*(float64(b.Height)+1) - intersection
	return intersection / union
}

// Suppress removes every detection whose IoU with a higher confidence detection exceeds
// iouThreshold. The result is ordered by descending confidence, equal confidences keeping their
// input order. dets is not modified.
func Suppress(dets []Detection, iouThreshold float64) []Detection {
	if len(dets) == 0 {
		return []Detection{}
	}

	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	suppressed := make([]bool, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if IoU(sorted[i].Box, sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	out := make([]Detection, 0, len(sorted))
	for i, d := range sorted {
		if !suppressed[i] {
			out = append(out, d)
		}
	}
	return out
}
