package objectdetection

import (
	"math"

	"github.com/pkg/errors"
)

// ErrOutputLength is returned by Decode when a raw tensor does not match its AnchorConfig.
var ErrOutputLength = errors.New("raw output length does not match anchor config")

func sigmoid(x float32) float64 {
	return 1 / (1 + math.Exp(-float64(x)))
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Decode converts a raw detector output into candidate detections, in scale, row, column, anchor
// order. Records whose objectness, or objectness times best class score, does not exceed
// cfg.DetectionThreshold are skipped, as are records with NaN scores or box values.
func Decode(raw RawTensor, cfg AnchorConfig) ([]Detection, error) {
	if want := cfg.OutputLen(); len(raw) != want {
		return nil, errors.Wrapf(ErrOutputLength, "got %d values, want %d", len(raw), want)
	}

	recordLen := cfg.RecordLen()
	offsets := cfg.ScaleOffsets()
	perCell := cfg.AnchorsPerCell()
	var dets []Detection

	for i, scale := range cfg.Scales {
		g := scale.GridSize
		stride := float64(scale.Stride)
		for row := 0; row < g; row++ {
			for col := 0; col < g; col++ {
				for a, anchor := range scale.Anchors {
					index := offsets[i] + perCell*(g*row+col) + a
					record := raw[index*recordLen : (index+1)*recordLen]

					// Written as keep conditions so that NaN scores are discarded.
					objectness := sigmoid(record[4])
					if !(objectness > cfg.DetectionThreshold) {
						continue
					}

					best := 0
					for c := 1; c < cfg.Classes; c++ {
						if record[5+c] > record[5+best] {
							best = c
						}
					}
					if !(objectness*sigmoid(record[5+best]) > cfg.DetectionThreshold) {
						continue
					}

					cx := (sigmoid(record[0])*2 - 0.5 + float64(col)) * stride
					cy := (sigmoid(record[1])*2 - 0.5 + float64(row)) * stride
					sw, sh := sigmoid(record[2]), sigmoid(record[3])
					w := sw * sw * 4 * anchor.Width
					h := sh * sh * 4 * anchor.Height
					if !finite(cx, cy, w, h) {
						continue
					}

					dets = append(dets, Detection{
						Box: Box{
							X:      max(0, int(cx-w/2)),
							Y:      max(0, int(cy-h/2)),
							Width:  int(w),
							Height: int(h),
						},
						Label:      best,
						Confidence: objectness,
					})
				}
			}
		}
	}
	return dets, nil
}
