package objectdetection

import (
	"image"
	"testing"

	"go.viam.com/test"
)

func TestDefaultAnchorConfig(t *testing.T) {
	cfg := DefaultAnchorConfig()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.AnchorsPerCell(), test.ShouldEqual, 3)
	test.That(t, cfg.RecordLen(), test.ShouldEqual, 28)
	test.That(t, cfg.ScaleOffsets(), test.ShouldResemble, []int{0, 507, 8619})
	test.That(t, cfg.NumRecords(), test.ShouldEqual, 10647)
	test.That(t, cfg.OutputLen(), test.ShouldEqual, 10647*28)
	test.That(t, cfg.InputSize(), test.ShouldResemble, image.Pt(416, 416))
	test.That(t, cfg.InputLen(), test.ShouldEqual, 416*416*3)
}

func TestAnchorConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(cfg *AnchorConfig)
		errStr string
	}{
		{"no scales", func(cfg *AnchorConfig) { cfg.Scales = nil }, "at least one scale"},
		{"no anchors", func(cfg *AnchorConfig) { cfg.Scales[0].Anchors = nil }, "has no anchors"},
		{"zero grid", func(cfg *AnchorConfig) { cfg.Scales[1].GridSize = 0 }, "scale 1: grid_size"},
		{"negative stride", func(cfg *AnchorConfig) { cfg.Scales[2].Stride = -8 }, "scale 2: stride"},
		{
			"uneven anchors",
			func(cfg *AnchorConfig) { cfg.Scales[2].Anchors = cfg.Scales[2].Anchors[:2] },
			"anchors per cell must match",
		},
		{"no classes", func(cfg *AnchorConfig) { cfg.Classes = 0 }, "classes must be positive"},
		{"threshold of one", func(cfg *AnchorConfig) { cfg.DetectionThreshold = 1 }, "detection_threshold"},
		{"zero iou", func(cfg *AnchorConfig) { cfg.IOUThreshold = 0 }, "iou_threshold"},
		{"no input size", func(cfg *AnchorConfig) { cfg.InputHeight = 0 }, "input size"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultAnchorConfig()
			tc.modify(&cfg)
			err := cfg.Validate()
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}
}
