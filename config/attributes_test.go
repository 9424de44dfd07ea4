package config

import (
	"testing"
	"time"

	"go.viam.com/test"
)

var sampleAttributeMap = AttributeMap{
	"ok_boolean":    true,
	"bad_boolean":   "true",
	"int_from_json": float64(20),
	"bad_int":       "twenty",
	"name":          "cam0",
	"bad_name":      3,
}

func TestAttributeMapGetters(t *testing.T) {
	test.That(t, sampleAttributeMap.Has("name"), test.ShouldBeTrue)
	test.That(t, sampleAttributeMap.Has("nope"), test.ShouldBeFalse)

	b, err := sampleAttributeMap.Bool("ok_boolean", false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldBeTrue)
	b, err = sampleAttributeMap.Bool("missing", true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b, test.ShouldBeTrue)
	_, err = sampleAttributeMap.Bool("bad_boolean", false)
	test.That(t, err, test.ShouldNotBeNil)

	i, err := sampleAttributeMap.Int("int_from_json", 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, i, test.ShouldEqual, 20)
	i, err = sampleAttributeMap.Int("missing", 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, i, test.ShouldEqual, 7)
	_, err = sampleAttributeMap.Int("bad_int", 0)
	test.That(t, err, test.ShouldNotBeNil)

	s, err := sampleAttributeMap.String("name", "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s, test.ShouldEqual, "cam0")
	_, err = sampleAttributeMap.String("bad_name", "")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bad_name")
}

type sampleAttrs struct {
	Source  string            `json:"source"`
	Width   int               `json:"width"`
	Loop    bool              `json:"loop"`
	Timeout time.Duration     `json:"timeout"`
	Args    map[string]string `json:"args"`
}

func TestDecodeAttributes(t *testing.T) {
	attrs, err := DecodeAttributes[sampleAttrs](AttributeMap{
		"source":  "video.mp4",
		"width":   float64(640),
		"loop":    "true",
		"timeout": "250ms",
		"args":    map[string]interface{}{"rtsp_transport": "tcp"},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, attrs.Source, test.ShouldEqual, "video.mp4")
	test.That(t, attrs.Width, test.ShouldEqual, 640)
	test.That(t, attrs.Loop, test.ShouldBeTrue)
	test.That(t, attrs.Timeout, test.ShouldEqual, 250*time.Millisecond)
	test.That(t, attrs.Args, test.ShouldResemble, map[string]string{"rtsp_transport": "tcp"})

	_, err = DecodeAttributes[sampleAttrs](AttributeMap{"width": "wide"})
	test.That(t, err, test.ShouldNotBeNil)

	empty, err := DecodeAttributes[sampleAttrs](nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Width, test.ShouldEqual, 0)
}
