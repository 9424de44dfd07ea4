package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a free-form set of implementation specific attributes, as decoded from JSON.
type AttributeMap map[string]interface{}

// Has returns whether the named attribute is present.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// String returns the named attribute as a string or def when it is absent.
func (am AttributeMap) String(name, def string) (string, error) {
	x, has := am[name]
	if !has || x == nil {
		return def, nil
	}
	if s, ok := x.(string); ok {
		return s, nil
	}
	return "", errors.Errorf("wanted a string for %q but got (%v) %T", name, x, x)
}

// Int returns the named attribute as an int or def when it is absent. JSON numbers decode to
// float64 and are truncated.
func (am AttributeMap) Int(name string, def int) (int, error) {
	x, has := am[name]
	if !has || x == nil {
		return def, nil
	}
	switch v := x.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	}
	return 0, errors.Errorf("wanted an int for %q but got (%v) %T", name, x, x)
}

// Bool returns the named attribute as a bool or def when it is absent.
func (am AttributeMap) Bool(name string, def bool) (bool, error) {
	x, has := am[name]
	if !has || x == nil {
		return def, nil
	}
	if b, ok := x.(bool); ok {
		return b, nil
	}
	return false, errors.Errorf("wanted a bool for %q but got (%v) %T", name, x, x)
}

// Decode decodes the attributes into the struct pointed to by into, using its json tags.
// Numeric strings are accepted for numeric fields and durations may be written as "10s".
func (am AttributeMap) Decode(into interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           into,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]interface{}(am)); err != nil {
		return errors.Wrap(err, "failed to decode attributes")
	}
	return nil
}

// DecodeAttributes decodes attributes into a freshly allocated T.
func DecodeAttributes[T any](am AttributeMap) (*T, error) {
	var out T
	if err := am.Decode(&out); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("converting attributes to %T", out))
	}
	return &out, nil
}
