package scene

import (
	"fmt"
	"slices"
)

// Interpolation is the keyframe interpolation mode, using the renderer's
// numeric constants.
type Interpolation int

const (
	InterpolateDiscrete Interpolation = 2300
	InterpolateLinear   Interpolation = 2301
	InterpolateSmooth   Interpolation = 2302
)

// NormalAnimationBlendMode is the only blend mode clips are sent with.
const NormalAnimationBlendMode = 2500

// Track value types.
const (
	ValueNumber     = "number"
	ValueVector     = "vector"
	ValueQuaternion = "quaternion"
	ValueBool       = "bool"
	ValueColor      = "color"
)

// KeyframeTrack animates one property of one node over time.
type KeyframeTrack struct {
	Name          string
	Times         []float64
	Values        []float64
	Interpolation Interpolation
	ValueType     string
}

// NewKeyframeTrack validates the track shape: times are finite and
// non-decreasing, and every time has the same, non-zero number of finite
// values.
func NewKeyframeTrack(name string, times, values []float64, interp Interpolation, valueType string) (KeyframeTrack, error) {
	if name == "" {
		return KeyframeTrack{}, fmt.Errorf("%w: track name is required", ErrValidation)
	}
	switch interp {
	case InterpolateDiscrete, InterpolateLinear, InterpolateSmooth:
	default:
		return KeyframeTrack{}, fmt.Errorf("%w: unknown interpolation %d", ErrValidation, interp)
	}
	if len(times) == 0 || len(values) == 0 || len(values)%len(times) != 0 {
		return KeyframeTrack{}, fmt.Errorf("%w: track %q has %d values for %d times", ErrValidation, name, len(values), len(times))
	}
	for i, v := range values {
		if err := checkFinite(fmt.Sprintf("track %q value %d", name, i), v); err != nil {
			return KeyframeTrack{}, err
		}
	}
	for i, v := range times {
		if err := checkFinite(fmt.Sprintf("track %q time %d", name, i), v); err != nil {
			return KeyframeTrack{}, err
		}
	}
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			return KeyframeTrack{}, fmt.Errorf("%w: track %q times are not sorted at index %d", ErrValidation, name, i)
		}
	}
	if valueType == "" {
		valueType = ValueNumber
	}
	return KeyframeTrack{
		Name:          name,
		Times:         slices.Clone(times),
		Values:        slices.Clone(values),
		Interpolation: interp,
		ValueType:     valueType,
	}, nil
}

// Lower returns the track as sent inside an add_animation payload.
func (t KeyframeTrack) Lower() map[string]any {
	times := t.Times
	if times == nil {
		times = []float64{}
	}
	values := t.Values
	if values == nil {
		values = []float64{}
	}
	valueType := t.ValueType
	if valueType == "" {
		valueType = ValueNumber
	}
	interp := t.Interpolation
	if interp == 0 {
		interp = InterpolateLinear
	}
	return map[string]any{
		"name":          t.Name,
		"type":          valueType,
		"times":         times,
		"values":        values,
		"interpolation": int(interp),
	}
}

// AnimationClip is an ordered set of tracks played together.
type AnimationClip struct {
	Element
	Duration float64
	Tracks   []KeyframeTrack
}

// NewAnimationClip returns a clip. A negative duration is rejected.
func NewAnimationClip(name string, duration float64, tracks ...KeyframeTrack) (*AnimationClip, error) {
	if err := checkNonNegative("duration", duration); err != nil {
		return nil, err
	}
	return &AnimationClip{
		Element:  newElement(name),
		Duration: duration,
		Tracks:   slices.Clone(tracks),
	}, nil
}

// AddTrack appends a track. Track order is significant to the renderer.
func (c *AnimationClip) AddTrack(t KeyframeTrack) {
	c.Tracks = append(c.Tracks, t)
}

// Lower returns the add_animation payload.
func (c *AnimationClip) Lower() map[string]any {
	out := c.Element.lower()
	tracks := make([]map[string]any, 0, len(c.Tracks))
	for _, t := range c.Tracks {
		tracks = append(tracks, t.Lower())
	}
	out["duration"] = c.Duration
	out["blendMode"] = NormalAnimationBlendMode
	out["tracks"] = tracks
	return out
}
