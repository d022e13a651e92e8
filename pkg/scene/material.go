package scene

import (
	"fmt"
	"maps"
)

// Material types understood by the renderer.
const (
	TypeMaterial            = "Material"
	TypeMeshLambertMaterial = "MeshLambertMaterial"
)

// DefaultLambertColor is the color of a Lambert material built without one.
const DefaultLambertColor = 255

// transparency is the structured form of the transparent/opacity pair.
type transparency struct {
	enabled bool
	opacity float64
}

func opacityOf(t transparency) float64 {
	if t.enabled {
		return t.opacity
	}
	return 1
}

func withOpacity(v float64) transparency {
	if v >= 1 {
		return transparency{}
	}
	return transparency{enabled: true, opacity: v}
}

// Material is a surface descriptor with an open property bag.
type Material struct {
	Element
	Type  string
	props map[string]any
	alpha transparency
}

// NewMaterial returns a base material with an empty property bag.
func NewMaterial(name string) *Material {
	return &Material{
		Element: newElement(name),
		Type:    TypeMaterial,
		props:   make(map[string]any),
	}
}

// NewMeshLambertMaterial returns a Lambert material with the given color.
func NewMeshLambertMaterial(name string, color int) *Material {
	m := NewMaterial(name)
	m.Type = TypeMeshLambertMaterial
	m.props["color"] = color
	return m
}

// Opacity returns 1 unless the material is transparent.
func (m *Material) Opacity() float64 {
	return opacityOf(m.alpha)
}

// SetOpacity makes the material transparent for v < 1 and opaque otherwise.
// NaN and infinities are rejected and leave the material unchanged.
func (m *Material) SetOpacity(v float64) error {
	if err := checkFinite("opacity", v); err != nil {
		return err
	}
	m.alpha = withOpacity(v)
	return nil
}

// Transparent reports whether the material will be lowered as transparent.
func (m *Material) Transparent() bool {
	return m.alpha.enabled
}

// SetProp stores a renderer property. The identity keys cannot be
// overridden; opacity and transparent go through the opacity rules.
func (m *Material) SetProp(key string, v any) error {
	switch key {
	case "uuid", "name", "type":
		return fmt.Errorf("%w: material property %q is reserved", ErrValidation, key)
	case "opacity":
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("%w: opacity must be a number, got %T", ErrValidation, v)
		}
		return m.SetOpacity(f)
	case "transparent":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: transparent must be a bool, got %T", ErrValidation, v)
		}
		if !b {
			m.alpha = transparency{}
		}
	default:
		if m.props == nil {
			m.props = make(map[string]any)
		}
		m.props[key] = v
	}
	return nil
}

// Prop returns a property from the bag.
func (m *Material) Prop(key string) (any, bool) {
	v, ok := m.props[key]
	return v, ok
}

// Lower returns the add_material payload.
func (m *Material) Lower() map[string]any {
	out := m.Element.lower()
	maps.Copy(out, m.props)
	out["type"] = m.Type
	if m.alpha.enabled {
		out["transparent"] = true
		out["opacity"] = m.alpha.opacity
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
