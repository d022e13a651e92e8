package scene

import (
	"fmt"
	"math"
)

// Geometry is a shape descriptor. The set of variants is closed.
type Geometry interface {
	Named
	Lowerer
	Rename(name string)
	HasName() bool
	geometry()
}

// SphereParams configures a SphereGeometry.
type SphereParams struct {
	Radius         float64
	WidthSegments  int
	HeightSegments int
	PhiStart       float64
	PhiLength      float64
	ThetaStart     float64
	ThetaLength    float64
}

// DefaultSphereParams returns the renderer's default sphere.
func DefaultSphereParams() SphereParams {
	return SphereParams{
		Radius:         1,
		WidthSegments:  32,
		HeightSegments: 16,
		PhiLength:      fullTurn,
		ThetaLength:    math.Pi,
	}
}

// SphereGeometry is a UV sphere.
type SphereGeometry struct {
	Element
	SphereParams
}

// NewSphereGeometry validates p and returns a named sphere.
func NewSphereGeometry(name string, p SphereParams) (*SphereGeometry, error) {
	if err := checkNonNegative("radius", p.Radius); err != nil {
		return nil, err
	}
	if err := checkSegments("widthSegments", p.WidthSegments); err != nil {
		return nil, err
	}
	if err := checkSegments("heightSegments", p.HeightSegments); err != nil {
		return nil, err
	}
	if err := checkFinite("phiStart", p.PhiStart); err != nil {
		return nil, err
	}
	if err := checkAngle("phiLength", p.PhiLength); err != nil {
		return nil, err
	}
	if err := checkFinite("thetaStart", p.ThetaStart); err != nil {
		return nil, err
	}
	if err := checkAngle("thetaLength", p.ThetaLength); err != nil {
		return nil, err
	}
	return &SphereGeometry{Element: newElement(name), SphereParams: p}, nil
}

func (*SphereGeometry) geometry() {}

// Lower returns the add_geometry payload.
func (g *SphereGeometry) Lower() map[string]any {
	out := g.Element.lower()
	out["type"] = "SphereGeometry"
	out["radius"] = g.Radius
	out["widthSegments"] = g.WidthSegments
	out["heightSegments"] = g.HeightSegments
	out["phiStart"] = g.PhiStart
	out["phiLength"] = g.PhiLength
	out["thetaStart"] = g.ThetaStart
	out["thetaLength"] = g.ThetaLength
	return out
}

// PlaneParams configures a PlaneGeometry.
type PlaneParams struct {
	Width          float64
	Height         float64
	WidthSegments  int
	HeightSegments int
}

// DefaultPlaneParams returns a unit plane with a single segment.
func DefaultPlaneParams() PlaneParams {
	return PlaneParams{Width: 1, Height: 1, WidthSegments: 1, HeightSegments: 1}
}

// PlaneGeometry is a flat rectangle in the XY plane.
type PlaneGeometry struct {
	Element
	PlaneParams
}

// NewPlaneGeometry validates p and returns a named plane.
func NewPlaneGeometry(name string, p PlaneParams) (*PlaneGeometry, error) {
	if err := checkNonNegative("width", p.Width); err != nil {
		return nil, err
	}
	if err := checkNonNegative("height", p.Height); err != nil {
		return nil, err
	}
	if err := checkSegments("widthSegments", p.WidthSegments); err != nil {
		return nil, err
	}
	if err := checkSegments("heightSegments", p.HeightSegments); err != nil {
		return nil, err
	}
	return &PlaneGeometry{Element: newElement(name), PlaneParams: p}, nil
}

func (*PlaneGeometry) geometry() {}

// Lower returns the add_geometry payload.
func (g *PlaneGeometry) Lower() map[string]any {
	out := g.Element.lower()
	out["type"] = "PlaneGeometry"
	out["width"] = g.Width
	out["height"] = g.Height
	out["widthSegments"] = g.WidthSegments
	out["heightSegments"] = g.HeightSegments
	return out
}

// CylinderParams configures a CylinderGeometry. The axis of rotational
// symmetry is the Y axis.
type CylinderParams struct {
	RadiusTop      float64
	RadiusBottom   float64
	Height         float64
	RadialSegments int
	HeightSegments int
	OpenEnded      bool
	ThetaStart     float64
	ThetaLength    float64
}

// DefaultCylinderParams returns a unit cylinder.
func DefaultCylinderParams() CylinderParams {
	return CylinderParams{
		RadiusTop:      1,
		RadiusBottom:   1,
		Height:         1,
		RadialSegments: 32,
		HeightSegments: 1,
		ThetaLength:    fullTurn,
	}
}

// ConeParams configures a cone. A cone is a cylinder whose top radius is zero.
type ConeParams struct {
	Radius         float64
	Height         float64
	RadialSegments int
	HeightSegments int
	OpenEnded      bool
	ThetaStart     float64
	ThetaLength    float64
}

// DefaultConeParams returns a unit cone.
func DefaultConeParams() ConeParams {
	return ConeParams{
		Radius:         1,
		Height:         1,
		RadialSegments: 32,
		HeightSegments: 1,
		ThetaLength:    fullTurn,
	}
}

// CylinderGeometry is a cylinder or, when built with NewConeGeometry, a cone.
type CylinderGeometry struct {
	Element
	CylinderParams
	cone bool
}

// NewCylinderGeometry validates p and returns a named cylinder.
func NewCylinderGeometry(name string, p CylinderParams) (*CylinderGeometry, error) {
	if err := validateCylinder(p); err != nil {
		return nil, err
	}
	return &CylinderGeometry{Element: newElement(name), CylinderParams: p}, nil
}

// NewConeGeometry returns a cylinder with its top radius fixed at zero.
func NewConeGeometry(name string, p ConeParams) (*CylinderGeometry, error) {
	cp := CylinderParams{
		RadiusTop:      0,
		RadiusBottom:   p.Radius,
		Height:         p.Height,
		RadialSegments: p.RadialSegments,
		HeightSegments: p.HeightSegments,
		OpenEnded:      p.OpenEnded,
		ThetaStart:     p.ThetaStart,
		ThetaLength:    p.ThetaLength,
	}
	if err := validateCylinder(cp); err != nil {
		return nil, err
	}
	return &CylinderGeometry{Element: newElement(name), CylinderParams: cp, cone: true}, nil
}

func validateCylinder(p CylinderParams) error {
	if err := checkNonNegative("radiusTop", p.RadiusTop); err != nil {
		return err
	}
	if err := checkNonNegative("radiusBottom", p.RadiusBottom); err != nil {
		return err
	}
	if err := checkNonNegative("height", p.Height); err != nil {
		return err
	}
	if err := checkSegments("radialSegments", p.RadialSegments); err != nil {
		return err
	}
	if err := checkSegments("heightSegments", p.HeightSegments); err != nil {
		return err
	}
	if err := checkFinite("thetaStart", p.ThetaStart); err != nil {
		return err
	}
	return checkAngle("thetaLength", p.ThetaLength)
}

// IsCone reports whether the geometry was built as a cone.
func (g *CylinderGeometry) IsCone() bool {
	return g.cone
}

func (*CylinderGeometry) geometry() {}

// Lower returns the add_geometry payload. Cones drop radiusTop and report
// their bottom radius as radius.
func (g *CylinderGeometry) Lower() map[string]any {
	out := g.Element.lower()
	out["type"] = "CylinderGeometry"
	out["radiusTop"] = g.RadiusTop
	out["radiusBottom"] = g.RadiusBottom
	out["height"] = g.Height
	out["radialSegments"] = g.RadialSegments
	out["heightSegments"] = g.HeightSegments
	out["openEnded"] = g.OpenEnded
	out["thetaStart"] = g.ThetaStart
	out["thetaLength"] = g.ThetaLength

	if g.cone {
		out["type"] = "ConeGeometry"
		out["radius"] = g.RadiusBottom
		delete(out, "radiusTop")
		delete(out, "radiusBottom")
	}
	return out
}

func checkSegments(field string, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %s must be a positive integer, got %d", ErrValidation, field, n)
	}
	return nil
}

func checkAngle(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > fullTurn {
		return fmt.Errorf("%w: %s must be within [0, 2π], got %g", ErrValidation, field, v)
	}
	return nil
}

// checkNonNegative also rejects +Inf, which cannot be encoded as JSON.
func checkNonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s must be a finite non-negative number, got %g", ErrValidation, field, v)
	}
	return nil
}

func checkFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be finite, got %g", ErrValidation, field, v)
	}
	return nil
}
