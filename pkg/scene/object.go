package scene

import (
	"fmt"
	"slices"
)

// ObjectKind selects how an Object3D is lowered.
type ObjectKind string

const (
	KindSimpleMesh    ObjectKind = "SimpleMesh"
	KindSimpleMeshRef ObjectKind = "SimpleMeshRef"
	KindGLTF          ObjectKind = "GLTF"
)

// DefaultUp is the up vector every object starts with.
var DefaultUp = [3]float64{0, 1, 0}

// Object3D is a placeable node in the scene graph.
type Object3D struct {
	Element
	kind ObjectKind

	Position      [3]float64
	Quaternion    [4]float64
	Scale         [3]float64
	Up            [3]float64
	Visible       bool
	CastShadow    bool
	ReceiveShadow bool

	// parent is a lookup aid only; it never owns the object.
	parent   *Object3D
	children []*Object3D

	// SimpleMesh
	geometry Geometry
	material *Material

	// SimpleMeshRef
	geometryName string
	materialName string

	// GLTF
	path string
}

func newObject3D(name string, kind ObjectKind) *Object3D {
	return &Object3D{
		Element:    newElement(name),
		kind:       kind,
		Quaternion: [4]float64{1, 0, 0, 0},
		Scale:      [3]float64{1, 1, 1},
		Up:         DefaultUp,
		Visible:    true,
	}
}

// NewSimpleMesh returns a mesh that carries its geometry and material inline.
// A nil material is replaced by a default Lambert material. Unnamed
// geometries and materials are named after the mesh.
func NewSimpleMesh(name string, geometry Geometry, material *Material) (*Object3D, error) {
	if geometry == nil {
		return nil, fmt.Errorf("%w: simple mesh %q requires a geometry", ErrValidation, name)
	}
	o := newObject3D(name, KindSimpleMesh)
	if material == nil {
		material = NewMeshLambertMaterial("", DefaultLambertColor)
	}
	if !geometry.HasName() {
		geometry.Rename(o.Name() + "_geometry")
	}
	if !material.HasName() {
		material.Rename(o.Name() + "_material")
	}
	o.geometry = geometry
	o.material = material
	return o, nil
}

// NewSimpleMeshRef returns a mesh referring to a geometry and material the
// renderer already knows by name. The references are not checked.
func NewSimpleMeshRef(name, geometryName, materialName string) (*Object3D, error) {
	if geometryName == "" {
		return nil, fmt.Errorf("%w: simple mesh ref %q requires a geometry name", ErrValidation, name)
	}
	if materialName == "" {
		return nil, fmt.Errorf("%w: simple mesh ref %q requires a material name", ErrValidation, name)
	}
	o := newObject3D(name, KindSimpleMeshRef)
	o.geometryName = geometryName
	o.materialName = materialName
	return o, nil
}

// NewGLTF returns an object loaded by the renderer from a glTF asset.
func NewGLTF(name, path string) (*Object3D, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: gltf %q requires a path", ErrValidation, name)
	}
	o := newObject3D(name, KindGLTF)
	o.path = path
	return o, nil
}

// Kind returns the object variant.
func (o *Object3D) Kind() ObjectKind {
	return o.kind
}

// Geometry returns the inline geometry of a SimpleMesh, nil otherwise.
func (o *Object3D) Geometry() Geometry {
	return o.geometry
}

// Material returns the inline material of a SimpleMesh, nil otherwise.
func (o *Object3D) Material() *Material {
	return o.material
}

// Parent returns the current parent, or nil.
func (o *Object3D) Parent() *Object3D {
	return o.parent
}

// Children returns a copy of the child list.
func (o *Object3D) Children() []*Object3D {
	return slices.Clone(o.children)
}

// AddChild attaches child to o, detaching it from any previous parent.
func (o *Object3D) AddChild(child *Object3D) {
	if child == nil || child == o || child.parent == o {
		return
	}
	if child.parent != nil {
		child.parent.removeChild(child)
	}
	child.parent = o
	o.children = append(o.children, child)
}

// Detach removes o from its parent's child list.
func (o *Object3D) Detach() {
	if o.parent != nil {
		o.parent.removeChild(o)
	}
}

func (o *Object3D) removeChild(child *Object3D) {
	o.children = slices.DeleteFunc(o.children, func(c *Object3D) bool { return c == child })
	child.parent = nil
}

// Lower returns the add_object payload.
func (o *Object3D) Lower() map[string]any {
	out := o.Element.lower()
	out["object_type"] = string(o.kind)
	out["position"] = o.Position
	out["quaternion"] = o.Quaternion
	out["scale"] = o.Scale
	out["up"] = o.Up
	out["visible"] = o.Visible
	out["castShadow"] = o.CastShadow
	out["receiveShadow"] = o.ReceiveShadow

	switch o.kind {
	case KindSimpleMesh:
		out["geometry"] = o.geometry.Lower()
		out["material"] = o.material.Lower()
	case KindSimpleMeshRef:
		out["geometry_name"] = o.geometryName
		out["material_name"] = o.materialName
	case KindGLTF:
		out["path"] = o.path
	}
	return out
}
