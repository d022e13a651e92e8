package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSimpleMesh_SynthesizesNames(t *testing.T) {
	g, err := NewSphereGeometry("", DefaultSphereParams())
	require.NoError(t, err)
	m := NewMeshLambertMaterial("", 0x00ff00)

	obj, err := NewSimpleMesh("ball", g, m)
	require.NoError(t, err)

	assert.Equal(t, "ball_geometry", g.Name())
	assert.Equal(t, "ball_material", m.Name())
	assert.Same(t, m, obj.Material())
	assert.Equal(t, KindSimpleMesh, obj.Kind())
}

func TestNewSimpleMesh_KeepsExplicitNames(t *testing.T) {
	g, err := NewSphereGeometry("unit", DefaultSphereParams())
	require.NoError(t, err)

	obj, err := NewSimpleMesh("ball", g, nil)
	require.NoError(t, err)

	assert.Equal(t, "unit", g.Name())
	require.NotNil(t, obj.Material())
	assert.Equal(t, "ball_material", obj.Material().Name())
	assert.Equal(t, TypeMeshLambertMaterial, obj.Material().Type)
}

func TestNewSimpleMesh_RequiresGeometry(t *testing.T) {
	_, err := NewSimpleMesh("ball", nil, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSimpleMesh_Lower(t *testing.T) {
	g, err := NewSphereGeometry("g", DefaultSphereParams())
	require.NoError(t, err)
	obj, err := NewSimpleMesh("ball", g, NewMeshLambertMaterial("m", 1))
	require.NoError(t, err)
	obj.Position = [3]float64{1, 2, 3}

	out := obj.Lower()
	assert.Equal(t, obj.UUID(), out["uuid"])
	assert.Equal(t, "ball", out["name"])
	assert.Equal(t, "SimpleMesh", out["object_type"])
	assert.Equal(t, [3]float64{1, 2, 3}, out["position"])
	assert.Equal(t, [4]float64{1, 0, 0, 0}, out["quaternion"])
	assert.Equal(t, [3]float64{1, 1, 1}, out["scale"])
	assert.Equal(t, [3]float64{0, 1, 0}, out["up"])
	assert.Equal(t, true, out["visible"])
	assert.Equal(t, false, out["castShadow"])

	geom, ok := out["geometry"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SphereGeometry", geom["type"])
	mat, ok := out["material"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m", mat["name"])
}

func TestSimpleMesh_LowerIsSnapshot(t *testing.T) {
	g, err := NewPlaneGeometry("g", DefaultPlaneParams())
	require.NoError(t, err)
	obj, err := NewSimpleMesh("floor", g, nil)
	require.NoError(t, err)

	out := obj.Lower()
	obj.Position[0] = 42
	assert.Equal(t, [3]float64{0, 0, 0}, out["position"])
}

func TestSimpleMeshRef_Lower(t *testing.T) {
	obj, err := NewSimpleMeshRef("copy", "unit_sphere", "red")
	require.NoError(t, err)

	out := obj.Lower()
	assert.Equal(t, "SimpleMeshRef", out["object_type"])
	assert.Equal(t, "unit_sphere", out["geometry_name"])
	assert.Equal(t, "red", out["material_name"])
	assert.NotContains(t, out, "geometry")
}

func TestSimpleMeshRef_Validation(t *testing.T) {
	_, err := NewSimpleMeshRef("copy", "", "red")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewSimpleMeshRef("copy", "g", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGLTF_Lower(t *testing.T) {
	obj, err := NewGLTF("sat", "models/sat.glb")
	require.NoError(t, err)

	out := obj.Lower()
	assert.Equal(t, "GLTF", out["object_type"])
	assert.Equal(t, "models/sat.glb", out["path"])

	_, err = NewGLTF("sat", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestObject3D_AddChildReparents(t *testing.T) {
	a, err := NewGLTF("a", "a.glb")
	require.NoError(t, err)
	b, err := NewGLTF("b", "b.glb")
	require.NoError(t, err)
	c, err := NewGLTF("c", "c.glb")
	require.NoError(t, err)

	a.AddChild(c)
	assert.Same(t, a, c.Parent())
	assert.Len(t, a.Children(), 1)

	b.AddChild(c)
	assert.Same(t, b, c.Parent())
	assert.Empty(t, a.Children())
	assert.Len(t, b.Children(), 1)

	b.AddChild(c)
	assert.Len(t, b.Children(), 1)
}
