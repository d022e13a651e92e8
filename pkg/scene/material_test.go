package scene

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeshLambertMaterial_Lower(t *testing.T) {
	m := NewMeshLambertMaterial("red", 0xff0000)

	out := m.Lower()
	assert.Equal(t, m.UUID(), out["uuid"])
	assert.Equal(t, "red", out["name"])
	assert.Equal(t, "MeshLambertMaterial", out["type"])
	assert.Equal(t, 0xff0000, out["color"])
	assert.NotContains(t, out, "transparent")
	assert.NotContains(t, out, "opacity")
}

func TestMaterial_OpacityDefaultsToOne(t *testing.T) {
	m := NewMaterial("base")
	assert.Equal(t, 1.0, m.Opacity())
	assert.False(t, m.Transparent())
	assert.Equal(t, "Material", m.Lower()["type"])
}

func TestMaterial_OpacitySequence(t *testing.T) {
	m := NewMeshLambertMaterial("glass", DefaultLambertColor)

	for _, v := range []float64{0.5, 1, 0.25, 0.1, 3, 0.75} {
		require.NoError(t, m.SetOpacity(v))
		out := m.Lower()
		if v >= 1 {
			assert.NotContains(t, out, "transparent", "after writing %v", v)
			assert.NotContains(t, out, "opacity", "after writing %v", v)
			assert.Equal(t, 1.0, m.Opacity())
		} else {
			assert.Equal(t, true, out["transparent"], "after writing %v", v)
			assert.Equal(t, v, out["opacity"], "after writing %v", v)
			assert.Equal(t, v, m.Opacity())
		}
	}
}

func TestMaterial_SetProp(t *testing.T) {
	m := NewMaterial("wire")

	require.NoError(t, m.SetProp("wireframe", true))
	v, ok := m.Prop("wireframe")
	require.True(t, ok)
	assert.Equal(t, true, v)
	assert.Equal(t, true, m.Lower()["wireframe"])

	require.NoError(t, m.SetProp("opacity", 0.4))
	assert.Equal(t, 0.4, m.Opacity())

	require.NoError(t, m.SetProp("transparent", false))
	assert.Equal(t, 1.0, m.Opacity())
	assert.NotContains(t, m.Lower(), "opacity")
}

func TestMaterial_SetPropRejectsReservedKeys(t *testing.T) {
	m := NewMaterial("m")
	for _, key := range []string{"uuid", "name", "type"} {
		err := m.SetProp(key, "x")
		assert.ErrorIs(t, err, ErrValidation, key)
	}
	assert.ErrorIs(t, m.SetProp("opacity", "half"), ErrValidation)
}

func TestMaterial_SetOpacityRejectsNonFinite(t *testing.T) {
	m := NewMeshLambertMaterial("glass", DefaultLambertColor)
	require.NoError(t, m.SetOpacity(0.5))

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, m.SetOpacity(v), ErrValidation, "%v", v)
		assert.ErrorIs(t, m.SetProp("opacity", v), ErrValidation, "%v", v)
		assert.Equal(t, 0.5, m.Opacity())
	}

	_, err := json.Marshal(m.Lower())
	assert.NoError(t, err)
}
