package streaming

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_MarshalSingleKey(t *testing.T) {
	env := NewEnvelope(TypeAddChild, AddChildPayload{ParentName: "scene", ChildName: "ball"})

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"add_child":{"parent_name":"scene","child_name":"ball"}}`, string(data))
}

func TestEnvelope_MarshalRequiresType(t *testing.T) {
	_, err := json.Marshal(Envelope{Payload: 1})
	assert.Error(t, err)
}

func TestEnvelope_Unmarshal(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"set_props":{"name":"ball","visible":false}}`), &env))
	assert.Equal(t, TypeSetProps, env.Type)

	raw, ok := env.Payload.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"ball","visible":false}`, string(raw))

	assert.Error(t, json.Unmarshal([]byte(`{"a":1,"b":2}`), &env))
	assert.Error(t, json.Unmarshal([]byte(`{}`), &env))
}

func TestCameraControlsPayload_OmitsUnsetKeys(t *testing.T) {
	target := [3]float64{0, 0, 0}
	data, err := json.Marshal(CameraControlsPayload{ControlsName: "main", SetTarget: &target})
	require.NoError(t, err)
	assert.JSONEq(t, `{"controls_name":"main","enable_transition":false,"setTarget":[0,0,0]}`, string(data))
}

func TestInboundMessage_Init(t *testing.T) {
	var msg InboundMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"init","client":"visualizer"}`), &msg))
	assert.Equal(t, TypeInit, msg.Type)
	assert.Equal(t, ClientVisualizer, msg.Client)
}
