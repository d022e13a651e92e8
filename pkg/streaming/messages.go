// Package streaming defines the JSON messages exchanged with viewer clients.
package streaming

import (
	"encoding/json"
	"fmt"
)

// Message type constants matching the viewer protocol.
const (
	TypeAddGeometry    = "add_geometry"
	TypeAddMaterial    = "add_material"
	TypeAddObject      = "add_object"
	TypeAddChild       = "add_child"
	TypeSetProps       = "set_props"
	TypeAddAnimation   = "add_animation"
	TypeLoadAnimation  = "load_animation"
	TypeCameraControls = "camera_controls"
)

// Inbound message constants.
const (
	TypeInit         = "init"
	ClientVisualizer = "visualizer"
	ClientRelay      = "relay"
)

// Envelope is a single outbound message. On the wire it is an object with
// exactly one key, the message type, whose value is the payload.
type Envelope struct {
	Type    string
	Payload any
}

// NewEnvelope builds an envelope.
func NewEnvelope(msgType string, payload any) Envelope {
	return Envelope{Type: msgType, Payload: payload}
}

// MarshalJSON encodes the envelope as {"<type>": <payload>}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Type == "" {
		return nil, fmt.Errorf("envelope has no message type")
	}
	return json.Marshal(map[string]any{e.Type: e.Payload})
}

// UnmarshalJSON decodes a single-key object. The payload is kept as
// json.RawMessage.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("envelope must have exactly one key, got %d", len(raw))
	}
	for k, v := range raw {
		e.Type = k
		e.Payload = v
	}
	return nil
}

// AddChildPayload links a child to a parent by name.
type AddChildPayload struct {
	ParentName string `json:"parent_name"`
	ChildName  string `json:"child_name"`
}

// LoadAnimationPayload plays a clip the renderer already knows.
type LoadAnimationPayload struct {
	ClipName string `json:"clip_name"`
	RootName string `json:"root_name"`
}

// CameraControlsPayload moves the named camera controls. At most one of the
// positional keys is set.
type CameraControlsPayload struct {
	ControlsName     string      `json:"controls_name"`
	EnableTransition bool        `json:"enable_transition"`
	SetLookAt        *[6]float64 `json:"setLookAt,omitempty"`
	SetPosition      *[3]float64 `json:"setPosition,omitempty"`
	SetTarget        *[3]float64 `json:"setTarget,omitempty"`
}

// InboundMessage is what clients send. Only the init handshake is
// interpreted; everything else is logged.
type InboundMessage struct {
	Type   string `json:"type"`
	Client string `json:"client,omitempty"`
}
