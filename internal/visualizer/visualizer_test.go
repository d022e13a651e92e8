package visualizer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threepy/vizserver/internal/geo"
	"github.com/threepy/vizserver/internal/hub"
	"github.com/threepy/vizserver/internal/registry"
	"github.com/threepy/vizserver/internal/storage"
	"github.com/threepy/vizserver/internal/storage/memory"
	"github.com/threepy/vizserver/pkg/scene"
	"github.com/threepy/vizserver/pkg/streaming"
)

var _ Broadcaster = (*hub.Manager)(nil)

// fakeHub records every envelope as wire JSON.
type fakeHub struct {
	mu        sync.Mutex
	broadcast []string
	direct    map[string][]string
	err       error
}

func (f *fakeHub) Broadcast(env streaming.Envelope) error {
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, string(data))
	return nil
}

func (f *fakeHub) SendToWait(_ context.Context, connID string, env streaming.Envelope) error {
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.direct == nil {
		f.direct = map[string][]string{}
	}
	f.direct[connID] = append(f.direct[connID], string(data))
	return nil
}

func (f *fakeHub) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.broadcast...)
}

// messageType returns the single key of a wire message.
func messageType(t *testing.T, msg string) string {
	t.Helper()
	var env streaming.Envelope
	require.NoError(t, json.Unmarshal([]byte(msg), &env))
	return env.Type
}

func payloadOf(t *testing.T, msg string) map[string]any {
	t.Helper()
	var env map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg), &env))
	require.Len(t, env, 1)
	for _, p := range env {
		return p
	}
	return nil
}

func newTestVisualizer(t *testing.T) (*Visualizer, *fakeHub, *memory.Backend) {
	t.Helper()
	h := &fakeHub{}
	journal := memory.New(memory.Config{})
	return New(Dependencies{Hub: h, Journal: journal}), h, journal
}

func mustSphere(t *testing.T, name string) *scene.Object3D {
	t.Helper()
	g, err := scene.NewSphereGeometry("", scene.DefaultSphereParams())
	require.NoError(t, err)
	obj, err := scene.NewSimpleMesh(name, g, scene.NewMeshLambertMaterial("", 0xff0000))
	require.NoError(t, err)
	return obj
}

func TestAddGeometryAndMaterial(t *testing.T) {
	v, h, _ := newTestVisualizer(t)

	g, err := scene.NewConeGeometry("cone", scene.DefaultConeParams())
	require.NoError(t, err)
	require.NoError(t, v.AddGeometry(g))

	m := scene.NewMeshLambertMaterial("red", 0xff0000)
	require.NoError(t, v.AddMaterial(m))

	sent := h.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, streaming.TypeAddGeometry, messageType(t, sent[0]))
	assert.Equal(t, "ConeGeometry", payloadOf(t, sent[0])["type"])
	assert.Equal(t, streaming.TypeAddMaterial, messageType(t, sent[1]))
	assert.Equal(t, m.UUID(), payloadOf(t, sent[1])["uuid"])

	assert.True(t, v.Registry().Has("cone"))
	assert.True(t, v.Registry().Has("red"))
}

func TestAddObject_WithParentSendsTwoMessagesInOrder(t *testing.T) {
	v, h, _ := newTestVisualizer(t)
	obj := mustSphere(t, "sphere")

	require.NoError(t, v.AddObject(obj, registry.RootName))

	sent := h.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, streaming.TypeAddObject, messageType(t, sent[0]))
	assert.JSONEq(t, `{"add_child":{"parent_name":"scene","child_name":"sphere"}}`, sent[1])

	obj0 := payloadOf(t, sent[0])
	assert.Equal(t, "SimpleMesh", obj0["object_type"])
	assert.Equal(t, "sphere", obj0["name"])

	// The mesh and its synthesized parts are addressable.
	for _, name := range []string{"sphere", "sphere_geometry", "sphere_material"} {
		assert.True(t, v.Registry().Has(name), name)
	}
}

func TestAddObject_NoParent(t *testing.T) {
	v, h, _ := newTestVisualizer(t)
	require.NoError(t, v.AddObject(mustSphere(t, "ball"), ""))
	require.Len(t, h.sent(), 1)
}

func TestAddObject_UnknownParentSendsNothing(t *testing.T) {
	v, h, _ := newTestVisualizer(t)

	err := v.AddObject(mustSphere(t, "ball"), "nowhere")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Empty(t, h.sent())
	assert.False(t, v.Registry().Has("ball"))
}

func TestAddObject_LinksParent(t *testing.T) {
	v, _, _ := newTestVisualizer(t)
	parent := mustSphere(t, "earth")
	child := mustSphere(t, "moon")

	require.NoError(t, v.AddObject(parent, registry.RootName))
	require.NoError(t, v.AddObject(child, "earth"))

	assert.Same(t, parent, child.Parent())
	assert.Equal(t, []*scene.Object3D{child}, parent.Children())
}

func TestSetProps(t *testing.T) {
	v, h, _ := newTestVisualizer(t)
	require.NoError(t, v.AddObject(mustSphere(t, "sphere"), ""))

	props := map[string]any{"position": []float64{0, 0, 0.5}}
	require.NoError(t, v.SetProps("sphere", props))

	sent := h.sent()
	assert.JSONEq(t, `{"set_props":{"name":"sphere","position":[0,0,0.5]}}`, sent[len(sent)-1])
	assert.NotContains(t, props, "name")
}

func TestSetProps_NameOverwritten(t *testing.T) {
	v, h, _ := newTestVisualizer(t)
	require.NoError(t, v.AddObject(mustSphere(t, "sphere"), ""))

	props := map[string]any{"name": "other", "visible": false}
	require.NoError(t, v.SetProps("sphere", props))

	sent := h.sent()
	assert.JSONEq(t, `{"set_props":{"name":"sphere","visible":false}}`, sent[len(sent)-1])
	assert.Equal(t, "other", props["name"])
}

func TestSetProps_UnknownName(t *testing.T) {
	v, h, _ := newTestVisualizer(t)
	err := v.SetProps("ghost", map[string]any{"visible": true})
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Empty(t, h.sent())
}

func TestAddChild(t *testing.T) {
	v, h, _ := newTestVisualizer(t)
	require.NoError(t, v.AddObject(mustSphere(t, "a"), ""))
	require.NoError(t, v.AddObject(mustSphere(t, "b"), ""))

	require.NoError(t, v.AddChild("a", "b"))
	sent := h.sent()
	assert.JSONEq(t, `{"add_child":{"parent_name":"a","child_name":"b"}}`, sent[len(sent)-1])

	before := len(h.sent())
	assert.ErrorIs(t, v.AddChild("a", "missing"), registry.ErrNotFound)
	assert.ErrorIs(t, v.AddChild("missing", "a"), registry.ErrNotFound)
	assert.Len(t, h.sent(), before)
}

func TestAnimations(t *testing.T) {
	v, h, _ := newTestVisualizer(t)

	track, err := scene.NewKeyframeTrack(".rotation[y]", []float64{0, 1}, []float64{0, 3.14}, scene.InterpolateLinear, scene.ValueNumber)
	require.NoError(t, err)
	clip, err := scene.NewAnimationClip("spin", 1, track)
	require.NoError(t, err)

	require.NoError(t, v.AddAnimation(clip))
	require.NoError(t, v.LoadAnimation("spin", ""))

	sent := h.sent()
	require.Len(t, sent, 2)
	p := payloadOf(t, sent[0])
	assert.Equal(t, "spin", p["name"])
	assert.Equal(t, float64(scene.NormalAnimationBlendMode), p["blendMode"])
	assert.JSONEq(t, `{"load_animation":{"clip_name":"spin","root_name":"scene"}}`, sent[1])
}

func TestLoadAnimation_GLTFClipAndUnknownRoot(t *testing.T) {
	v, h, _ := newTestVisualizer(t)

	// Clip names are not resolved: they may come from a GLTF file.
	require.NoError(t, v.LoadAnimation("Walk", registry.RootName))
	assert.ErrorIs(t, v.LoadAnimation("Walk", "robot"), registry.ErrNotFound)
	assert.Len(t, h.sent(), 1)
}

func TestCameraControls(t *testing.T) {
	v, h, _ := newTestVisualizer(t)

	pos := [3]float64{0, 1, 2}
	target := [3]float64{0, 0, 0}

	require.NoError(t, v.CameraControls("main", CameraOptions{Position: &pos, Target: &target}))
	require.NoError(t, v.CameraControls("main", CameraOptions{Target: &target}))
	require.NoError(t, v.CameraControls("main", CameraOptions{Position: &pos, EnableTransition: true}))
	require.NoError(t, v.CameraControls("main", CameraOptions{}))

	sent := h.sent()
	require.Len(t, sent, 4)
	assert.JSONEq(t, `{"camera_controls":{"controls_name":"main","enable_transition":false,"setLookAt":[0,1,2,0,0,0]}}`, sent[0])
	assert.JSONEq(t, `{"camera_controls":{"controls_name":"main","enable_transition":false,"setTarget":[0,0,0]}}`, sent[1])
	assert.JSONEq(t, `{"camera_controls":{"controls_name":"main","enable_transition":true,"setPosition":[0,1,2]}}`, sent[2])
	assert.JSONEq(t, `{"camera_controls":{"controls_name":"main","enable_transition":false}}`, sent[3])
}

func TestPlaceGeodetic(t *testing.T) {
	v, h, _ := newTestVisualizer(t)
	require.NoError(t, v.AddObject(mustSphere(t, "sat"), ""))

	require.NoError(t, v.PlaceGeodetic("sat", 0, 90, 0, 0.001))
	sent := h.sent()
	p := payloadOf(t, sent[len(sent)-1])
	assert.Equal(t, "sat", p["name"])
	pos, ok := p["position"].([]any)
	require.True(t, ok)
	require.Len(t, pos, 3)
	assert.InDelta(t, 6356.752, pos[1].(float64), 0.01)

	assert.ErrorIs(t, v.PlaceGeodetic("sat", 0, 95, 0, 1), scene.ErrValidation)
	assert.ErrorIs(t, v.PlaceGeodetic("ghost", 0, 0, 0, 1), registry.ErrNotFound)
}

func TestAnimatePath(t *testing.T) {
	v, h, _ := newTestVisualizer(t)
	require.NoError(t, v.AddObject(mustSphere(t, "drone"), ""))

	path, err := geo.ParsePath("[[0,0,0],[0,10,0]]")
	require.NoError(t, err)

	clip, err := v.AnimatePath("fly", "drone", path, 2)
	require.NoError(t, err)
	require.Len(t, clip.Tracks, 1)
	assert.Equal(t, "drone.position", clip.Tracks[0].Name)

	sent := h.sent()
	assert.Equal(t, streaming.TypeAddAnimation, messageType(t, sent[len(sent)-1]))
	assert.True(t, v.Registry().Has("fly"))

	_, err = v.AnimatePath("fly", "ghost", path, 2)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestJournalAndReplay(t *testing.T) {
	v, h, journal := newTestVisualizer(t)
	require.NoError(t, v.AddObject(mustSphere(t, "ball"), registry.RootName))
	require.NoError(t, v.SetProps("ball", map[string]any{"visible": false}))
	assert.Equal(t, 3, journal.Len())

	require.NoError(t, v.Replay(context.Background(), "late"))

	h.mu.Lock()
	replayed := h.direct["late"]
	h.mu.Unlock()
	assert.Equal(t, h.sent(), replayed)
}

func TestReplay_NoJournal(t *testing.T) {
	h := &fakeHub{}
	v := New(Dependencies{Hub: h})
	require.NoError(t, v.Replay(context.Background(), "late"))
	assert.Empty(t, h.direct)
}

type forwardOnly struct{ storage.Backend }

func (forwardOnly) Append(streaming.Envelope) error { return nil }
func (forwardOnly) Replay(func(streaming.Envelope) error) error {
	return storage.ErrReplayUnsupported
}

func TestReplay_UnsupportedIsNotAnError(t *testing.T) {
	v := New(Dependencies{Hub: &fakeHub{}, Journal: forwardOnly{}})
	assert.NoError(t, v.Replay(context.Background(), "late"))
}

func TestBroadcastFailure(t *testing.T) {
	h := &fakeHub{err: hub.ErrManagerStopped}
	journal := memory.New(memory.Config{})
	v := New(Dependencies{Hub: h, Journal: journal})

	g, err := scene.NewPlaneGeometry("floor", scene.PlaneParams{Width: 1, Height: 1, WidthSegments: 1, HeightSegments: 1})
	require.NoError(t, err)

	err = v.AddGeometry(g)
	assert.True(t, errors.Is(err, hub.ErrManagerStopped))
	assert.False(t, v.Registry().Has("floor"))
	assert.Zero(t, journal.Len())
}

func TestReset(t *testing.T) {
	v, _, journal := newTestVisualizer(t)
	require.NoError(t, v.AddObject(mustSphere(t, "ball"), ""))

	require.NoError(t, v.Reset())
	assert.False(t, v.Registry().Has("ball"))
	assert.True(t, v.Registry().Has(registry.RootName))
	assert.Zero(t, journal.Len())
}

func TestNilEntities(t *testing.T) {
	v, h, _ := newTestVisualizer(t)
	assert.ErrorIs(t, v.AddGeometry(nil), scene.ErrValidation)
	assert.ErrorIs(t, v.AddMaterial(nil), scene.ErrValidation)
	assert.ErrorIs(t, v.AddObject(nil, ""), scene.ErrValidation)
	assert.ErrorIs(t, v.AddAnimation(nil), scene.ErrValidation)
	assert.Empty(t, h.sent())
}
