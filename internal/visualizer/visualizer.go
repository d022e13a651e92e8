// Package visualizer turns scene intents into protocol messages and hands
// them to the viewer hub.
package visualizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/threepy/vizserver/internal/geo"
	"github.com/threepy/vizserver/internal/registry"
	"github.com/threepy/vizserver/internal/storage"
	"github.com/threepy/vizserver/pkg/scene"
	"github.com/threepy/vizserver/pkg/streaming"
)

// Broadcaster delivers envelopes to viewers. *hub.Manager implements it.
type Broadcaster interface {
	Broadcast(env streaming.Envelope) error
	// SendToWait delivers to one connection, waiting for buffer room.
	SendToWait(ctx context.Context, connID string, env streaming.Envelope) error
}

// Dependencies holds the collaborators of a Visualizer.
type Dependencies struct {
	Hub      Broadcaster
	Registry *registry.Registry
	// Journal records every broadcast message. Nil disables it.
	Journal storage.Backend
	Logger  *slog.Logger
}

// CameraOptions positions camera controls. Nil fields are left unchanged.
type CameraOptions struct {
	Position         *[3]float64
	Target           *[3]float64
	EnableTransition bool
}

// Visualizer is the entry point for describing a scene to viewers.
type Visualizer struct {
	hub      Broadcaster
	registry *registry.Registry
	journal  storage.Backend
	logger   *slog.Logger

	// mu keeps journal order equal to broadcast order and holds replays
	// back from interleaving with new messages.
	mu sync.Mutex
}

// New creates a Visualizer. A nil Registry gets a fresh one.
func New(deps Dependencies) *Visualizer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = registry.New(deps.Logger)
	}
	return &Visualizer{
		hub:      deps.Hub,
		registry: deps.Registry,
		journal:  deps.Journal,
		logger:   deps.Logger,
	}
}

// Registry returns the name registry backing this visualizer.
func (v *Visualizer) Registry() *registry.Registry {
	return v.registry
}

// send broadcasts env and journals it.
func (v *Visualizer) send(env streaming.Envelope) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.hub.Broadcast(env); err != nil {
		return fmt.Errorf("broadcast %s: %w", env.Type, err)
	}
	v.logger.Debug("Message broadcast", "type", env.Type)

	if v.journal != nil {
		if err := v.journal.Append(env); err != nil {
			v.logger.Warn("Journal append failed", "type", env.Type, "error", err)
		}
	}
	return nil
}

// AddGeometry sends g and registers it.
func (v *Visualizer) AddGeometry(g scene.Geometry) error {
	if g == nil {
		return fmt.Errorf("%w: nil geometry", scene.ErrValidation)
	}
	if err := v.send(streaming.NewEnvelope(streaming.TypeAddGeometry, g.Lower())); err != nil {
		return err
	}
	v.registry.Register(g)
	return nil
}

// AddMaterial sends m and registers it.
func (v *Visualizer) AddMaterial(m *scene.Material) error {
	if m == nil {
		return fmt.Errorf("%w: nil material", scene.ErrValidation)
	}
	if err := v.send(streaming.NewEnvelope(streaming.TypeAddMaterial, m.Lower())); err != nil {
		return err
	}
	v.registry.Register(m)
	return nil
}

// AddObject sends obj and, when parentName is set, an add_child placing it
// under that parent. A SimpleMesh's inline geometry and material are
// registered along with it.
func (v *Visualizer) AddObject(obj *scene.Object3D, parentName string) error {
	if obj == nil {
		return fmt.Errorf("%w: nil object", scene.ErrValidation)
	}
	if parentName != "" {
		if _, err := v.registry.Resolve(parentName); err != nil {
			return err
		}
	}

	if err := v.send(streaming.NewEnvelope(streaming.TypeAddObject, obj.Lower())); err != nil {
		return err
	}
	v.registry.Register(obj)
	if obj.Kind() == scene.KindSimpleMesh {
		v.registry.Register(obj.Geometry())
		v.registry.Register(obj.Material())
	}

	if parentName == "" {
		return nil
	}
	return v.addChild(parentName, obj.Name())
}

// AddAnimation sends clip and registers it.
func (v *Visualizer) AddAnimation(clip *scene.AnimationClip) error {
	if clip == nil {
		return fmt.Errorf("%w: nil clip", scene.ErrValidation)
	}
	if err := v.send(streaming.NewEnvelope(streaming.TypeAddAnimation, clip.Lower())); err != nil {
		return err
	}
	v.registry.Register(clip)
	return nil
}

// LoadAnimation plays clipName on rootName, the scene root when empty.
// The clip may live only on the renderer (for example inside a GLTF), so
// only the root is resolved.
func (v *Visualizer) LoadAnimation(clipName, rootName string) error {
	if rootName == "" {
		rootName = registry.RootName
	}
	if _, err := v.registry.Resolve(rootName); err != nil {
		return err
	}
	return v.send(streaming.NewEnvelope(streaming.TypeLoadAnimation, streaming.LoadAnimationPayload{
		ClipName: clipName,
		RootName: rootName,
	}))
}

// SetProps overrides properties of the named element. props is not
// modified; a "name" key in it is replaced.
func (v *Visualizer) SetProps(name string, props map[string]any) error {
	if _, err := v.registry.Resolve(name); err != nil {
		return err
	}
	payload := make(map[string]any, len(props)+1)
	maps.Copy(payload, props)
	payload["name"] = name
	return v.send(streaming.NewEnvelope(streaming.TypeSetProps, payload))
}

// AddChild places child under parent.
func (v *Visualizer) AddChild(parentName, childName string) error {
	if _, err := v.registry.Resolve(parentName); err != nil {
		return err
	}
	if _, err := v.registry.Resolve(childName); err != nil {
		return err
	}
	return v.addChild(parentName, childName)
}

func (v *Visualizer) addChild(parentName, childName string) error {
	err := v.send(streaming.NewEnvelope(streaming.TypeAddChild, streaming.AddChildPayload{
		ParentName: parentName,
		ChildName:  childName,
	}))
	if err != nil {
		return err
	}
	return v.registry.Link(parentName, childName)
}

// CameraControls moves the named renderer camera controls. With both a
// position and a target they are sent together as setLookAt.
func (v *Visualizer) CameraControls(controlsName string, opts CameraOptions) error {
	payload := streaming.CameraControlsPayload{
		ControlsName:     controlsName,
		EnableTransition: opts.EnableTransition,
	}
	switch {
	case opts.Position != nil && opts.Target != nil:
		p, t := *opts.Position, *opts.Target
		payload.SetLookAt = &[6]float64{p[0], p[1], p[2], t[0], t[1], t[2]}
	case opts.Position != nil:
		p := *opts.Position
		payload.SetPosition = &p
	case opts.Target != nil:
		t := *opts.Target
		payload.SetTarget = &t
	}
	return v.send(streaming.NewEnvelope(streaming.TypeCameraControls, payload))
}

// PlaceGeodetic moves the named element to a WGS84 position. scale converts
// metres to scene units.
func (v *Visualizer) PlaceGeodetic(name string, lon, lat, alt, scale float64) error {
	pos, err := geo.ScenePosition(lon, lat, alt, scale)
	if err != nil {
		return fmt.Errorf("%w: %w", scene.ErrValidation, err)
	}
	return v.SetProps(name, map[string]any{"position": pos})
}

// AnimatePath sends a clip moving objectName along path at constant speed.
func (v *Visualizer) AnimatePath(clipName, objectName string, path geom.LineString, duration float64) (*scene.AnimationClip, error) {
	if _, err := v.registry.Resolve(objectName); err != nil {
		return nil, err
	}
	track, err := geo.PathTrack(objectName+".position", path, duration)
	if err != nil {
		return nil, err
	}
	clip, err := scene.NewAnimationClip(clipName, duration, track)
	if err != nil {
		return nil, err
	}
	if err := v.AddAnimation(clip); err != nil {
		return nil, err
	}
	return clip, nil
}

// Replay sends the journal to one connection so a late viewer catches up.
// Messages broadcast while the replay runs wait for it to finish. A message
// broadcast between the viewer connecting and the replay starting arrives
// twice.
func (v *Visualizer) Replay(ctx context.Context, connID string) error {
	if v.journal == nil {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	sent := 0
	err := v.journal.Replay(func(env streaming.Envelope) error {
		if err := v.hub.SendToWait(ctx, connID, env); err != nil {
			return err
		}
		sent++
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrReplayUnsupported) {
			v.logger.Debug("Journal cannot replay", "conn", connID)
			return nil
		}
		return fmt.Errorf("replay to %s: %w", connID, err)
	}

	v.logger.Info("Journal replayed", "conn", connID, "messages", sent)
	return nil
}

// Reset forgets every registered element and clears the journal. Viewers
// are not told; they keep what they have.
func (v *Visualizer) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.registry.Reset()
	if v.journal != nil {
		if err := v.journal.Reset(); err != nil {
			return fmt.Errorf("reset journal: %w", err)
		}
	}
	return nil
}
