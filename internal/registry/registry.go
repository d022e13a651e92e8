// Package registry tracks the scene elements that have been sent to viewers
// so that protocol messages can refer to them by name.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/threepy/vizserver/pkg/scene"
)

// RootName is the renderer's scene root. It is always resolvable.
const RootName = "scene"

// ErrNotFound is returned when a name was never registered.
var ErrNotFound = errors.New("not found")

// Registry maps names to scene elements. Names need not be unique; the most
// recent registration wins lookups.
type Registry struct {
	mu       sync.RWMutex
	elements map[string]scene.Named
	logger   *slog.Logger
}

// New creates a Registry holding only the scene root.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		elements: map[string]scene.Named{RootName: nil},
		logger:   logger,
	}
}

// Register stores e under its name.
func (r *Registry) Register(e scene.Named) {
	if e == nil {
		return
	}
	name := e.Name()

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.elements[name]; ok && prev != nil && prev.UUID() != e.UUID() {
		r.logger.Debug("Name registered again, newest element wins", "name", name, "previous", prev.UUID(), "uuid", e.UUID())
	}
	r.elements[name] = e
}

// Resolve returns the element registered under name. The root resolves to
// a nil element.
func (r *Registry) Resolve(name string) (scene.Named, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.elements[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e, nil
}

// Has reports whether name resolves.
func (r *Registry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Link records child under parent. Both names must resolve. When both are
// objects the parent back-reference and child list are updated; linking to
// the root detaches the child from any object parent.
func (r *Registry) Link(parentName, childName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.elements[parentName]
	if !ok {
		return fmt.Errorf("%w: parent %q", ErrNotFound, parentName)
	}
	child, ok := r.elements[childName]
	if !ok {
		return fmt.Errorf("%w: child %q", ErrNotFound, childName)
	}

	childObj, ok := child.(*scene.Object3D)
	if !ok {
		return nil
	}
	if parentObj, ok := parent.(*scene.Object3D); ok {
		parentObj.AddChild(childObj)
	} else {
		childObj.Detach()
	}
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.elements))
	for name := range r.elements {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered names, including the root.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.elements)
}

// Reset forgets everything except the root.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elements = map[string]scene.Named{RootName: nil}
}
