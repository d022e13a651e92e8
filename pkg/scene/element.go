// Package scene describes the entities a viewer renders: geometries, materials,
// objects and animation clips. Entities only carry descriptors; each one lowers
// itself into the JSON-ready map the renderer consumes.
package scene

import (
	"errors"
	"math"

	"github.com/google/uuid"
)

// ErrValidation is returned when an entity is constructed from invalid input.
var ErrValidation = errors.New("validation error")

const fullTurn = 2 * math.Pi

// Lowerer is implemented by everything that can be sent to a renderer.
type Lowerer interface {
	Lower() map[string]any
}

// Named is implemented by every scene element.
type Named interface {
	UUID() string
	Name() string
}

// Element holds the identity shared by every scene entity.
type Element struct {
	uuid string
	name string
}

func newElement(name string) Element {
	return Element{uuid: uuid.New().String(), name: name}
}

// UUID returns the immutable identifier assigned at creation.
func (e *Element) UUID() string {
	return e.uuid
}

// Name returns the element name, or its UUID when no name was given.
func (e *Element) Name() string {
	if e.name == "" {
		return e.uuid
	}
	return e.name
}

// HasName reports whether an explicit name was set.
func (e *Element) HasName() bool {
	return e.name != ""
}

// Rename replaces the element name.
func (e *Element) Rename(name string) {
	e.name = name
}

func (e *Element) lower() map[string]any {
	return map[string]any{
		"uuid": e.uuid,
		"name": e.Name(),
	}
}
