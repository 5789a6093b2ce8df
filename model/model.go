// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds the transforms of drawn objects.
package model

import (
	"sync"

	glm "github.com/go-gl/mathgl/mgl32"
)

// Object represents a drawable placed in the scene
type Object interface {

	// SetPosition sets the object's current position in space.
	// Has to be thread-safe
	SetPosition(glm.Mat4)

	// Position gets the object's current position in space.
	// Has to be thread-safe
	Position() glm.Mat4

	// SetRotation sets the object's rotation matrix.
	// Has to be thread-safe
	SetRotation(glm.Mat4)

	// Rotation gets the object's rotation matrix.
	// Has to be thread-safe
	Rotation() glm.Mat4
}

// NewInstance creates an Instance at the origin with no rotation.
func NewInstance() *Instance {
	return &Instance{
		position: glm.Ident4(),
		rotation: glm.Ident4(),
	}
}

// Instance is the default Object. Positions are written by the
// application goroutine and read while a frame is recorded.
type Instance struct {
	mutex    sync.RWMutex
	position glm.Mat4
	rotation glm.Mat4
}

// SetPosition implements interface
func (i *Instance) SetPosition(m glm.Mat4) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.position = m
}

// Position implements interface
func (i *Instance) Position() glm.Mat4 {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.position
}

// SetRotation implements interface
func (i *Instance) SetRotation(m glm.Mat4) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.rotation = m
}

// Rotation implements interface
func (i *Instance) Rotation() glm.Mat4 {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.rotation
}

// Transform is the model matrix of o, rotation applied first.
func Transform(o Object) glm.Mat4 {
	return o.Position().Mul4(o.Rotation())
}

// Uniform defines a model-view-projection object
type Uniform struct {
	Model      glm.Mat4
	View       glm.Mat4
	Projection glm.Mat4
}

// MVP combines the three matrices.
func (u Uniform) MVP() glm.Mat4 {
	return u.Projection.Mul4(u.View).Mul4(u.Model)
}
