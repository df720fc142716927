package ecs

import "reflect"

// Viewer is anything handlers and callers can read a World through: the
// World itself, an Access or a CallbackAccess.
type Viewer interface {
	viewWorld() *World
}

// Access is handed to message handlers. Reads and nested dispatch happen
// immediately; structural changes are queued until World.Finalize.
type Access struct {
	world     *World
	owner     EntityID
	cancelled bool
	pending   *[]queuedDispatch
}

type queuedDispatch struct {
	target EntityID
	msg    reflect.Type
	value  any
}

func (a *Access) viewWorld() *World { return a.world }

// Owner is the entity whose chain is running.
func (a *Access) Owner() EntityID { return a.owner }

// Cancel stops the fold after the current handler returns. The message as it
// stands is returned to the dispatcher.
func (a *Access) Cancel() { a.cancelled = true }

func (a *Access) Len() int { return a.world.Len() }

func (a *Access) Alive(e EntityID) bool { return a.world.Alive(e) }

func (a *Access) Liveness(e EntityID) Liveness { return a.world.Liveness(e) }

// LazySpawn reserves an ID now and attaches components at Finalize.
func (a *Access) LazySpawn(components ...any) (EntityID, error) {
	return a.world.LazySpawn(components...)
}

func (a *Access) LazyDespawn(e EntityID) { a.world.LazyDespawn(e) }

func (a *Access) LazyInsert(e EntityID, component any) error {
	return a.world.LazyInsert(e, component)
}

// QueueDispatch delivers msg to target once the current chain has finished,
// which is how a handler sends a message to its own entity.
func QueueDispatch[M any](acc *Access, target EntityID, msg M) {
	*acc.pending = append(*acc.pending, queuedDispatch{
		target: target,
		msg:    reflect.TypeFor[M](),
		value:  msg,
	})
}

// CallbackAccess is handed to OnCreate and OnRemove callbacks, which run
// while the World is being mutated. It can read components and resources and
// queue structural changes for the current Finalize pass.
type CallbackAccess struct {
	world *World
}

func (a *CallbackAccess) viewWorld() *World { return a.world }

func (a *CallbackAccess) Len() int { return a.world.Len() }

func (a *CallbackAccess) Alive(e EntityID) bool { return a.world.Alive(e) }

func (a *CallbackAccess) LazyDespawn(e EntityID) { a.world.LazyDespawn(e) }
