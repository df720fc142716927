package ecs

import "github.com/l1jgo/courier/internal/core/event"

// Lifecycle events emitted on the World's bus, when one is attached.

type EntitySpawned struct {
	Entity EntityID
}

type EntityDespawned struct {
	Entity EntityID
}

type ComponentAttached struct {
	Entity    EntityID
	Component string
}

type ComponentDetached struct {
	Entity    EntityID
	Component string
}

func emit[T any](w *World, ev T) {
	if w.bus != nil {
		event.Emit(w.bus, ev)
	}
}
