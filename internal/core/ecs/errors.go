package ecs

import "errors"

var (
	// ErrStaleEntity is returned when an EntityID refers to a slot that has
	// been freed or reused under a newer generation.
	ErrStaleEntity = errors.New("stale entity")

	ErrMissingComponent      = errors.New("missing component")
	ErrDuplicateComponent    = errors.New("duplicate component")
	ErrUnregisteredComponent = errors.New("unregistered component type")
	ErrReRegistration        = errors.New("component type already registered")
	ErrDuplicateName         = errors.New("component name already in use")
	ErrExtensionCallback     = errors.New("extensions cannot set names or lifecycle callbacks")
	ErrComponentTypeMismatch = errors.New("component type mismatch")

	// ErrBorrowConflict means a handler tried to lock a component that is
	// already locked incompatibly, almost always by a dispatch further up the
	// same call stack.
	ErrBorrowConflict = errors.New("component borrow conflict")

	ErrDispatchActive   = errors.New("structural change during dispatch")
	ErrResourceNotFound = errors.New("resource not found")
)
