// Package repository implements the durable side of the seating engine
// against MySQL.  It is the storage collaborator from the engine's point
// of view: rooms read a full snapshot from here when they wake up and
// write every accepted mutation back before it is applied in memory.
// The sentinel errors below let handlers distinguish failure scenarios
// without inspecting driver errors.
package repository

import "errors"

// ErrForbidden is returned when a user requests access to an event they
// do not collaborate on. Handlers translate this into an HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrEventNotFound is returned when the referenced event has no seating
// chart and no collaborators. Handlers translate this into an HTTP 404.
var ErrEventNotFound = errors.New("event not found")
