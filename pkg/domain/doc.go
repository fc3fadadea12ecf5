// Package domain implements the write path of the Worker aggregate and the
// LabRecord projection.
//
// Workers are event-sourced on their own write path: every mutation method
// on Aggregate validates its preconditions, constructs a typed Event, applies
// it through the pure reducer, and buffers it. Callers persist the final
// state document first and publish the drained events only after persistence
// succeeds.
//
// Lab records are not event-sourced; they carry a bounded operation history
// ring updated by field-level change detection instead.
package domain
