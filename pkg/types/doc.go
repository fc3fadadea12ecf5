// Package types defines the core entities shared across labfleet: the Worker
// aggregate document, the LabRecord projection, their status enums, and the
// value types exchanged with the external adapters.
//
// Types here are plain records with no behavior; the write path that mutates
// them lives in pkg/domain so that every change flows through a domain event
// and its reducer.
package types
