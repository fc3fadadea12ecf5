// Package command is the write side of the control plane. Every mutation
// enters through the Mediator as a typed command, is validated, serialized
// per worker, and handled by exactly one handler that loads the aggregate,
// applies domain mutations, persists, and publishes the resulting events.
//
// Handlers return a Result instead of an error so the HTTP layer and the
// scheduler share one outcome vocabulary: ok, bad_request, not_found,
// conflict, failed_dependency, internal.
package command
