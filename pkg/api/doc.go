// Package api is the public surface of the control plane: an authenticated
// REST API over the command mediator and store projections, plus a
// server-sent-events stream of change envelopes from the broker. Paths are
// kept stable for existing UI clients.
package api
