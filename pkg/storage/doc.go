// Package storage persists the control plane's projection of the fleet.
//
// Two logical collections are kept: workers (one JSON document per Worker
// aggregate, keyed by id) and lab_records (one document per
// (worker_id, lab_id) pair, keyed by the composite "workerID/labID" so a
// cursor prefix scan serves the per-worker listing). Instance-id lookups
// iterate the workers bucket; the fleet is O(hundreds) so no secondary
// index bucket is kept.
package storage
