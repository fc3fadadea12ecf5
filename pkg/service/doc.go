// Package service is the client for the third-party Service API hosted on
// each worker.
//
// Tokens are acquired lazily and refreshed exactly once on a 401; optional
// endpoints (system_health, system_stats, licensing) return nil on 404 so
// older Service versions degrade instead of erroring. All failures surface
// as IntegrationError with a Kind from {timeout, connect, auth, not_found,
// protocol, other}, and a per-endpoint circuit breaker keeps repeated syncs
// against a dead Service cheap.
package service
