// Package cloud adapts the AWS EC2 and CloudWatch APIs behind the API port.
//
// Every call is bounded by a per-call timeout (15s for control-plane
// operations, 60s for metric reads) and classified into the Kind taxonomy;
// Throttled and Transient failures are retried internally up to 3 attempts
// with exponential backoff and jitter. The SDK is fully context-aware, so
// callers on the scheduler path are never blocked beyond their context.
//
// Clients are cached per region and credentials come from the default AWS
// provider chain.
package cloud
