// Package scheduler drives the recurrent reconciliation jobs. Each job
// ticks on its own interval, lists the active workers, and fans its command
// sequence out under a bounded semaphore. A per-worker throttle cache keeps
// scheduled and manual refreshes of the same worker apart; job failures are
// counted, logged, and never escape a tick.
package scheduler
