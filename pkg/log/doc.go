// Package log provides the process-wide zerolog setup for labfleet.
//
// All components log through child loggers created with WithComponent so
// output stays filterable by subsystem (mediator, scheduler, cloud, service,
// events, api). Init must be called once from the entrypoint before any
// other package logs.
package log
