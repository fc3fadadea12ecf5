// Package events is the fan-out side of the control plane: a broadcast
// broker of wire-format envelopes plus the relay that translates domain
// events into them.
//
// Each subscriber owns a bounded queue. When a subscriber falls behind the
// broker drops its oldest entries and counts the loss instead of blocking
// the publisher, so one slow stream consumer can never stall command
// handling. Envelopes from a single handler are delivered in emission order.
package events
