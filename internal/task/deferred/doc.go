// Package deferred arms one-shot work units at absolute instants.
//
// The scheduler is responsible only for:
//   - arming units (upsert by unit id)
//   - persisting them so a restart re-arms the chain
//   - enqueueing fired units into the task engine
//
// Execution always happens on an engine worker, never on the cron
// goroutine. Units whose instant passed while the process was down
// fire once shortly after Start (catch-up), then disappear.
package deferred
