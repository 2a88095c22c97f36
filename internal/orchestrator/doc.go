// Package orchestrator drives the delivery chain: it reads the stored
// preferences, asks the schedule package for the next eligible instant,
// arms exactly one deferred unit for it, and handles that unit's fire by
// selecting an item, handing it to the send pipeline and arming the
// successor. One armed unit at a time; every fire plans the next one.
//
// Disabled preferences and an empty horizon are ordinary outcomes, not
// errors. Exhaustion does not break the chain either: slots keep firing
// empty until the catalog grows or the ledger is reset.
package orchestrator
