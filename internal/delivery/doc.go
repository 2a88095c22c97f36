// Package delivery sends recorded deliveries out through the transport
// adapter: queue + worker pool + rate limit + bounded retry.
//
// The pipeline never touches the ledger. A send that fails after all
// retries stays recorded; retrying it through the selector would hand
// out a second item for the same slot.
package delivery
