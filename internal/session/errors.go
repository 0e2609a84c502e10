// Package session implements the WebSocket session channel: it reads
// inbound batches, runs one loop execution per batch, and frames every loop
// event back to the client in production order.
package session

import "errors"

// Sentinel errors for the session package.
var (
	ErrInvalidBatch    = errors.New("session: invalid batch")
	ErrMissingMessages = errors.New("session: batch has no messages")
	ErrMissingAPIKey   = errors.New("session: batch has no api_key")
	ErrMaxSessions     = errors.New("session: maximum number of sessions reached")
	ErrTooManyPending  = errors.New("session: too many pending batches")
	ErrInternal        = errors.New("session: internal error")
)
