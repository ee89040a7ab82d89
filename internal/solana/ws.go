package solana

import "context"

// SignatureWatcher waits for transaction confirmations over a WebSocket
// subscription.
type SignatureWatcher interface {
	// WaitForSignature blocks until the signature reaches confirmed
	// commitment, the notification carries an execution error, or ctx ends.
	WaitForSignature(ctx context.Context, signature string) (*SignatureResult, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureResult is the outcome of one signatureSubscribe notification.
type SignatureResult struct {
	Slot int64
	Err  interface{} // non-nil when the transaction executed with an error
}
