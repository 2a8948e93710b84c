package device

import "errors"

var (
	// ErrNoDialer is returned when a Device is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the circuit.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrLoopRunning is returned when Loop is called while another Loop
	// invocation is still active.
	ErrLoopRunning = errors.New("device loop already running")

	// ErrAlreadyClosed is returned when Close is called on a Device that has
	// already been closed, or when a query is attempted after Close.
	ErrAlreadyClosed = errors.New("device already closed")

	// ErrNoTransport is returned when the Dialer produced a nil Transport.
	ErrNoTransport = errors.New("dialer returned no transport")
)
