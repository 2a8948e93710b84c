package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hydrolab/ezobridge/ezo"
)

// Device drives a single EZO EC circuit over a line-oriented transport.
// All transport I/O happens inside Loop; Query submits commands to it and
// waits for the matching reply line. The Loop holds at most one command at a
// time, so exactly one query is ever in flight on the wire.
type Device struct {
	// transport provides the physical connection to the circuit
	transport Transport
	// config contains the device configuration settings
	config Config
	// closed indicates if the device has been shut down
	closed atomic.Bool
	// loopRunning indicates if the Loop is currently running
	loopRunning atomic.Bool

	// unsolicited receives reply lines that arrived with no query
	// outstanding, which the circuit emits in continuous mode (C,1)
	unsolicited chan string
	// commands hands query requests to the Loop, one at a time
	commands chan *queryRequest
}

// queryRequest represents one wire command awaiting execution by the Loop.
type queryRequest struct {
	// cmd is the command string to send, without terminator
	cmd string
	// timeout bounds the wait for the reply line
	timeout time.Duration
	// respChan receives the reply from the Loop
	respChan chan queryResponse
}

// queryResponse is the outcome of one query. An empty reply with a nil
// error means the timeout elapsed with no terminator seen; that is the only
// failure signal at this layer (see Query).
type queryResponse struct {
	reply string
	err   error
}

// New creates a Device with the given configuration and establishes the
// transport connection. Loop must be started before any queries are issued.
func New(ctx context.Context, config Config) (*Device, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNoTransport
	}

	return &Device{
		transport:   transport,
		config:      config,
		unsolicited: make(chan string, config.unsolicitedBuffer),
		commands:    make(chan *queryRequest),
	}, nil
}

// Loop is the main event loop that owns all transport I/O. It must be
// running (typically in its own goroutine) before Query is called.
//
// The Loop is the only goroutine that touches the transport:
//
//  1. It accepts one command request at a time from Query
//  2. Writes the CR-terminated command to the transport
//  3. Delivers the next reply line to the waiting Query, or an empty reply
//     when the per-command timeout expires first
//  4. Routes reply lines that arrive outside a query window to the
//     unsolicited channel
//
// It runs until the context is cancelled or the transport fails.
func (d *Device) Loop(ctx context.Context) error {
	if !d.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer d.loopRunning.Store(false)

	scanner := bufio.NewScanner(d.transport)
	scanner.Split(ezo.Splitter)

	tokens := make(chan string, 10)
	scanErrs := make(chan error, 1)

	go func() {
		defer close(tokens)
		for scanner.Scan() {
			token := scanner.Text()
			if token == "" {
				continue
			}
			select {
			case tokens <- token:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case scanErrs <- err:
			case <-ctx.Done():
			}
		}
	}()

	// Command currently awaiting its reply, and its deadline.
	var current *queryRequest
	var deadline *time.Timer

	finish := func(resp queryResponse) {
		current.respChan <- resp
		current = nil
		deadline.Stop()
	}

	for {
		// Accept a new command only when none is awaiting its reply. The
		// nil channel blocks its case, enforcing one query in flight.
		commands := d.commands
		var timeoutCh <-chan time.Time
		if current != nil {
			commands = nil
			timeoutCh = deadline.C
		}

		select {
		case <-ctx.Done():
			if current != nil {
				finish(queryResponse{err: ctx.Err()})
			}
			return ctx.Err()

		case req := <-commands:
			wire := strings.TrimSpace(req.cmd) + ezo.CR
			if _, err := d.transport.Write([]byte(wire)); err != nil {
				req.respChan <- queryResponse{err: fmt.Errorf("write command %q: %w", req.cmd, err)}
				continue
			}
			current = req
			deadline = time.NewTimer(req.timeout)

		case token, ok := <-tokens:
			if !ok {
				// Scanner stopped without error: transport EOF
				if current != nil {
					finish(queryResponse{err: io.EOF})
				}
				return io.EOF
			}
			if current != nil {
				finish(queryResponse{reply: token})
				continue
			}
			select {
			case d.unsolicited <- token:
			default:
				// consumer lagging, drop the line
			}

		case <-timeoutCh:
			// No terminator within budget: empty reply, not an error
			finish(queryResponse{})

		case err := <-scanErrs:
			if current != nil {
				finish(queryResponse{err: fmt.Errorf("read error: %w", err)})
			}
			return fmt.Errorf("scanner error: %w", err)
		}
	}
}

// Query sends one command and returns the circuit's reply line with the
// terminator stripped. An empty reply with a nil error means no reply
// arrived within the timeout; callers must treat empty-vs-nonempty as the
// only failure signal. Errors are reserved for transport faults and
// shutdown.
//
// A zero or negative timeout selects the configured default.
func (d *Device) Query(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	if d.closed.Load() {
		return "", ErrAlreadyClosed
	}
	if timeout <= 0 {
		timeout = d.config.queryTimeout
	}

	req := &queryRequest{
		cmd:      cmd,
		timeout:  timeout,
		respChan: make(chan queryResponse, 1), // buffered so the Loop never blocks on delivery
	}

	select {
	case d.commands <- req:
	case <-ctx.Done():
		return "", fmt.Errorf("query cancelled before sending: %w", ctx.Err())
	}

	select {
	case resp := <-req.respChan:
		return resp.reply, resp.err
	case <-ctx.Done():
		return "", fmt.Errorf("query cancelled: %w", ctx.Err())
	}
}

// Unsolicited returns a read-only channel carrying reply lines that arrived
// with no query outstanding. The circuit produces these in continuous mode
// (C,1). The channel is buffered; lines are dropped when it is full.
func (d *Device) Unsolicited() <-chan string {
	return d.unsolicited
}

// Close shuts down the device and closes the transport. After Close the
// device cannot be reused.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}

	if d.transport != nil {
		return d.transport.Close()
	}
	return nil
}
