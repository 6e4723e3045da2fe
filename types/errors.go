// Package types holds error kinds shared between the stream and client
// packages.
package types

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/imandr/easy-stomp/frame"
)

var (
	// ErrTimeout is the cause of any bounded socket read or receipt wait
	// that exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrClosed is returned for operations attempted on a closed
	// connection; it is also the failure handed to receipt waiters when
	// the connection goes away before their RECEIPT arrives.
	ErrClosed = errors.New("connection closed")

	ErrNotConnected     = errors.New("not connected to a broker")
	ErrAlreadyConnected = errors.New("already connected to a broker")

	// ErrTransactionClosed is returned for operations on a transaction
	// after COMMIT or ABORT.
	ErrTransactionClosed = errors.New("transaction already closed")
)

// ConnectionError is returned when every broker address in a connect
// attempt failed. Last carries the final underlying error, if any address
// got far enough to produce one.
type ConnectionError struct {
	Last error
}

func (e *ConnectionError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("unable to connect to any broker: %s", e.Last)
	}

	return "unable to connect to any broker"
}

func (e *ConnectionError) Unwrap() error {
	return e.Last
}

// ProtocolError is returned when the broker responds with an ERROR frame.
type ProtocolError struct {
	Message string
	Frame   *frame.Frame
}

func (e *ProtocolError) Error() string {
	out := fmt.Sprintf("broker error: %s", e.Message)

	if e.Frame != nil {
		dump := e.Frame.Bytes()
		if len(dump) > 0 && dump[len(dump)-1] == 0 {
			dump = dump[:len(dump)-1]
		}

		out += "\n- frame ---------------------\n" +
			string(dump) +
			"\n- end of frame --------------"
	}

	return out
}
