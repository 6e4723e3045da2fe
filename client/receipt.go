package client

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/imandr/easy-stomp/frame"
	"github.com/imandr/easy-stomp/types"
)

// Receipt is a single-assignment future fulfilled from the receive path
// when the broker returns the RECEIPT frame matching its id. Any number of
// goroutines may Wait on it concurrently. Closing the connection fails
// every unresolved receipt so waiters never hang forever.
type Receipt struct {
	ID string

	mutex  sync.Mutex
	doneCh chan struct{}
	done   bool
	frame  *frame.Frame
	err    error
}

func newReceipt(id string) *Receipt {
	return &Receipt{
		ID:     id,
		doneCh: make(chan struct{}),
	}
}

// complete resolves the future with the broker's RECEIPT frame. Only the
// first resolution takes effect.
func (r *Receipt) complete(f *frame.Frame) {
	r.resolve(f, nil)
}

// fail resolves the future with an error, unblocking all waiters.
func (r *Receipt) fail(err error) {
	r.resolve(nil, err)
}

func (r *Receipt) resolve(f *frame.Frame, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.done {
		return
	}

	r.frame = f
	r.err = err
	r.done = true

	close(r.doneCh)
}

// Wait blocks until the receipt is resolved and returns the RECEIPT frame.
// A timeout of 0 waits without bound.
func (r *Receipt) Wait(timeout time.Duration) (*frame.Frame, error) {
	if timeout > 0 {
		select {
		case <-r.doneCh:
		case <-time.After(timeout):
			// The timer can fire in the same instant the receipt
			// resolves; resolution wins.
			select {
			case <-r.doneCh:
			default:
				return nil, errors.Wrapf(types.ErrTimeout, "waiting for receipt '%s'", r.ID)
			}
		}
	} else {
		<-r.doneCh
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.frame, r.err
}

// ReceiptRequest selects receipt behavior for an outbound frame: none (the
// zero value), a fresh client-generated id, or an explicit id.
type ReceiptRequest struct {
	want bool
	id   string
}

var (
	// ReceiptNone requests no receipt.
	ReceiptNone = ReceiptRequest{}

	// ReceiptAuto requests a receipt under a fresh, previously unused id.
	ReceiptAuto = ReceiptRequest{want: true}
)

// ReceiptWithID requests a receipt under the given id.
func ReceiptWithID(id string) ReceiptRequest {
	return ReceiptRequest{want: true, id: id}
}
