package client

import (
	"sync"
	"time"

	"github.com/imandr/easy-stomp/frame"
	"github.com/imandr/easy-stomp/types"
)

// Transaction scopes SEND/ACK/NACK frames to a broker-side transaction.
// Once Commit or Abort has succeeded every further operation fails with
// types.ErrTransactionClosed.
type Transaction struct {
	ID string

	client *Client // non-owning
	mutex  sync.Mutex
	closed bool
}

func (t *Transaction) guard() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed {
		return types.ErrTransactionClosed
	}

	return nil
}

// Send sends a frame associated with the transaction.
func (t *Transaction) Send(command string, headers frame.Headers, body []byte, receipt ReceiptRequest) (*Receipt, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}

	return t.client.Send(command, headers, body, &SendOptions{
		Transaction: t.ID,
		Receipt:     receipt,
	})
}

// Message sends a SEND frame associated with the transaction.
func (t *Transaction) Message(destination string, body []byte, opts *MessageOptions) (*Receipt, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}

	var o MessageOptions
	if opts != nil {
		o = *opts
	}

	o.Transaction = t.ID

	return t.client.Message(destination, body, &o)
}

// Recv receives the next frame; any automatic ACK it triggers is
// associated with the transaction.
func (t *Transaction) Recv(timeout time.Duration) (*frame.Frame, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}

	return t.client.Recv(t.ID, timeout)
}

// Ack acknowledges a delivery within the transaction.
func (t *Transaction) Ack(ackID string) error {
	if err := t.guard(); err != nil {
		return err
	}

	return t.client.Ack(ackID, t.ID)
}

// Nack rejects a delivery within the transaction.
func (t *Transaction) Nack(ackID string) error {
	if err := t.guard(); err != nil {
		return err
	}

	return t.client.Nack(ackID, t.ID)
}

// Commit commits the transaction and closes it.
func (t *Transaction) Commit(receipt ReceiptRequest) (*Receipt, error) {
	return t.finish(frame.CmdCommit, receipt)
}

// Abort aborts the transaction and closes it.
func (t *Transaction) Abort(receipt ReceiptRequest) (*Receipt, error) {
	return t.finish(frame.CmdAbort, receipt)
}

func (t *Transaction) finish(command string, receipt ReceiptRequest) (*Receipt, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed {
		return nil, types.ErrTransactionClosed
	}

	out, err := t.client.Send(command, nil, nil, &SendOptions{
		Transaction: t.ID,
		Receipt:     receipt,
	})
	if err != nil {
		return nil, err
	}

	t.closed = true

	return out, nil
}
