// Package client implements the STOMP 1.2 protocol engine: connection
// lifecycle, subscriptions, transactions, receipt correlation and the
// receive/dispatch loop.
package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/relistan/go-director"
	"github.com/sirupsen/logrus"

	"github.com/imandr/easy-stomp/frame"
	"github.com/imandr/easy-stomp/stream"
	"github.com/imandr/easy-stomp/types"
)

// ProtocolVersion is the only STOMP version this client speaks.
const ProtocolVersion = "1.2"

// DefaultDisconnectTimeout bounds the wait for the DISCONNECT receipt. The
// reference behavior waits without bound, which can hang forever if the
// broker never replies.
const DefaultDisconnectTimeout = 10 * time.Second

type connState int

const (
	stateNew connState = iota
	stateConnecting
	stateConnected
	stateDisconnecting
	stateClosed
)

// DispatchResult is returned by loop callbacks to tell the loop driver
// whether to keep going.
type DispatchResult int

const (
	Continue DispatchResult = iota
	Stop
)

// Callback receives every frame delivered during Loop, in registration
// order. Returning Stop ends the loop after the current frame.
type Callback func(c *Client, f *frame.Frame) DispatchResult

type callbackEntry struct {
	id int
	fn Callback
}

// Client is a STOMP 1.2 client connection to a message broker.
//
// Engine operations may be called from multiple goroutines. Outbound
// writes are serialized by the stream; the receive path admits one logical
// reader at a time.
type Client struct {
	// DisconnectTimeout bounds Disconnect's wait for its receipt.
	// 0 waits without bound.
	DisconnectTimeout time.Duration

	mutex         sync.Mutex
	state         connState
	stream        *stream.Stream
	brokerAddr    string
	idSeq         int64
	cbSeq         int
	subscriptions map[string]*Subscription
	receipts      map[string]*Receipt
	callbacks     []callbackEntry

	log *logrus.Entry
}

// New creates an unconnected client.
func New() *Client {
	return &Client{
		DisconnectTimeout: DefaultDisconnectTimeout,
		state:             stateNew,
		subscriptions:     make(map[string]*Subscription),
		receipts:          make(map[string]*Receipt),
		log:               logrus.WithField("pkg", "client"),
	}
}

// ConnectOptions carries the optional parts of a connect attempt. Empty
// Login/Passcode are omitted from the CONNECT frame. Timeout bounds both
// the TCP dial and the wait for the broker's reply, per address; 0 means
// no bound.
type ConnectOptions struct {
	Login    string
	Passcode string
	Headers  frame.Headers
	Timeout  time.Duration
}

// Connect creates a client and connects it to the first responsive broker
// address.
func Connect(addrs []string, opts *ConnectOptions) (*Client, error) {
	c := New()

	if _, err := c.Connect(addrs, opts); err != nil {
		return nil, err
	}

	return c, nil
}

// Connect tries each broker address in order: TCP dial, CONNECT frame,
// blocking wait for the reply. An ERROR or unrecognized reply is recorded
// as the last error and the next address is tried; a CONNECTED reply wins
// immediately and is returned. When every address is exhausted the
// aggregate failure is a *types.ConnectionError. While an attempt is in
// flight any further Connect call fails with types.ErrAlreadyConnected.
func (c *Client) Connect(addrs []string, opts *ConnectOptions) (*frame.Frame, error) {
	if opts == nil {
		opts = &ConnectOptions{}
	}

	c.mutex.Lock()
	if c.state == stateClosed {
		c.mutex.Unlock()
		return nil, types.ErrClosed
	}
	// Only one connect attempt may own the stream slot; a concurrent
	// attempt or an in-flight disconnect is rejected, not queued.
	if c.state != stateNew {
		c.mutex.Unlock()
		return nil, types.ErrAlreadyConnected
	}
	c.state = stateConnecting
	c.mutex.Unlock()

	var lastErr error

	for _, addr := range addrs {
		conn, err := net.DialTimeout("tcp", addr, opts.Timeout)
		if err != nil {
			c.log.Debugf("unable to dial '%s': %s", addr, err)
			continue
		}

		s := stream.New(conn)

		reply, err := c.handshake(s, opts)
		if err != nil {
			conn.Close()
			lastErr = err
			continue
		}

		c.mutex.Lock()
		c.stream = s
		c.brokerAddr = addr
		c.state = stateConnected
		c.mutex.Unlock()

		c.log.Debugf("connected to broker at '%s'", addr)

		return reply, nil
	}

	c.mutex.Lock()
	c.state = stateNew
	c.mutex.Unlock()

	return nil, &types.ConnectionError{Last: lastErr}
}

func (c *Client) handshake(s *stream.Stream, opts *ConnectOptions) (*frame.Frame, error) {
	headers := frame.Headers{}
	headers.Set("accept-version", ProtocolVersion)

	if opts.Login != "" {
		headers.Set("login", opts.Login)
	}

	if opts.Passcode != "" {
		headers.Set("passcode", opts.Passcode)
	}

	for _, h := range opts.Headers {
		headers.Set(h.Name, h.Value)
	}

	if err := s.Send(frame.New(frame.CmdConnect, headers, nil)); err != nil {
		return nil, errors.Wrap(err, "unable to send CONNECT frame")
	}

	reply, err := s.Recv(opts.Timeout)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read CONNECT reply")
	}

	if reply == nil {
		return nil, errors.New("connection closed before CONNECTED reply")
	}

	switch reply.Command {
	case frame.CmdConnected:
		return reply, nil
	case frame.CmdError:
		return nil, &types.ProtocolError{Message: reply.Get("message", ""), Frame: reply}
	}

	return nil, &types.ProtocolError{
		Message: fmt.Sprintf("unexpected reply command '%s'", reply.Command),
		Frame:   reply,
	}
}

// BrokerAddress returns the address of the broker the client connected to.
func (c *Client) BrokerAddress() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.brokerAddr
}

// The id counter is shared between subscriptions, receipts and
// transactions; each kind gets a distinct prefix.
func (c *Client) allocateIDLocked(prefix string) string {
	c.idSeq++
	return fmt.Sprintf("%s.%d", prefix, c.idSeq)
}

func (c *Client) allocateID(prefix string) string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.allocateIDLocked(prefix)
}

func (c *Client) nextSubscriptionID() string { return c.allocateID("s") }
func (c *Client) nextTransactionID() string  { return c.allocateID("t") }

// SendOptions carries the optional parts of a frame send.
type SendOptions struct {
	Transaction string
	Receipt     ReceiptRequest
}

// Send builds and writes a frame. Caller headers are merged with the
// transaction and receipt headers. When a receipt is requested the
// returned *Receipt is registered before the frame hits the wire; it is
// nil otherwise.
func (c *Client) Send(command string, headers frame.Headers, body []byte, opts *SendOptions) (*Receipt, error) {
	if opts == nil {
		opts = &SendOptions{}
	}

	h := frame.Headers{}
	for _, hdr := range headers {
		h.Set(hdr.Name, hdr.Value)
	}

	if opts.Transaction != "" {
		h.Set("transaction", opts.Transaction)
	}

	var receipt *Receipt

	c.mutex.Lock()

	if c.state == stateClosed {
		c.mutex.Unlock()
		return nil, types.ErrClosed
	}

	s := c.stream
	if s == nil {
		c.mutex.Unlock()
		return nil, types.ErrNotConnected
	}

	if opts.Receipt.want {
		id := opts.Receipt.id
		if id == "" {
			id = c.allocateIDLocked("r")
		}

		receipt = newReceipt(id)
		c.receipts[id] = receipt
		h.Set("receipt", id)
	}

	c.mutex.Unlock()

	if err := s.Send(frame.New(command, h, body)); err != nil {
		if receipt != nil {
			c.mutex.Lock()
			delete(c.receipts, receipt.ID)
			c.mutex.Unlock()

			receipt.fail(err)
		}

		return nil, errors.Wrap(err, "unable to send frame")
	}

	return receipt, nil
}

// MessageOptions carries the optional parts of a message send.
type MessageOptions struct {
	// ID becomes the message-id header when non-empty.
	ID          string
	Headers     frame.Headers
	Receipt     ReceiptRequest
	Transaction string
}

// Message is a convenience wrapper over Send for SEND frames.
func (c *Client) Message(destination string, body []byte, opts *MessageOptions) (*Receipt, error) {
	if opts == nil {
		opts = &MessageOptions{}
	}

	h := frame.Headers{}
	for _, hdr := range opts.Headers {
		h.Set(hdr.Name, hdr.Value)
	}

	if opts.ID != "" {
		h.Set("message-id", opts.ID)
	}

	h.Set("destination", destination)

	return c.Send(frame.CmdSend, h, body, &SendOptions{
		Transaction: opts.Transaction,
		Receipt:     opts.Receipt,
	})
}

// Subscribe sends a SUBSCRIBE frame and registers the subscription.
// autoAck selects whether the client acknowledges deliveries on the
// caller's behalf. Returns the subscription id.
func (c *Client) Subscribe(destination string, ackMode AckMode, autoAck bool) (string, error) {
	sub := &Subscription{
		ID:          c.nextSubscriptionID(),
		Destination: destination,
		AckMode:     ackMode,
		AutoAck:     autoAck,
		client:      c,
	}

	h := frame.Headers{}
	h.Set("destination", destination)
	h.Set("ack", ackMode.String())
	h.Set("id", sub.ID)

	if _, err := c.Send(frame.CmdSubscribe, h, nil, nil); err != nil {
		return "", errors.Wrap(err, "unable to subscribe")
	}

	c.mutex.Lock()
	c.subscriptions[sub.ID] = sub
	c.mutex.Unlock()

	return sub.ID, nil
}

// Unsubscribe removes the subscription and sends UNSUBSCRIBE with a
// receipt request. Unknown ids are a no-op.
func (c *Client) Unsubscribe(id string) error {
	c.mutex.Lock()
	_, known := c.subscriptions[id]
	delete(c.subscriptions, id)
	c.mutex.Unlock()

	if !known {
		return nil
	}

	h := frame.Headers{}
	h.Set("id", id)

	_, err := c.Send(frame.CmdUnsubscribe, h, nil, &SendOptions{Receipt: ReceiptAuto})

	return errors.Wrap(err, "unable to unsubscribe")
}

// Ack acknowledges a delivery by its ack id, optionally scoped to a
// transaction ("" for none).
func (c *Client) Ack(ackID, transaction string) error {
	h := frame.Headers{}
	h.Set("id", ackID)

	_, err := c.Send(frame.CmdAck, h, nil, &SendOptions{Transaction: transaction})

	return err
}

// Nack rejects a delivery by its ack id, optionally scoped to a
// transaction ("" for none).
func (c *Client) Nack(ackID, transaction string) error {
	h := frame.Headers{}
	h.Set("id", ackID)

	_, err := c.Send(frame.CmdNack, h, nil, &SendOptions{Transaction: transaction})

	return err
}

// Begin opens a broker transaction: sends BEGIN with a receipt request and
// returns the transaction handle. An empty id allocates a fresh one.
func (c *Client) Begin(id string) (*Transaction, error) {
	if id == "" {
		id = c.nextTransactionID()
	}

	if _, err := c.Send(frame.CmdBegin, nil, nil, &SendOptions{
		Transaction: id,
		Receipt:     ReceiptAuto,
	}); err != nil {
		return nil, errors.Wrap(err, "unable to begin transaction")
	}

	return &Transaction{ID: id, client: c}, nil
}

// Recv reads the next delivered frame.
//
// RECEIPT frames fulfill their matching future and are never returned;
// receipts with no registered waiter are silently ignored. An ERROR frame
// fails with *types.ProtocolError. A MESSAGE carrying an ack header is
// automatically acknowledged before being returned when its subscription
// is unknown or has AutoAck enabled; the ACK is scoped to transaction if
// given ("" for none). End of stream closes the connection and returns
// (nil, nil).
func (c *Client) Recv(transaction string, timeout time.Duration) (*frame.Frame, error) {
	c.mutex.Lock()

	if c.state == stateClosed {
		c.mutex.Unlock()
		return nil, types.ErrClosed
	}

	s := c.stream
	c.mutex.Unlock()

	if s == nil {
		return nil, types.ErrNotConnected
	}

	for {
		f, err := s.Recv(timeout)
		if err != nil {
			return nil, err
		}

		if f == nil {
			c.Close()
			return nil, nil
		}

		switch f.Command {
		case frame.CmdReceipt:
			id := f.Get("receipt-id", "")

			c.mutex.Lock()
			receipt := c.receipts[id]
			delete(c.receipts, id)
			c.mutex.Unlock()

			if receipt == nil {
				c.log.Debugf("no waiter registered for receipt '%s'", id)
				continue
			}

			receipt.complete(f)

		case frame.CmdError:
			return nil, &types.ProtocolError{Message: f.Get("message", ""), Frame: f}

		case frame.CmdMessage:
			ackID, hasAck := f.Headers.Lookup("ack")
			if hasAck {
				c.mutex.Lock()
				sub := c.subscriptions[f.Get("subscription", "")]
				c.mutex.Unlock()

				if sub == nil || sub.AutoAck {
					if err := c.Ack(ackID, transaction); err != nil {
						return nil, errors.Wrap(err, "unable to auto-ack message")
					}
				}
			}

			return f, nil

		default:
			return f, nil
		}
	}
}

// Next returns the next delivered frame, or (nil, nil) once the stream has
// closed. It lets the client be consumed as a frame sequence:
//
//	for f, err := c.Next(); f != nil || err != nil; f, err = c.Next() {
//	    ...
//	}
func (c *Client) Next() (*frame.Frame, error) {
	return c.Recv("", 0)
}

// AddCallback registers cb for loop-mode dispatch and returns a
// registration id for RemoveCallback. Callbacks run in registration order.
func (c *Client) AddCallback(cb Callback) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cbSeq++
	c.callbacks = append(c.callbacks, callbackEntry{id: c.cbSeq, fn: cb})

	return c.cbSeq
}

// RemoveCallback removes the callback registered under id; unknown ids are
// a no-op.
func (c *Client) RemoveCallback(id int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for i := range c.callbacks {
		if c.callbacks[i].id == id {
			c.callbacks = append(c.callbacks[:i], c.callbacks[i+1:]...)
			return
		}
	}
}

// RemoveCallbacks clears the callback list.
func (c *Client) RemoveCallbacks() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.callbacks = nil
}

var errLoopStop = errors.New("loop stopped")

// Loop repeatedly receives frames and dispatches each to the registered
// callbacks in order. The loop ends when a callback returns Stop (after
// that frame's dispatch finishes), when the stream closes, or when Recv
// fails; the failure is returned.
func (c *Client) Loop(transaction string, timeout time.Duration) error {
	looper := director.NewFreeLooper(director.FOREVER, make(chan error, 1))

	looper.Loop(func() error {
		f, err := c.Recv(transaction, timeout)
		if err != nil {
			return err
		}

		if f == nil {
			return errLoopStop
		}

		if c.dispatch(f) == Stop {
			return errLoopStop
		}

		return nil
	})

	if err := looper.Wait(); err != nil && err != errLoopStop {
		return err
	}

	return nil
}

func (c *Client) dispatch(f *frame.Frame) DispatchResult {
	c.mutex.Lock()
	callbacks := make([]callbackEntry, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mutex.Unlock()

	for _, cb := range callbacks {
		if cb.fn(c, f) == Stop {
			return Stop
		}
	}

	return Continue
}

// Disconnect sends DISCONNECT with a receipt request, waits for the
// receipt (bounded by DisconnectTimeout, and unblocked early if the
// connection closes), then closes the connection. The receipt is fulfilled
// by the receive path, so a concurrent Recv or Loop must be running.
func (c *Client) Disconnect() error {
	c.mutex.Lock()

	if c.state != stateConnected {
		c.mutex.Unlock()
		return nil
	}

	c.state = stateDisconnecting
	c.mutex.Unlock()

	receipt, err := c.Send(frame.CmdDisconnect, nil, nil, &SendOptions{Receipt: ReceiptAuto})
	if err != nil {
		c.Close()
		return errors.Wrap(err, "unable to send DISCONNECT frame")
	}

	if _, err := receipt.Wait(c.DisconnectTimeout); err != nil && !errors.Is(err, types.ErrClosed) {
		c.Close()
		return errors.Wrap(err, "waiting for DISCONNECT receipt")
	}

	return c.Close()
}

// Close tears the connection down: closes the socket, fails every pending
// receipt so waiters unblock, clears the subscription registry and
// callback list, and marks the client closed. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mutex.Lock()

	if c.state == stateClosed {
		c.mutex.Unlock()
		return nil
	}

	c.state = stateClosed

	s := c.stream
	c.stream = nil

	pending := c.receipts
	c.receipts = make(map[string]*Receipt)
	c.subscriptions = make(map[string]*Subscription)
	c.callbacks = nil

	c.mutex.Unlock()

	for _, r := range pending {
		r.fail(types.ErrClosed)
	}

	if s != nil {
		if err := s.Close(); err != nil {
			c.log.Debugf("error closing stream: %s", err)
		}
	}

	return nil
}
