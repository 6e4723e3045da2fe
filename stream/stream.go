// Package stream provides the transport layer: a Stream owns a connected
// broker socket, writes serialized frames and incrementally assembles
// inbound frames across arbitrary TCP chunk boundaries.
package stream

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/imandr/easy-stomp/frame"
	"github.com/imandr/easy-stomp/types"
)

const DefaultReadSize = 4096

// Stream wraps one connected socket. Concurrent Send calls are serialized
// against each other so partial writes never interleave on the wire; Recv
// admits one logical reader at a time because the carry-over buffer and
// in-progress parser are shared state.
type Stream struct {
	conn     net.Conn
	readSize int
	buf      []byte

	sendMutex sync.Mutex
	recvMutex sync.Mutex

	log *logrus.Entry
}

func New(conn net.Conn) *Stream {
	return &Stream{
		conn:     conn,
		readSize: DefaultReadSize,
		log:      logrus.WithField("pkg", "stream"),
	}
}

// Send serializes the frame and writes it to the socket in one call.
func (s *Stream) Send(f *frame.Frame) error {
	data := f.Bytes()

	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()

	if _, err := s.conn.Write(data); err != nil {
		return errors.Wrap(err, "unable to write frame")
	}

	return nil
}

// Recv reads socket chunks until a complete frame is assembled and returns
// it. A timeout of 0 means no deadline; an exceeded deadline returns an
// error caused by types.ErrTimeout. A clean end-of-stream with no partial
// frame pending returns (nil, nil). Bytes past the returned frame are
// retained for the next call.
func (s *Stream) Recv(timeout time.Duration) (*frame.Frame, error) {
	s.recvMutex.Lock()
	defer s.recvMutex.Unlock()

	if timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, errors.Wrap(err, "unable to set read deadline")
		}

		defer s.conn.SetReadDeadline(time.Time{})
	}

	parser := frame.NewParser()

	for {
		if len(s.buf) > 0 {
			rest, err := parser.Process(s.buf)
			s.buf = rest

			if err != nil {
				return nil, errors.Wrap(err, "unable to parse frame")
			}

			if f := parser.Frame(); f != nil {
				return f, nil
			}
		}

		chunk := make([]byte, s.readSize)

		n, err := s.conn.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			continue
		}

		if err == nil {
			continue
		}

		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, errors.Wrap(types.ErrTimeout, "frame receive")
		}

		// Any other read failure is treated as end of stream.
		if err != io.EOF {
			s.log.Debugf("socket read error treated as end of stream: %s", err)
		}

		if len(s.buf) > 0 || parser.Partial() {
			return nil, errors.New("connection closed mid-frame")
		}

		return nil, nil
	}
}

// Close closes the underlying socket.
func (s *Stream) Close() error {
	return s.conn.Close()
}
