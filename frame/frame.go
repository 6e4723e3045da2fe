// Package frame implements the STOMP 1.2 frame codec: the Frame value type,
// its wire serialization and an incremental Parser that assembles frames out
// of arbitrary byte chunks.
package frame

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/ianaindex"
)

// Commands recognized by STOMP 1.2.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdAck         = "ACK"
	CmdNack        = "NACK"
	CmdBegin       = "BEGIN"
	CmdCommit      = "COMMIT"
	CmdAbort       = "ABORT"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
)

// Header is a single name/value pair.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered set of header pairs. Insertion order is preserved
// for serialization. Set overwrites an existing name in place, so a name
// keeps the position of its first insertion while the last written value
// wins.
type Headers []Header

// Set adds the header, overwriting the value in place if the name is
// already present.
func (h *Headers) Set(name, value string) {
	for i := range *h {
		if (*h)[i].Name == name {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Lookup returns the value for name and whether it is present.
func (h Headers) Lookup(name string) (string, bool) {
	for i := range h {
		if h[i].Name == name {
			return h[i].Value, true
		}
	}
	return "", false
}

// Get returns the value for name, or def if the header is absent.
func (h Headers) Get(name, def string) string {
	if v, ok := h.Lookup(name); ok {
		return v
	}
	return def
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}

// Clone returns an independent copy of the header set.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Frame is one discrete STOMP protocol message unit. A Frame produced by
// the Parser should be treated as read-only.
type Frame struct {
	Command string
	Headers Headers
	Body    []byte
}

// New builds a frame from a command, an optional header set and an optional
// body.
func New(command string, headers Headers, body []byte) *Frame {
	return &Frame{
		Command: command,
		Headers: headers,
		Body:    body,
	}
}

// Bytes serializes the frame to its wire form: the command line, each
// header as "name:value" in insertion order, a blank line, the body and a
// single NUL terminator. If the body is non-empty and the caller did not
// supply a content-length header, one is computed and injected.
func (f *Frame) Bytes() []byte {
	headers := f.Headers
	if len(f.Body) > 0 && !headers.Has("content-length") {
		headers = headers.Clone()
		headers.Set("content-length", strconv.Itoa(len(f.Body)))
	}

	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')
	for _, h := range headers {
		b.WriteString(h.Name)
		b.WriteByte(':')
		b.WriteString(h.Value)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)

	return b.Bytes()
}

// Get returns the value of the named header, or def if absent.
func (f *Frame) Get(name, def string) string {
	return f.Headers.Get(name, def)
}

// Has reports whether the named header is present.
func (f *Frame) Has(name string) bool {
	return f.Headers.Has(name)
}

// Destination returns the destination header ("" if absent).
func (f *Frame) Destination() string {
	return f.Headers.Get("destination", "")
}

// Text decodes the body as text. The charset parameter of the content-type
// header selects the encoding; UTF-8 is assumed when it is absent.
func (f *Frame) Text() (string, error) {
	charset := "utf-8"

	if ct, ok := f.Headers.Lookup("content-type"); ok {
		for _, part := range strings.Split(ct, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, "charset=") {
				charset = strings.TrimPrefix(part, "charset=")
			}
		}
	}

	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return "", errors.Wrapf(err, "unknown charset '%s'", charset)
	}

	if enc == nil {
		return "", errors.Errorf("unsupported charset '%s'", charset)
	}

	decoded, err := enc.NewDecoder().Bytes(f.Body)
	if err != nil {
		return "", errors.Wrap(err, "unable to decode frame body")
	}

	return string(decoded), nil
}
