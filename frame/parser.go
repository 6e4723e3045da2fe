package frame

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type parseState int

const (
	stateAwaitCommand parseState = iota
	stateReadingHeaders
	stateReadingBody
	stateComplete
)

// Parser assembles a single Frame from an incoming byte stream. Feed it
// chunks via Process; once Frame returns non-nil the parser is spent and a
// fresh one is needed for the next frame.
//
// The result is independent of how the byte stream is split into chunks.
type Parser struct {
	state     parseState
	command   string
	headers   Headers
	body      []byte
	remaining int // fixed body bytes still to read when content-length was given
	frame     *Frame
}

func NewParser() *Parser {
	return &Parser{}
}

// Frame returns the completed frame, or nil while parsing is in progress.
func (p *Parser) Frame() *Frame {
	return p.frame
}

// Partial reports whether the parser holds a partially assembled frame.
func (p *Parser) Partial() bool {
	return p.state != stateAwaitCommand && p.state != stateComplete
}

// Process consumes as much of buf as possible and returns the unconsumed
// remainder. Blank lines before the command line are heartbeats and are
// discarded without producing a frame.
func (p *Parser) Process(buf []byte) ([]byte, error) {
	for len(buf) > 0 && p.state != stateComplete {
		switch p.state {
		case stateAwaitCommand:
			line, rest, ok := readLine(buf)
			if !ok {
				return buf, nil
			}
			buf = rest
			if line != "" {
				p.command = line
				p.state = stateReadingHeaders
			}

		case stateReadingHeaders:
			line, rest, ok := readLine(buf)
			if !ok {
				return buf, nil
			}
			buf = rest
			if line == "" {
				if v, ok := p.headers.Lookup("content-length"); ok {
					length, err := strconv.Atoi(strings.TrimSpace(v))
					if err != nil || length < 0 {
						return buf, errors.Errorf("invalid content-length header '%s'", v)
					}
					p.remaining = length
				}
				p.state = stateReadingBody
			} else {
				name, value, found := strings.Cut(line, ":")
				if !found {
					return buf, errors.Errorf("malformed header line '%s'", line)
				}
				// Last occurrence of a duplicate name wins.
				p.headers.Set(name, value)
			}

		case stateReadingBody:
			if p.remaining > 0 {
				n := p.remaining
				if n > len(buf) {
					n = len(buf)
				}
				p.body = append(p.body, buf[:n]...)
				p.remaining -= n
				buf = buf[n:]
			} else if i := bytes.IndexByte(buf, 0); i >= 0 {
				p.body = append(p.body, buf[:i]...)
				buf = buf[i+1:]
				p.frame = New(p.command, p.headers, p.body)
				p.state = stateComplete
			} else {
				p.body = append(p.body, buf...)
				buf = nil
			}
		}
	}

	return buf, nil
}

// readLine splits off the first newline-terminated line, trimming
// surrounding whitespace (including any trailing CR). ok is false when buf
// holds no complete line yet.
func readLine(buf []byte) (line string, rest []byte, ok bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return "", buf, false
	}

	return strings.TrimSpace(string(buf[:i])), buf[i+1:], true
}
