package client

import (
	"github.com/pkg/errors"
)

// AckMode governs whether and how deliveries on a subscription must be
// acknowledged by the subscriber.
type AckMode int

const (
	AckAuto AckMode = iota
	AckClient
	AckClientIndividual
)

// ParseAckMode maps the STOMP ack header values onto AckMode.
func ParseAckMode(s string) (AckMode, error) {
	switch s {
	case "auto":
		return AckAuto, nil
	case "client":
		return AckClient, nil
	case "client-individual":
		return AckClientIndividual, nil
	}

	return 0, errors.Errorf("unknown ack mode '%s'", s)
}

func (m AckMode) String() string {
	switch m {
	case AckAuto:
		return "auto"
	case AckClient:
		return "client"
	case AckClientIndividual:
		return "client-individual"
	}

	return "unknown"
}

// Subscription records one active subscription on a connection. AutoAck
// controls whether the client acknowledges deliveries on the caller's
// behalf before handing them out.
type Subscription struct {
	ID          string
	Destination string
	AckMode     AckMode
	AutoAck     bool

	client *Client // non-owning
}

// Cancel removes the subscription from the owning client.
func (s *Subscription) Cancel() error {
	return s.client.Unsubscribe(s.ID)
}
