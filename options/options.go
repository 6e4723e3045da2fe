// Package options holds the CLI option structs and performs "light"
// validation. Heavier validation is left to the command implementations.
package options

import (
	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
)

// Options is the root of the CLI grammar.
type Options struct {
	Debug bool `help:"Enable debug output." short:"d"`
	Quiet bool `help:"Only log errors." short:"q"`

	Send   SendOptions   `cmd:"" help:"Send one or more messages to a destination."`
	Listen ListenOptions `cmd:"" help:"Subscribe to a destination and print deliveries."`
	Chat   ChatOptions   `cmd:"" help:"Join a shared destination, relaying and printing chat messages."`
}

type SendOptions struct {
	Address     string `arg:"" help:"Broker address as host:port."`
	Destination string `arg:"" help:"Destination to send to."`

	Count    int    `short:"n" default:"1" help:"Number of messages to send."`
	Login    string `help:"Broker login."`
	Passcode string `help:"Broker passcode."`
	Receipt  bool   `help:"Request a broker receipt for every message and wait for it."`
}

type ListenOptions struct {
	Address     string `arg:"" help:"Broker address as host:port."`
	Destination string `arg:"" help:"Destination to subscribe to."`

	Ack      string `default:"auto" enum:"auto,client,client-individual" help:"Subscription ack mode."`
	Login    string `help:"Broker login."`
	Passcode string `help:"Broker passcode."`
}

type ChatOptions struct {
	Address string `arg:"" help:"Broker address as host:port."`

	Destination string `default:"chat" help:"Chat destination."`
	ID          string `short:"i" help:"Chat handle (default: process id)."`
	Silent      bool   `help:"Listen only, do not send."`
	Login       string `help:"Broker login."`
	Passcode    string `help:"Broker passcode."`
}

// New parses CLI arguments into Options.
func New(args []string) (*kong.Context, *Options, error) {
	opts := &Options{}

	k, err := kong.New(
		opts,
		kong.Name("easy-stomp"),
		kong.Description("A minimal STOMP 1.2 client with example programs."),
		kong.ShortUsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to create new kong instance")
	}

	kongCtx, err := k.Parse(args)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to parse CLI options")
	}

	return kongCtx, opts, nil
}
