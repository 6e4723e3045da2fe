package main

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/imandr/easy-stomp/client"
	"github.com/imandr/easy-stomp/frame"
	"github.com/imandr/easy-stomp/options"
	"github.com/imandr/easy-stomp/printer"
)

const receiptWait = 30 * time.Second

func main() {
	kongCtx, opts, err := options.New(os.Args[1:])
	if err != nil {
		logrus.Fatalf("Unable to handle CLI input: %s", err)
	}

	if opts.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if opts.Quiet {
		logrus.SetLevel(logrus.ErrorLevel)
	}

	switch kongCtx.Command() {
	case "send <address> <destination>":
		err = runSend(opts)
	case "listen <address> <destination>":
		err = runListen(opts)
	case "chat <address>":
		err = runChat(opts)
	default:
		logrus.Fatalf("Unrecognized command: %s", kongCtx.Command())
	}

	if err != nil {
		logrus.Fatalf("Unable to complete command: %s", err)
	}
}

func runSend(opts *options.Options) error {
	c, err := client.Connect([]string{opts.Send.Address}, &client.ConnectOptions{
		Login:    opts.Send.Login,
		Passcode: opts.Send.Passcode,
	})
	if err != nil {
		return errors.Wrap(err, "unable to connect to broker")
	}
	defer c.Close()

	if opts.Send.Receipt {
		// Receipts are fulfilled from the receive path.
		go func() {
			if err := c.Loop("", 0); err != nil {
				logrus.Debugf("receive loop ended: %s", err)
			}
		}()
	}

	for i := 0; i < opts.Send.Count; i++ {
		body := []byte(fmt.Sprintf("message #%d", i))

		msgOpts := &client.MessageOptions{ID: uuid.NewString()}
		if opts.Send.Receipt {
			msgOpts.Receipt = client.ReceiptAuto
		}

		receipt, err := c.Message(opts.Send.Destination, body, msgOpts)
		if err != nil {
			return errors.Wrap(err, "unable to send message")
		}

		if receipt != nil {
			if _, err := receipt.Wait(receiptWait); err != nil {
				return errors.Wrap(err, "waiting for message receipt")
			}
		}
	}

	logrus.Infof("Sent %d message(s) to '%s'", opts.Send.Count, opts.Send.Destination)

	return nil
}

func runListen(opts *options.Options) error {
	ackMode, err := client.ParseAckMode(opts.Listen.Ack)
	if err != nil {
		return errors.Wrap(err, "unable to parse ack mode")
	}

	c, err := client.Connect([]string{opts.Listen.Address}, &client.ConnectOptions{
		Login:    opts.Listen.Login,
		Passcode: opts.Listen.Passcode,
	})
	if err != nil {
		return errors.Wrap(err, "unable to connect to broker")
	}
	defer c.Close()

	if _, err := c.Subscribe(opts.Listen.Destination, ackMode, true); err != nil {
		return errors.Wrap(err, "unable to subscribe")
	}

	p := printer.New()

	c.AddCallback(func(_ *client.Client, f *frame.Frame) client.DispatchResult {
		if f.Command == frame.CmdMessage {
			p.Delivery(f)
		}

		return client.Continue
	})

	logrus.Infof("Listening on '%s' ...", opts.Listen.Destination)

	return c.Loop("", 0)
}

func runChat(opts *options.Options) error {
	chatID := opts.Chat.ID
	if chatID == "" {
		chatID = strconv.Itoa(os.Getpid())
	}

	c, err := client.Connect([]string{opts.Chat.Address}, &client.ConnectOptions{
		Login:    opts.Chat.Login,
		Passcode: opts.Chat.Passcode,
	})
	if err != nil {
		return errors.Wrap(err, "unable to connect to broker")
	}
	defer c.Close()

	if _, err := c.Subscribe(opts.Chat.Destination, client.AckAuto, true); err != nil {
		return errors.Wrap(err, "unable to subscribe")
	}

	p := printer.New()

	c.AddCallback(func(_ *client.Client, f *frame.Frame) client.DispatchResult {
		if f.Command == frame.CmdMessage {
			p.ChatDelivery(f)
		}

		return client.Continue
	})

	doneCh := make(chan error, 1)

	go func() {
		doneCh <- c.Loop("", 0)
	}()

	if opts.Chat.Silent {
		return <-doneCh
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	for seq := 1; ; seq++ {
		select {
		case err := <-doneCh:
			return err
		case <-time.After(time.Duration(rnd.Int63n(int64(5 * time.Second)))):
		}

		msg := fmt.Sprintf("message %s:%d", chatID, seq)

		h := frame.Headers{}
		h.Set("from", chatID)

		receipt, err := c.Message(opts.Chat.Destination, []byte(msg), &client.MessageOptions{
			ID:      uuid.NewString(),
			Headers: h,
			Receipt: client.ReceiptAuto,
		})
		if err != nil {
			return errors.Wrap(err, "unable to send chat message")
		}

		p.ChatSent(chatID, msg)

		if _, err := receipt.Wait(receiptWait); err != nil {
			return errors.Wrap(err, "waiting for chat receipt")
		}
	}
}
