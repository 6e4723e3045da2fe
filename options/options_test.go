package options

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestNew_sendCommand(t *testing.T) {
	g := NewGomegaWithT(t)

	kongCtx, opts, err := New([]string{
		"send", "10.0.0.5:61613", "/queue/x",
		"--count", "3", "--login", "admin", "--passcode", "pw", "--receipt",
	})

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(kongCtx.Command()).To(Equal("send <address> <destination>"))
	g.Expect(opts.Send.Address).To(Equal("10.0.0.5:61613"))
	g.Expect(opts.Send.Destination).To(Equal("/queue/x"))
	g.Expect(opts.Send.Count).To(Equal(3))
	g.Expect(opts.Send.Login).To(Equal("admin"))
	g.Expect(opts.Send.Passcode).To(Equal("pw"))
	g.Expect(opts.Send.Receipt).To(BeTrue())
}

func TestNew_listenDefaults(t *testing.T) {
	g := NewGomegaWithT(t)

	kongCtx, opts, err := New([]string{"listen", "localhost:61613", "/topic/news"})

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(kongCtx.Command()).To(Equal("listen <address> <destination>"))
	g.Expect(opts.Listen.Ack).To(Equal("auto"))
}

func TestNew_listenRejectsUnknownAckMode(t *testing.T) {
	g := NewGomegaWithT(t)

	_, _, err := New([]string{"listen", "localhost:61613", "/topic/news", "--ack", "bogus"})

	g.Expect(err).To(HaveOccurred())
}

func TestNew_chatDestinationDefault(t *testing.T) {
	g := NewGomegaWithT(t)

	kongCtx, opts, err := New([]string{"chat", "localhost:61613"})

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(kongCtx.Command()).To(Equal("chat <address>"))
	g.Expect(opts.Chat.Destination).To(Equal("chat"))
}

func TestNew_unknownCommand(t *testing.T) {
	g := NewGomegaWithT(t)

	_, _, err := New([]string{"frobnicate"})

	g.Expect(err).To(HaveOccurred())
}
