package frame

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Frame", func() {
	Context("Bytes", func() {
		It("serializes command, headers in insertion order, body and NUL", func() {
			h := Headers{}
			h.Set("destination", "/queue/x")
			h.Set("custom", "value")

			f := New(CmdSend, h, nil)

			Expect(f.Bytes()).To(Equal([]byte("SEND\ndestination:/queue/x\ncustom:value\n\n\x00")))
		})

		It("injects content-length for a non-empty body", func() {
			h := Headers{}
			h.Set("destination", "/queue/x")

			f := New(CmdSend, h, []byte("hello"))

			Expect(string(f.Bytes())).To(Equal("SEND\ndestination:/queue/x\ncontent-length:5\n\nhello\x00"))
		})

		It("respects an explicit content-length", func() {
			h := Headers{}
			h.Set("content-length", "5")

			f := New(CmdSend, h, []byte("hello"))

			Expect(string(f.Bytes())).To(Equal("SEND\ncontent-length:5\n\nhello\x00"))
		})

		It("does not mutate the caller's headers", func() {
			h := Headers{}
			h.Set("destination", "/queue/x")

			New(CmdSend, h, []byte("hello")).Bytes()

			Expect(h.Has("content-length")).To(BeFalse())
		})

		It("round-trips through the parser", func() {
			h := Headers{}
			h.Set("destination", "/queue/x")
			h.Set("custom", "a:b:c")

			original := New(CmdSend, h, []byte("payload"))

			p := NewParser()
			rest, err := p.Process(original.Bytes())
			Expect(err).ToNot(HaveOccurred())
			Expect(rest).To(BeEmpty())

			parsed := p.Frame()
			Expect(parsed).ToNot(BeNil())
			Expect(parsed.Command).To(Equal(original.Command))
			Expect(parsed.Get("destination", "")).To(Equal("/queue/x"))
			Expect(parsed.Get("custom", "")).To(Equal("a:b:c"))
			Expect(parsed.Body).To(Equal([]byte("payload")))
			Expect(parsed.Bytes()).To(Equal(original.Bytes()))
		})
	})

	Context("Headers", func() {
		It("preserves insertion order and overwrites in place", func() {
			h := Headers{}
			h.Set("a", "1")
			h.Set("b", "2")
			h.Set("a", "3")

			Expect(h).To(Equal(Headers{{"a", "3"}, {"b", "2"}}))
		})

		It("falls back to the default on a missing name", func() {
			h := Headers{}

			Expect(h.Get("missing", "default")).To(Equal("default"))
			Expect(h.Has("missing")).To(BeFalse())
		})
	})

	Context("Text", func() {
		It("decodes UTF-8 by default", func() {
			f := New(CmdMessage, nil, []byte("héllo"))

			text, err := f.Text()
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("héllo"))
		})

		It("honors the charset parameter of content-type", func() {
			h := Headers{}
			h.Set("content-type", "text/plain;charset=iso-8859-1")

			// "héllo" in latin-1
			f := New(CmdMessage, h, []byte{'h', 0xe9, 'l', 'l', 'o'})

			text, err := f.Text()
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(Equal("héllo"))
		})

		It("fails on an unknown charset", func() {
			h := Headers{}
			h.Set("content-type", "text/plain;charset=no-such-charset")

			_, err := New(CmdMessage, h, []byte("x")).Text()
			Expect(err).To(HaveOccurred())
		})
	})

	Context("Destination", func() {
		It("returns the destination header", func() {
			h := Headers{}
			h.Set("destination", "/topic/news")

			Expect(New(CmdMessage, h, nil).Destination()).To(Equal("/topic/news"))
		})
	})
})
