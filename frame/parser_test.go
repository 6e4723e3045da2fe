package frame

import (
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// parseAll feeds the full byte sequence to a fresh parser and returns the
// completed frame plus the unconsumed remainder.
func parseAll(data []byte) (*Frame, []byte, error) {
	p := NewParser()

	rest, err := p.Process(data)
	if err != nil {
		return nil, rest, err
	}

	return p.Frame(), rest, nil
}

var _ = Describe("Parser", func() {
	Context("Process", func() {
		It("parses a complete frame in one chunk", func() {
			f, rest, err := parseAll([]byte("MESSAGE\ndestination:/queue/x\nsubscription:s.1\n\nhello\x00"))

			Expect(err).ToNot(HaveOccurred())
			Expect(rest).To(BeEmpty())
			Expect(f).ToNot(BeNil())
			Expect(f.Command).To(Equal("MESSAGE"))
			Expect(f.Get("destination", "")).To(Equal("/queue/x"))
			Expect(f.Get("subscription", "")).To(Equal("s.1"))
			Expect(f.Body).To(Equal([]byte("hello")))
		})

		It("is independent of chunk boundaries", func() {
			data := []byte("MESSAGE\ndestination:/queue/x\ncontent-length:5\n\nhello\x00")

			for split := 1; split < len(data); split++ {
				p := NewParser()

				first := make([]byte, split)
				copy(first, data[:split])

				rest, err := p.Process(first)
				Expect(err).ToNot(HaveOccurred())

				remainder := make([]byte, 0, len(rest)+len(data)-split)
				remainder = append(remainder, rest...)
				remainder = append(remainder, data[split:]...)
				rest, err = p.Process(remainder)
				Expect(err).ToNot(HaveOccurred())
				Expect(rest).To(BeEmpty(), fmt.Sprintf("split at %d", split))

				f := p.Frame()
				Expect(f).ToNot(BeNil(), fmt.Sprintf("split at %d", split))
				Expect(f.Command).To(Equal("MESSAGE"))
				Expect(f.Get("destination", "")).To(Equal("/queue/x"))
				Expect(f.Body).To(Equal([]byte("hello")))
			}
		})

		It("reads exactly content-length bytes, including NULs", func() {
			body := []byte("ab\x00cd")
			data := append([]byte("MESSAGE\ncontent-length:5\n\n"), body...)
			data = append(data, 0)

			f, rest, err := parseAll(data)

			Expect(err).ToNot(HaveOccurred())
			Expect(rest).To(BeEmpty())
			Expect(f).ToNot(BeNil())
			Expect(f.Body).To(Equal(body))
		})

		It("terminates an undeclared body at the first NUL", func() {
			f, rest, err := parseAll([]byte("MESSAGE\n\nbefore\x00after"))

			Expect(err).ToNot(HaveOccurred())
			Expect(f.Body).To(Equal([]byte("before")))
			Expect(rest).To(Equal([]byte("after")))
		})

		It("discards heartbeat lines before the command", func() {
			f, _, err := parseAll([]byte("\n\n\nRECEIPT\nreceipt-id:r.1\n\n\x00"))

			Expect(err).ToNot(HaveOccurred())
			Expect(f).ToNot(BeNil())
			Expect(f.Command).To(Equal("RECEIPT"))
			Expect(f.Get("receipt-id", "")).To(Equal("r.1"))
		})

		It("does not produce a frame from heartbeats alone", func() {
			p := NewParser()

			rest, err := p.Process([]byte("\n\n\n"))

			Expect(err).ToNot(HaveOccurred())
			Expect(rest).To(BeEmpty())
			Expect(p.Frame()).To(BeNil())
			Expect(p.Partial()).To(BeFalse())
		})

		It("splits header lines on the first colon only", func() {
			f, _, err := parseAll([]byte("MESSAGE\ncontent-type:text/plain;charset=utf-8\n\n\x00"))

			Expect(err).ToNot(HaveOccurred())
			Expect(f.Get("content-type", "")).To(Equal("text/plain;charset=utf-8"))
		})

		It("lets the last occurrence of a duplicate header win", func() {
			f, _, err := parseAll([]byte("MESSAGE\nfoo:first\nfoo:second\n\n\x00"))

			Expect(err).ToNot(HaveOccurred())
			Expect(f.Get("foo", "")).To(Equal("second"))
		})

		It("tolerates CRLF line endings", func() {
			f, _, err := parseAll([]byte("CONNECTED\r\nversion:1.2\r\n\r\n\x00"))

			Expect(err).ToNot(HaveOccurred())
			Expect(f.Command).To(Equal("CONNECTED"))
			Expect(f.Get("version", "")).To(Equal("1.2"))
		})

		It("fails fast on a malformed content-length", func() {
			_, _, err := parseAll([]byte("MESSAGE\ncontent-length:bogus\n\nhello\x00"))

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("invalid content-length"))
		})

		It("fails fast on a header line without a colon", func() {
			_, _, err := parseAll([]byte("MESSAGE\nnocolon\n\n\x00"))

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("malformed header line"))
		})

		It("retains bytes past the completed frame", func() {
			f, rest, err := parseAll([]byte("RECEIPT\nreceipt-id:r.1\n\n\x00MESSAGE\n"))

			Expect(err).ToNot(HaveOccurred())
			Expect(f.Command).To(Equal("RECEIPT"))
			Expect(rest).To(Equal([]byte("MESSAGE\n")))
		})

		It("reports partial state while mid-frame", func() {
			p := NewParser()

			_, err := p.Process([]byte("MESSAGE\ndest"))

			Expect(err).ToNot(HaveOccurred())
			Expect(p.Partial()).To(BeTrue())
			Expect(p.Frame()).To(BeNil())
		})
	})
})
