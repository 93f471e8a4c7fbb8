package escodec_test

import (
	"bytes"
	"errors"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/esl/escodec"
)

var _ = Describe("Decoder", func() {
	Describe("Decode()", func() {
		It("parses a header-only message terminated by a blank line", func() {
			d := escodec.NewDecoder(bytes.NewReader([]byte("Content-Type: command/reply\nReply-Text: +OK accepted\n\n")))

			ev, err := d.Decode()
			Expect(err).To(Succeed())

			ct, ok := ev.Header("Content-Type")
			Expect(ok).To(BeTrue())
			Expect(ct).To(Equal("command/reply"))

			rt, ok := ev.Header("Reply-Text")
			Expect(ok).To(BeTrue())
			Expect(rt).To(Equal("+OK accepted"))

			Expect(ev.Body).To(BeEmpty())
		})

		It("tolerates CRLF line endings", func() {
			d := escodec.NewDecoder(bytes.NewReader([]byte("Content-Type: auth/request\r\n\r\n")))

			ev, err := d.Decode()
			Expect(err).To(Succeed())
			Expect(ev.ContentType()).To(Equal("auth/request"))
		})

		It("reads exactly Content-Length bytes as the body", func() {
			d := escodec.NewDecoder(bytes.NewReader([]byte("Content-Type: api/response\nContent-Length: 5\n\nHELLOtrailing-garbage")))

			ev, err := d.Decode()
			Expect(err).To(Succeed())
			Expect(ev.Body).To(Equal([]byte("HELLO")))
		})

		It("preserves first-occurrence order and does not merge duplicate headers", func() {
			d := escodec.NewDecoder(bytes.NewReader([]byte("X-Foo: first\nX-Foo: second\n\n")))

			ev, err := d.Decode()
			Expect(err).To(Succeed())

			v, ok := ev.Header("X-Foo")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("first"))

			Expect(ev.HeaderAll("X-Foo")).To(Equal([]string{"first", "second"}))
		})

		It("allows header values to contain colons", func() {
			d := escodec.NewDecoder(bytes.NewReader([]byte("Event-Date-Timestamp: 2024-01-01 00:00:00\n\n")))

			ev, err := d.Decode()
			Expect(err).To(Succeed())

			v, _ := ev.Header("Event-Date-Timestamp")
			Expect(v).To(Equal("2024-01-01 00:00:00"))
		})

		It("returns ErrMalformedHeader for a header line missing a colon", func() {
			d := escodec.NewDecoder(bytes.NewReader([]byte("not-a-header-line\n\n")))

			_, err := d.Decode()
			Expect(errors.Is(err, escodec.ErrMalformedHeader)).To(BeTrue())
		})

		It("returns ErrMalformedContentLength for a non-numeric Content-Length", func() {
			d := escodec.NewDecoder(bytes.NewReader([]byte("Content-Length: not-a-number\n\n")))

			_, err := d.Decode()
			Expect(errors.Is(err, escodec.ErrMalformedContentLength)).To(BeTrue())
		})

		It("returns an error when EOF is reached before a blank line", func() {
			d := escodec.NewDecoder(bytes.NewReader([]byte("Content-Type: command/reply")))

			_, err := d.Decode()
			Expect(errors.Is(err, io.EOF)).To(BeTrue())
		})

		It("decodes multiple consecutive messages from the same stream", func() {
			d := escodec.NewDecoder(bytes.NewReader([]byte(
				"Content-Type: command/reply\n\nContent-Type: text/event-plain\nContent-Length: 4\n\nabcd")))

			first, err := d.Decode()
			Expect(err).To(Succeed())
			Expect(first.ContentType()).To(Equal("command/reply"))

			second, err := d.Decode()
			Expect(err).To(Succeed())
			Expect(second.ContentType()).To(Equal("text/event-plain"))
			Expect(second.Body).To(Equal([]byte("abcd")))
		})
	})
})
