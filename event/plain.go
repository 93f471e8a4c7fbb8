package event

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/luma/esl/escodec"
)

// PlainEvent is the plain-text-specialized projection of an Event whose
// Content-Type is text/event-plain: the body is itself a second header
// block, optionally followed by a secondary body delimited by a
// Content-Length header found within that nested block.
type PlainEvent struct {
	inner *escodec.RawEvent
	outer *Event
}

// Header resolves name in the nested header block first, falling back to
// the outer Event's top-level headers. Values are URL-decoded on read,
// since FreeSWITCH URL-encodes plain-event header values.
func (p *PlainEvent) Header(name string) (string, bool) {
	if v, ok := p.inner.Header(name); ok {
		return urlDecode(v), true
	}
	if v, ok := p.outer.Header(name); ok {
		return urlDecode(v), true
	}
	return "", false
}

// Bytes returns the nested block's own body, if Content-Length appeared
// within the nested headers.
func (p *PlainEvent) Bytes() []byte {
	return p.inner.Body
}

func urlDecode(v string) string {
	decoded, err := url.QueryUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}

// Plain parses the body as a nested "Name: Value" header block.
func (p Projection) Plain() (*PlainEvent, error) {
	inner, err := parseHeaderBlock(p.e.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return &PlainEvent{inner: inner, outer: p.e}, nil
}

// parseHeaderBlock parses a bounded in-memory buffer as a header block
// in the same "Name: Value\n" form the wire codec uses, but tolerates the
// buffer ending without a trailing blank line (the nested block is a
// slice of an already fully-received body, not a live stream, so EOF is
// an acceptable terminator rather than a framing error).
func parseHeaderBlock(data []byte) (*escodec.RawEvent, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	var headers []escodec.Header

	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		atEOF := err == io.EOF

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			break
		}

		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("header line missing a ':' separator: %q", line)
		}

		name := line[:idx]
		value := strings.TrimPrefix(line[idx+1:], " ")
		headers = append(headers, escodec.Header{Name: name, Value: value})

		if atEOF {
			break
		}
	}

	ev := &escodec.RawEvent{Headers: headers}

	if v, ok := ev.Header("Content-Length"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			rest, _ := io.ReadAll(r)
			if len(rest) > n {
				rest = rest[:n]
			}
			ev.Body = rest
		}
	}

	return ev, nil
}
