package event

import (
	"errors"

	"github.com/luma/esl/escodec"
)

// Content-Type values recognised by this library. Anything else is an
// unknown category; the raw headers and body are still available, just
// with every Is* predicate returning false.
const (
	ContentTypeCommandReply     = "command/reply"
	ContentTypeAPIResponse      = "api/response"
	ContentTypeEventPlain       = "text/event-plain"
	ContentTypeEventJSON        = "text/event-json"
	ContentTypeEventXML         = "text/event-xml"
	ContentTypeDisconnectNotice = "text/disconnect-notice"
	ContentTypeAuthRequest      = "auth/request"
)

var (
	// ErrMalformedBody is returned by Cast() accessors when the body
	// cannot be parsed in the requested format. The Event itself remains
	// usable via Header/Bytes.
	ErrMalformedBody = errors.New("event: malformed body")

	// ErrUnsupportedFormat is returned when a format accessor is called
	// while that format's gate is disabled.
	ErrUnsupportedFormat = errors.New("event: format support not enabled")
)

// JSONEnabled gates Cast().JSON(). It models the "json" feature of §6 of
// the specification: disabling it makes JSON() fail with
// ErrUnsupportedFormat without otherwise touching the event. Left enabled
// by default since this module always links gjson.
var JSONEnabled = true

// Event is a tagged view over a RawEvent: format selection happens on
// demand from Content-Type rather than through a runtime type hierarchy.
type Event struct {
	raw *escodec.RawEvent
}

// New wraps a decoded RawEvent as an Event.
func New(raw *escodec.RawEvent) *Event {
	return &Event{raw: raw}
}

// Raw returns the underlying RawEvent.
func (e *Event) Raw() *escodec.RawEvent {
	return e.raw
}

// ContentType returns the Content-Type header, or "" if absent.
func (e *Event) ContentType() string {
	return e.raw.ContentType()
}

// Header looks up a top-level header.
func (e *Event) Header(name string) (string, bool) {
	return e.raw.Header(name)
}

// HeaderAll returns every occurrence of a top-level header, in wire
// order.
func (e *Event) HeaderAll(name string) []string {
	return e.raw.HeaderAll(name)
}

// Bytes returns the body verbatim.
func (e *Event) Bytes() []byte {
	return e.raw.Body
}

// IsCommandReply reports whether this is a synchronous command reply.
func (e *Event) IsCommandReply() bool {
	return e.ContentType() == ContentTypeCommandReply
}

// IsAPIResponse reports whether this is the reply body to an api
// command.
func (e *Event) IsAPIResponse() bool {
	return e.ContentType() == ContentTypeAPIResponse
}

// IsReply reports whether this event is a reply (command/reply or
// api/response) rather than an unsolicited event.
func (e *Event) IsReply() bool {
	return e.IsCommandReply() || e.IsAPIResponse()
}

// IsJSON reports whether the body is a JSON-formatted event.
func (e *Event) IsJSON() bool {
	return e.ContentType() == ContentTypeEventJSON
}

// IsPlain reports whether the body is a plain-text event (a nested
// header block).
func (e *Event) IsPlain() bool {
	return e.ContentType() == ContentTypeEventPlain
}

// IsXML reports whether the body is an XML-formatted event.
func (e *Event) IsXML() bool {
	return e.ContentType() == ContentTypeEventXML
}

// IsDisconnectNotice reports whether this is the peer's terminal
// disconnect notice.
func (e *Event) IsDisconnectNotice() bool {
	return e.ContentType() == ContentTypeDisconnectNotice
}

// IsAuthRequest reports whether this is the server's initial
// authentication prompt.
func (e *Event) IsAuthRequest() bool {
	return e.ContentType() == ContentTypeAuthRequest
}

// Cast returns a projection exposing format-specialized accessors
// (JSON/Plain/XML), computed on demand from Content-Type.
func (e *Event) Cast() Projection {
	return Projection{e: e}
}

// Projection is the zero-copy format-specific view obtained from
// Event.Cast().
type Projection struct {
	e *Event
}
