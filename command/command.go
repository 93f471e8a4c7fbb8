package command

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidCommand is returned by the builder functions when a
// caller-supplied field would corrupt the command framing (an embedded
// newline, which could forge a premature blank-line terminator or extra
// header lines).
var ErrInvalidCommand = errors.New("command: field contains an embedded newline")

// Command is a single ESL request: a command line, zero or more header
// lines (used by sendmsg), and a trailing blank line. It carries no
// Content-Length body: execute's application argument travels as a
// header value, per the wire form in the ESL outbound/inbound protocol,
// and the optional body SendMsg and SendEvent accept is written as one
// more line after the sub-headers.
type Command struct {
	line    string
	headers []string
}

// WriteTo serializes the command onto w: the command line, each header
// line, then a single blank line terminator. Callers that need the write
// to be atomic with respect to other writers must hold their own lock
// around WriteTo; Command itself does no locking.
func (c Command) WriteTo(w io.Writer) (int64, error) {
	var n int64

	wr := func(s string) error {
		written, err := io.WriteString(w, s)
		n += int64(written)
		return err
	}

	if err := wr(c.line); err != nil {
		return n, err
	}
	if err := wr("\n"); err != nil {
		return n, err
	}

	for _, h := range c.headers {
		if err := wr(h); err != nil {
			return n, err
		}
		if err := wr("\n"); err != nil {
			return n, err
		}
	}

	if err := wr("\n"); err != nil {
		return n, err
	}

	return n, nil
}

// validateField rejects any caller-supplied field that embeds a newline,
// since that could forge additional header lines or an early terminator.
func validateField(field string) error {
	if strings.ContainsAny(field, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, field)
	}
	return nil
}

// API builds an "api <s>" command. The immediate reply carries the result
// in its body (api/response).
func API(s string) (Command, error) {
	if err := validateField(s); err != nil {
		return Command{}, err
	}
	return Command{line: "api " + s}, nil
}

// BGAPI builds a "bgapi <s>" command. The immediate reply only
// acknowledges the job; the result arrives later as a BACKGROUND_JOB
// event.
func BGAPI(s string) (Command, error) {
	if err := validateField(s); err != nil {
		return Command{}, err
	}
	return Command{line: "bgapi " + s}, nil
}

// EventsPlain builds an "event plain <classes>" subscription command.
func EventsPlain(classes ...string) (Command, error) {
	return eventsCommand("plain", classes)
}

// EventsJSON builds an "event json <classes>" subscription command.
func EventsJSON(classes ...string) (Command, error) {
	return eventsCommand("json", classes)
}

// EventsXML builds an "event xml <classes>" subscription command.
func EventsXML(classes ...string) (Command, error) {
	return eventsCommand("xml", classes)
}

func eventsCommand(format string, classes []string) (Command, error) {
	joined := strings.Join(classes, " ")
	if err := validateField(joined); err != nil {
		return Command{}, err
	}
	return Command{line: "event " + format + " " + joined}, nil
}

// Filter builds a "filter <header> <value>" command. Additive: only
// events matching every active filter are delivered.
func Filter(header, value string) (Command, error) {
	if err := validateField(header); err != nil {
		return Command{}, err
	}
	if err := validateField(value); err != nil {
		return Command{}, err
	}
	return Command{line: "filter " + header + " " + value}, nil
}

// FilterDelete builds a "filter delete <header> <value>" command,
// removing a previously installed filter.
func FilterDelete(header, value string) (Command, error) {
	if err := validateField(header); err != nil {
		return Command{}, err
	}
	if err := validateField(value); err != nil {
		return Command{}, err
	}
	return Command{line: "filter delete " + header + " " + value}, nil
}

// Auth builds an "auth <password>" command, sent once in response to the
// initial auth/request event in Inbound mode.
func Auth(password string) (Command, error) {
	if err := validateField(password); err != nil {
		return Command{}, err
	}
	return Command{line: "auth " + password}, nil
}

// Connect builds the Outbound handshake's "connect" command.
func Connect() Command {
	return Command{line: "connect"}
}

// MyEvents builds the "myevents" command, scoping the event subscription
// to the call leg associated with the current Outbound connection.
func MyEvents() Command {
	return Command{line: "myevents"}
}

// Exit builds the "exit" command, asking the peer to close the
// connection.
func Exit() Command {
	return Command{line: "exit"}
}

// Linger builds the "linger" command, asking FreeSWITCH to keep an
// Outbound socket open after the channel hangs up so hangup-related
// events remain deliverable.
func Linger() Command {
	return Command{line: "linger"}
}

// HeaderField is a single ordered "Name: Value" sub-header line, used by
// SendMsg to build the header block that follows a "sendmsg" line.
type HeaderField struct {
	Name  string
	Value string
}

// Execute builds a "sendmsg <uuid>" block with call-command: execute,
// the standard way to drive dialplan applications from either Inbound
// (with an explicit uuid) or Outbound (uuid of the connection's own call
// leg) connections.
func Execute(uuid, app, arg string) (Command, error) {
	headers := []HeaderField{
		{Name: "call-command", Value: "execute"},
		{Name: "execute-app-name", Value: app},
	}
	if arg != "" {
		headers = append(headers, HeaderField{Name: "execute-app-arg", Value: arg})
	}
	return SendMsg(uuid, headers, nil)
}

// SendMsg builds a general "sendmsg <uuid>" command with arbitrary
// sub-headers, in the order given, and an optional literal body. Headers
// with an empty value are omitted, mirroring FreeSWITCH's own sendmsg
// convention.
func SendMsg(uuid string, headers []HeaderField, body []byte) (Command, error) {
	if err := validateField(uuid); err != nil {
		return Command{}, err
	}

	line := "sendmsg"
	if uuid != "" {
		line += " " + uuid
	}

	c := Command{line: line}

	for _, h := range headers {
		if h.Value == "" {
			continue
		}
		if err := validateField(h.Name); err != nil {
			return Command{}, err
		}
		if err := validateField(h.Value); err != nil {
			return Command{}, err
		}
		c.headers = append(c.headers, h.Name+": "+h.Value)
	}

	if len(body) > 0 {
		if strings.ContainsAny(string(body), "\r\n") {
			return Command{}, fmt.Errorf("%w: body must be a single line for sendmsg", ErrInvalidCommand)
		}
		c.headers = append(c.headers, string(body))
	}

	return c, nil
}

// SendEvent builds a "sendevent <name>" command, injecting a custom event
// into FreeSWITCH's event system with the given sub-headers and optional
// literal body.
func SendEvent(name string, headers []HeaderField, body []byte) (Command, error) {
	if err := validateField(name); err != nil {
		return Command{}, err
	}

	c := Command{line: "sendevent " + name}

	for _, hdr := range headers {
		if hdr.Value == "" {
			continue
		}
		if err := validateField(hdr.Name); err != nil {
			return Command{}, err
		}
		if err := validateField(hdr.Value); err != nil {
			return Command{}, err
		}
		c.headers = append(c.headers, hdr.Name+": "+hdr.Value)
	}

	if len(body) > 0 {
		if strings.ContainsAny(string(body), "\r\n") {
			return Command{}, fmt.Errorf("%w: body must be a single line for sendevent", ErrInvalidCommand)
		}
		c.headers = append(c.headers, string(body))
	}

	return c, nil
}

// Raw builds a Command from a single already-formed command line, for
// callers that need a command this package does not enumerate a builder
// for. line must not contain a newline.
func Raw(line string) (Command, error) {
	if err := validateField(line); err != nil {
		return Command{}, err
	}
	return Command{line: line}, nil
}
