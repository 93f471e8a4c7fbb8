package esl

import (
	"errors"
	"fmt"
)

// Kind classifies a ConnError, mirroring the stable error taxonomy a
// caller can safely switch on without string matching.
type Kind int

const (
	// KindConnectError means the transport dial itself failed.
	KindConnectError Kind = iota
	// KindAuthFailed means an Inbound "auth" command did not get +OK.
	KindAuthFailed
	// KindHandshakeError means an Outbound "connect" reply was missing
	// required fields (Unique-ID).
	KindHandshakeError
	// KindProtocolError means the peer violated the wire protocol: a
	// reply arrived with no pending request to match it to, or framing
	// could not be decoded. Fatal to the connection.
	KindProtocolError
	// KindDisconnected means the peer closed the connection or sent its
	// disconnect notice. Terminal; delivered to every pending and future
	// waiter.
	KindDisconnected
)

func (k Kind) String() string {
	switch k {
	case KindConnectError:
		return "ConnectError"
	case KindAuthFailed:
		return "AuthFailed"
	case KindHandshakeError:
		return "HandshakeError"
	case KindProtocolError:
		return "ProtocolError"
	case KindDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// ConnError is the fatal-to-the-connection error type returned by
// SendRecv/Recv once a connection has failed or been torn down. Kind lets
// callers branch without string matching; Unwrap exposes the underlying
// cause (an *net.OpError, io.EOF, a decode error, and so on).
type ConnError struct {
	Kind Kind
	Err  error
}

func (e *ConnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("esl: %s", e.Kind)
	}
	return fmt.Sprintf("esl: %s: %v", e.Kind, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

func newConnError(kind Kind, err error) *ConnError {
	return &ConnError{Kind: kind, Err: err}
}

var (
	// ErrAuthFailed is wrapped into a *ConnError{Kind: KindAuthFailed}
	// when Inbound authentication is rejected.
	ErrAuthFailed = errors.New("esl: authentication failed")

	// ErrHandshakeIncomplete is wrapped into a
	// *ConnError{Kind: KindHandshakeError} when an Outbound connect
	// reply has no Unique-ID header.
	ErrHandshakeIncomplete = errors.New("esl: outbound handshake reply missing Unique-ID")

	// ErrDisconnected names the KindDisconnected condition. The dispatcher
	// does not wrap it: the *ConnError{Kind: KindDisconnected} handed to
	// every waiter once the peer has gone away wraps the transport's own
	// cause (io.EOF, a closed-connection error) instead.
	ErrDisconnected = errors.New("esl: connection closed")

	// ErrProtocolViolation is wrapped into a
	// *ConnError{Kind: KindProtocolError} when a reply arrives with no
	// matching pending request.
	ErrProtocolViolation = errors.New("esl: reply received with no pending request")
)
