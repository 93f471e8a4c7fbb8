package esl

import (
	"context"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luma/esl/command"
	"github.com/luma/esl/escodec"
	"github.com/luma/esl/event"
)

// InboundConfig configures a DialInbound call.
type InboundConfig struct {
	// Password authenticates against the switch's acl/ESL password.
	Password string

	// DialTimeout bounds the initial TCP connect. Zero means no
	// additional timeout beyond ctx.
	DialTimeout time.Duration

	// EventBuffer sizes the connection's unsolicited event queue. Zero
	// uses defaultEventBuffer.
	EventBuffer int
}

// DialInbound dials addr, performs the ESL Inbound authentication
// handshake, and returns a live Connection. Grounded on the teacher's
// client.Conn.Connect and the same auth-then-handoff shape as
// fiorix-go-eventsocket's Dial and original_source's Inbound::connect.
func DialInbound(ctx context.Context, addr string, cfg InboundConfig, log *zap.Logger) (*Connection, error) {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newConnError(KindConnectError, err)
	}

	dec := escodec.NewDecoder(conn)

	raw, err := dec.Decode()
	if err != nil {
		conn.Close()
		return nil, newConnError(KindConnectError, err)
	}

	greeting := event.New(raw)
	if !greeting.IsAuthRequest() {
		conn.Close()
		return nil, newConnError(KindProtocolError, ErrProtocolViolation)
	}

	authCmd, err := command.Auth(cfg.Password)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := authCmd.WriteTo(conn); err != nil {
		conn.Close()
		return nil, newConnError(KindConnectError, err)
	}

	raw, err = dec.Decode()
	if err != nil {
		conn.Close()
		return nil, newConnError(KindConnectError, err)
	}

	reply := event.New(raw)
	replyText, _ := reply.Header("Reply-Text")
	if !reply.IsCommandReply() || !strings.HasPrefix(replyText, "+OK") {
		conn.Close()
		return nil, newConnError(KindAuthFailed, ErrAuthFailed)
	}

	return newConnection(conn, dec, cfg.EventBuffer, log.Named("inbound")), nil
}
