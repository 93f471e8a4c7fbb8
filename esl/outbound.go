package esl

import (
	"context"
	"errors"
	"net"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/zap"

	"github.com/luma/esl/command"
	"github.com/luma/esl/escodec"
	"github.com/luma/esl/event"
)

// EventFormat selects the wire format FreeSWITCH uses for events pushed
// to a connection that has subscribed via myevents.
type EventFormat int

const (
	EventFormatPlain EventFormat = iota
	EventFormatJSON
	EventFormatXML
)

// OutboundConfig configures the handshake a Listener (or a caller driving
// its own accepted net.Conn) performs before handing a socket off to the
// dispatcher.
type OutboundConfig struct {
	// Linger asks FreeSWITCH to keep the socket open after the channel
	// hangs up, so hangup-related events remain deliverable.
	Linger bool

	// SubscribeMyEvents sends "myevents", scoping delivery to this call
	// leg's own events.
	SubscribeMyEvents bool

	// AsyncMode switches the socket to async_full before Linger/
	// SubscribeMyEvents are applied, so the application commands that
	// follow never block the socket waiting on channel execution.
	AsyncMode bool

	// EventFormat selects plain/json/xml for the events SubscribeMyEvents
	// requests. Ignored unless SubscribeMyEvents is set.
	EventFormat EventFormat

	// EventBuffer sizes the resulting connection's event queue. Zero
	// uses defaultEventBuffer.
	EventBuffer int
}

// CallContext is the call leg metadata carried by the "connect" reply
// that begins an Outbound handshake.
type CallContext struct {
	raw *escodec.RawEvent
}

// Header looks up a field of the call context, such as Unique-ID or
// Channel-State.
func (c *CallContext) Header(name string) (string, bool) {
	return c.raw.Header(name)
}

// Handshake performs the Outbound "connect" exchange on an
// already-accepted conn and applies cfg, then hands the socket off to a
// dispatcher. Commands go out in the order connect -> (async_full) ->
// (linger) -> (myevents, then the event format command). Grounded on
// original_source's Outbound::handshake and asseco-voice-eslgo and
// zenthangplus-eslgo's outbound handlers.
func Handshake(ctx context.Context, conn net.Conn, cfg OutboundConfig, log *zap.Logger) (*Connection, *CallContext, error) {
	dec := escodec.NewDecoder(conn)

	reply, err := sendRecvSync(conn, dec, command.Connect())
	if err != nil {
		conn.Close()
		return nil, nil, newConnError(KindConnectError, err)
	}

	if _, ok := reply.Header("Unique-ID"); !ok {
		conn.Close()
		return nil, nil, newConnError(KindHandshakeError, ErrHandshakeIncomplete)
	}

	callCtx := &CallContext{raw: reply.Raw()}

	if cfg.AsyncMode {
		asyncCmd, err := command.Raw("async_full")
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		if _, err := sendRecvSync(conn, dec, asyncCmd); err != nil {
			conn.Close()
			return nil, nil, newConnError(KindHandshakeError, err)
		}
	}

	if cfg.Linger {
		if _, err := sendRecvSync(conn, dec, command.Linger()); err != nil {
			conn.Close()
			return nil, nil, newConnError(KindHandshakeError, err)
		}
	}

	if cfg.SubscribeMyEvents {
		if _, err := sendRecvSync(conn, dec, command.MyEvents()); err != nil {
			conn.Close()
			return nil, nil, newConnError(KindHandshakeError, err)
		}

		formatCmd, err := eventFormatCommand(cfg.EventFormat)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		if formatCmd != nil {
			if _, err := sendRecvSync(conn, dec, *formatCmd); err != nil {
				conn.Close()
				return nil, nil, newConnError(KindHandshakeError, err)
			}
		}
	}

	return newConnection(conn, dec, cfg.EventBuffer, log.Named("outbound")), callCtx, nil
}

func eventFormatCommand(format EventFormat) (*command.Command, error) {
	switch format {
	case EventFormatPlain:
		return nil, nil
	case EventFormatJSON:
		cmd, err := command.EventsJSON("ALL")
		return &cmd, err
	case EventFormatXML:
		cmd, err := command.EventsXML("ALL")
		return &cmd, err
	default:
		return nil, errors.New("esl: unknown EventFormat")
	}
}

// sendRecvSync writes cmd and synchronously decodes its reply, used only
// during the pre-dispatcher handshake window where a single goroutine
// owns both halves of conn.
func sendRecvSync(conn net.Conn, dec *escodec.Decoder, cmd command.Command) (*event.Event, error) {
	if _, err := cmd.WriteTo(conn); err != nil {
		return nil, err
	}

	raw, err := dec.Decode()
	if err != nil {
		return nil, err
	}

	return event.New(raw), nil
}

// HandleFunc is invoked once per accepted and handshaken Outbound
// connection.
type HandleFunc func(*Connection, *CallContext)

// Listener accepts Outbound connections, performs the handshake on each,
// and dispatches to a HandleFunc. Grounded on transport.TCPListener's
// accept loop, activeConns tracking, and SO_REUSEPORT option.
type Listener struct {
	ln net.Listener

	cfg    OutboundConfig
	handle HandleFunc
	log    *zap.Logger

	mu          sync.Mutex
	activeConns map[*Connection]struct{}

	wg sync.WaitGroup
}

// NewListener binds addr (via SO_REUSEPORT when reuseport is true) and
// returns a Listener ready for Serve.
func NewListener(addr string, reuseport bool, cfg OutboundConfig, handle HandleFunc, log *zap.Logger) (*Listener, error) {
	var ln net.Listener
	var err error

	if reuseport {
		ln, err = goReuseportListen(addr)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	return &Listener{
		ln:          ln,
		cfg:         cfg,
		handle:      handle,
		log:         log,
		activeConns: make(map[*Connection]struct{}),
	}, nil
}

func goReuseportListen(addr string) (net.Listener, error) {
	return reuseport.Listen("tcp", addr)
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.log.Info("Closing outbound listener")
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return nil
			default:
				return err
			}
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.serveConn(ctx, conn)
		}()
	}
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	connection, callCtx, err := Handshake(ctx, conn, l.cfg, l.log)
	if err != nil {
		l.log.Warn("Outbound handshake failed", zap.Error(err))
		return
	}

	l.addConn(connection)
	defer l.removeConn(connection)

	l.handle(connection, callCtx)
}

func (l *Listener) addConn(c *Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeConns[c] = struct{}{}
}

func (l *Listener) removeConn(c *Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.activeConns, c)
}

// ActiveConnections reports the number of Outbound connections currently
// handshaken and being handled.
func (l *Listener) ActiveConnections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.activeConns)
}

// Close stops accepting new connections and closes every active one.
func (l *Listener) Close() error {
	err := l.ln.Close()

	l.mu.Lock()
	conns := make([]*Connection, 0, len(l.activeConns))
	for c := range l.activeConns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	l.wg.Wait()

	return err
}
