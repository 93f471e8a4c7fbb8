package esl

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/esl/command"
	"github.com/luma/esl/escodec"
	"github.com/luma/esl/event"
)

// errSlotNotEmpty indicates a pendingReply already held a value when
// failAll attempted to complete it with the teardown error, which would
// mean a reply was routed to it after the connection was declared closed.
var errSlotNotEmpty = errors.New("esl: pending reply slot already filled")

// defaultEventBuffer is the default capacity of a dispatcher's event
// queue, mirroring the teacher's UpdateBufferSize precedent for sized
// channels between a read loop and its consumer.
const defaultEventBuffer = 256

// pendingReply is one outstanding send_recv waiting for its reply. A
// cancelled slot is not removed from the FIFO queue: run() still pops it
// in order and discards whatever reply arrives for it, so a later caller's
// slot is never misrouted.
type pendingReply struct {
	ch        chan *event.Event
	cancelled atomic.Bool
}

// dispatcher owns the single read loop for a connection: it tokenizes the
// wire into RawEvents, routes replies to the oldest outstanding
// pendingReply in FIFO order, and forwards everything else onto a bounded
// event queue. It is grounded on the teacher's client.Conn (respChans +
// readLoop) generalized from request-ID correlation to ESL's strictly
// ordered reply matching.
type dispatcher struct {
	conn net.Conn
	dec  *escodec.Decoder

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   []*pendingReply

	events chan *event.Event

	draining atomic.Bool

	closeOnce sync.Once
	mu        sync.Mutex
	closeErr  *ConnError

	log *zap.Logger
}

// newDispatcher wraps an existing decoder rather than always constructing
// one fresh, so a caller that has already synchronously read a message or
// two off conn during a handshake (Inbound auth, Outbound connect) can
// hand the same Decoder to the dispatcher without losing whatever extra
// bytes its bufio.Reader has already buffered from the socket.
func newDispatcher(conn net.Conn, dec *escodec.Decoder, eventBuffer int, log *zap.Logger) *dispatcher {
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}
	if dec == nil {
		dec = escodec.NewDecoder(conn)
	}

	return &dispatcher{
		conn:   conn,
		dec:    dec,
		events: make(chan *event.Event, eventBuffer),
		log:    log,
	}
}

// run is the read loop: it owns the only reader of the connection and
// runs until the connection fails or closes. It must be started in its
// own goroutine.
func (d *dispatcher) run() {
	for {
		raw, err := d.dec.Decode()
		if err != nil {
			d.failAll(newConnError(decodeErrorKind(err), err))
			return
		}

		ev := event.New(raw)

		if ev.IsReply() {
			pr := d.popPending()
			if pr == nil {
				d.log.Warn("Reply received with no pending request", zap.String("contentType", ev.ContentType()))
				d.failAll(newConnError(KindProtocolError, ErrProtocolViolation))
				return
			}

			if !pr.cancelled.Load() {
				pr.ch <- ev
			}

			continue
		}

		if ev.IsDisconnectNotice() {
			d.draining.Store(true)
		}

		d.events <- ev
	}
}

// sendRecv serializes cmd onto the connection and waits for the reply
// that the read loop will route back to the slot registered for it. The
// slot is enqueued under the same write-lock region that flushes the
// bytes, so a fast peer can never reply before the slot exists.
func (d *dispatcher) sendRecv(ctx context.Context, cmd command.Command) (*event.Event, error) {
	pr := &pendingReply{ch: make(chan *event.Event, 1)}

	d.writeMu.Lock()
	d.pendingMu.Lock()
	d.pending = append(d.pending, pr)
	d.pendingMu.Unlock()

	_, err := cmd.WriteTo(d.conn)
	d.writeMu.Unlock()

	if err != nil {
		pr.cancelled.Store(true)
		return nil, err
	}

	select {
	case ev := <-pr.ch:
		if ev == nil {
			return nil, d.getCloseErr()
		}
		return ev, nil

	case <-ctx.Done():
		pr.cancelled.Store(true)
		return nil, ctx.Err()
	}
}

// recv waits for the next unsolicited event.
func (d *dispatcher) recv(ctx context.Context) (*event.Event, error) {
	select {
	case ev, ok := <-d.events:
		if !ok {
			return nil, d.getCloseErr()
		}
		return ev, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *dispatcher) popPending() *pendingReply {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if len(d.pending) == 0 {
		return nil
	}

	pr := d.pending[0]
	d.pending = d.pending[1:]
	return pr
}

// failAll tears the dispatcher down: it closes the event queue and
// completes every outstanding pendingReply with err, exactly once.
func (d *dispatcher) failAll(err *ConnError) {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closeErr = err
		d.mu.Unlock()

		close(d.events)

		d.pendingMu.Lock()
		pending := d.pending
		d.pending = nil
		d.pendingMu.Unlock()

		var completionErr error
		for _, pr := range pending {
			if pr.cancelled.Load() {
				continue
			}
			if completionErr2 := completePending(pr); completionErr2 != nil {
				completionErr = multierr.Append(completionErr, completionErr2)
			}
		}

		if completionErr != nil {
			d.log.Warn("Failed to complete every pending reply on teardown", zap.Error(completionErr))
		}

		d.log.Info("Connection dispatcher stopped", zap.Error(err))
	})
}

// completePending sends a nil reply into pr, signalling the caller to
// read the connection's closeErr. pr.ch is buffered to capacity 1 and has
// had nothing sent to it yet (only cancelled slots, filtered out by the
// caller, or already-fulfilled slots, never reach here), so this send
// cannot block.
func completePending(pr *pendingReply) error {
	select {
	case pr.ch <- nil:
		return nil
	default:
		return errSlotNotEmpty
	}
}

// decodeErrorKind distinguishes a transport-level disconnect (EOF, a
// closed connection) from a framing violation the peer itself caused
// (escodec's malformed-header/Content-Length errors), matching §7's
// taxonomy: the former is Disconnected, the latter is ProtocolError.
func decodeErrorKind(err error) Kind {
	if errors.Is(err, escodec.ErrMalformedHeader) || errors.Is(err, escodec.ErrMalformedContentLength) {
		return KindProtocolError
	}
	return KindDisconnected
}

func (d *dispatcher) getCloseErr() *ConnError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeErr
}
