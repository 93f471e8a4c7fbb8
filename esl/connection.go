package esl

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/esl/command"
	"github.com/luma/esl/escodec"
	"github.com/luma/esl/event"
)

// Connection is a live ESL session, Inbound or Outbound. Writes go
// straight onto the socket under the dispatcher's write lock; reads are
// owned exclusively by the dispatcher's run loop.
type Connection struct {
	conn net.Conn
	d    *dispatcher

	wg sync.WaitGroup

	log *zap.Logger
}

// newConnection wraps conn and starts its read loop, reusing dec (the
// same Decoder a handshake may have already read a message or two from)
// rather than constructing a fresh one. It is the single construction
// point shared by DialInbound and Handshake.
func newConnection(conn net.Conn, dec *escodec.Decoder, eventBuffer int, log *zap.Logger) *Connection {
	c := &Connection{
		conn: conn,
		d:    newDispatcher(conn, dec, eventBuffer, log),
		log:  log,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.d.run()
	}()

	return c
}

// SendRecv writes cmd and waits for its reply, maintaining FIFO order
// against every other concurrent SendRecv on this connection. Cancelling
// ctx before the reply arrives leaves the slot in place as a tombstone: a
// later SendRecv is never misrouted the cancelled call's reply.
func (c *Connection) SendRecv(ctx context.Context, cmd command.Command) (*event.Event, error) {
	return c.d.sendRecv(ctx, cmd)
}

// Recv waits for the next unsolicited event, in exact wire arrival order.
func (c *Connection) Recv(ctx context.Context) (*event.Event, error) {
	return c.d.recv(ctx)
}

// Close tears the connection down and waits for the read loop to exit.
func (c *Connection) Close() error {
	err := c.conn.Close()
	c.wg.Wait()
	return err
}
