package esl_test

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/esl"
	"github.com/luma/esl/command"
	"github.com/luma/esl/escodec"
)

// writeRaw writes headers (in order) followed by body onto w, in wire
// format, via escodec.Encode. A non-empty body gets a Content-Length
// header appended so the decoder frames it as this message's body.
func writeRaw(w net.Conn, headers []escodec.Header, body string) {
	if body != "" {
		headers = append(headers, escodec.Header{Name: "Content-Length", Value: strconv.Itoa(len(body))})
	}
	ev := &escodec.RawEvent{Headers: headers, Body: []byte(body)}
	Expect(escodec.Encode(w, ev)).To(Succeed())
}

func h(name, value string) escodec.Header {
	return escodec.Header{Name: name, Value: value}
}

// readCommandLine reads a single command frame (a command line, zero or
// more "Name: Value" header lines, then a blank line) off r and returns
// just the command line, discarding the headers. Good enough for a test
// peer that doesn't need to assert on sendmsg sub-headers.
func readCommandLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}

	for {
		next, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if next == "\n" || next == "\r\n" {
			break
		}
	}

	return line, nil
}

var _ = Describe("Connection", func() {
	var (
		clientConn, serverConn net.Conn
		serverReader           *bufio.Reader
		log                    *zap.Logger
	)

	BeforeEach(func() {
		clientConn, serverConn = net.Pipe()
		serverReader = bufio.NewReader(serverConn)
		log = zap.NewNop()
	})

	AfterEach(func() {
		clientConn.Close()
		serverConn.Close()
	})

	// newTestConnection drives the real Outbound handshake over the pipe
	// (the "connect" exchange) to reach a live *esl.Connection, since
	// that handshake is this package's only exported way to turn a
	// net.Conn into one.
	newTestConnection := func(eventBuffer int) *esl.Connection {
		serverDone := make(chan struct{})
		go func() {
			defer close(serverDone)
			_, err := readCommandLine(serverReader)
			Expect(err).To(Succeed())

			writeRaw(serverConn, []escodec.Header{
				h("Content-Type", "command/reply"),
				h("Unique-ID", "test-call-id"),
			}, "")
		}()

		conn, _, err := esl.Handshake(context.Background(), clientConn, esl.OutboundConfig{
			EventBuffer: eventBuffer,
		}, log)
		Expect(err).To(Succeed())

		Eventually(serverDone).Should(BeClosed())

		return conn
	}

	Describe("SendRecv", func() {
		It("matches replies to requests in FIFO order", func() {
			conn := newTestConnection(0)

			cmdA, _ := command.API("status a")
			cmdB, _ := command.API("status b")
			cmdC, _ := command.API("status c")

			type result struct {
				tag string
				body string
			}
			results := make(chan result, 3)

			admitted := make(chan struct{}, 3)

			sendOne := func(tag string, cmd command.Command) {
				go func() {
					ev, err := conn.SendRecv(context.Background(), cmd)
					Expect(err).To(Succeed())
					results <- result{tag: tag, body: string(ev.Bytes())}
				}()
			}

			go func() {
				for i := 0; i < 3; i++ {
					_, err := readCommandLine(serverReader)
					Expect(err).To(Succeed())
					admitted <- struct{}{}
				}
			}()

			sendOne("A", cmdA)
			Eventually(admitted).Should(Receive())

			sendOne("B", cmdB)
			Eventually(admitted).Should(Receive())

			sendOne("C", cmdC)
			Eventually(admitted).Should(Receive())

			writeRaw(serverConn, []escodec.Header{h("Content-Type", "api/response")}, "R1")
			writeRaw(serverConn, []escodec.Header{h("Content-Type", "api/response")}, "R2")
			writeRaw(serverConn, []escodec.Header{h("Content-Type", "api/response")}, "R3")

			got := map[string]string{}
			for i := 0; i < 3; i++ {
				var r result
				Eventually(results).Should(Receive(&r))
				got[r.tag] = r.body
			}

			Expect(got["A"]).To(Equal("R1"))
			Expect(got["B"]).To(Equal("R2"))
			Expect(got["C"]).To(Equal("R3"))
		})

		It("never routes a reply to Recv, and never routes an event to SendRecv", func() {
			conn := newTestConnection(0)

			cmd, _ := command.API("status")

			go func() {
				writeRaw(serverConn, []escodec.Header{
					h("Content-Type", "text/event-plain"),
				}, "Event-Name: HEARTBEAT\n\n")

				_, err := readCommandLine(serverReader)
				Expect(err).To(Succeed())

				writeRaw(serverConn, []escodec.Header{
					h("Content-Type", "api/response"),
				}, "OK")
			}()

			ev, err := conn.Recv(context.Background())
			Expect(err).To(Succeed())
			Expect(ev.IsPlain()).To(BeTrue())

			reply, err := conn.SendRecv(context.Background(), cmd)
			Expect(err).To(Succeed())
			Expect(reply.IsAPIResponse()).To(BeTrue())
			Expect(reply.Bytes()).To(Equal([]byte("OK")))
		})

		It("discards a cancelled call's eventual reply and routes the next reply correctly", func() {
			conn := newTestConnection(0)

			cmdA, _ := command.API("a")
			cmdB, _ := command.API("b")

			ctxA, cancelA := context.WithCancel(context.Background())

			resultA := make(chan error, 1)
			go func() {
				_, err := conn.SendRecv(ctxA, cmdA)
				resultA <- err
			}()

			Eventually(func() error {
				_, err := readCommandLine(serverReader)
				return err
			}).Should(Succeed())

			cancelA()
			Eventually(resultA).Should(Receive(MatchError(context.Canceled)))

			resultB := make(chan *struct{ body string }, 1)
			go func() {
				ev, err := conn.SendRecv(context.Background(), cmdB)
				Expect(err).To(Succeed())
				resultB <- &struct{ body string }{body: string(ev.Bytes())}
			}()

			Eventually(func() error {
				_, err := readCommandLine(serverReader)
				return err
			}).Should(Succeed())

			// The reply for the cancelled A is still on the wire first;
			// it must be discarded rather than routed to B.
			writeRaw(serverConn, []escodec.Header{h("Content-Type", "api/response")}, "FOR-A")
			writeRaw(serverConn, []escodec.Header{h("Content-Type", "api/response")}, "FOR-B")

			var got *struct{ body string }
			Eventually(resultB).Should(Receive(&got))
			Expect(got.body).To(Equal("FOR-B"))
		})
	})

	Describe("Recv", func() {
		It("delivers events in exact wire arrival order", func() {
			conn := newTestConnection(0)

			go func() {
				writeRaw(serverConn, []escodec.Header{h("Content-Type", "text/event-plain")}, "Event-Name: E1\n\n")
				writeRaw(serverConn, []escodec.Header{h("Content-Type", "text/event-plain")}, "Event-Name: E2\n\n")
			}()

			ev1, err := conn.Recv(context.Background())
			Expect(err).To(Succeed())
			plain1, _ := ev1.Cast().Plain()
			name1, _ := plain1.Header("Event-Name")
			Expect(name1).To(Equal("E1"))

			ev2, err := conn.Recv(context.Background())
			Expect(err).To(Succeed())
			plain2, _ := ev2.Cast().Plain()
			name2, _ := plain2.Header("Event-Name")
			Expect(name2).To(Equal("E2"))
		})

		It("halts read progress once the event queue is at capacity", func() {
			conn := newTestConnection(1)

			writeDone := make(chan struct{})
			go func() {
				writeRaw(serverConn, []escodec.Header{h("Content-Type", "text/event-plain")}, "Event-Name: E1\n\n")
				writeRaw(serverConn, []escodec.Header{h("Content-Type", "text/event-plain")}, "Event-Name: E2\n\n")
				writeRaw(serverConn, []escodec.Header{h("Content-Type", "text/event-plain")}, "Event-Name: E3\n\n")
				close(writeDone)
			}()

			// E1 fills the capacity-1 queue, E2 is decoded and then blocks
			// on the full channel, which in turn leaves E3's bytes unread
			// on the wire: the peer's third write cannot complete yet.
			Consistently(writeDone, "100ms").ShouldNot(BeClosed())

			ev1, err := conn.Recv(context.Background())
			Expect(err).To(Succeed())
			plain1, _ := ev1.Cast().Plain()
			name1, _ := plain1.Header("Event-Name")
			Expect(name1).To(Equal("E1"))

			ev2, err := conn.Recv(context.Background())
			Expect(err).To(Succeed())
			plain2, _ := ev2.Cast().Plain()
			name2, _ := plain2.Header("Event-Name")
			Expect(name2).To(Equal("E2"))

			Eventually(writeDone).Should(BeClosed())

			ev3, err := conn.Recv(context.Background())
			Expect(err).To(Succeed())
			plain3, _ := ev3.Cast().Plain()
			name3, _ := plain3.Header("Event-Name")
			Expect(name3).To(Equal("E3"))
		})

		It("returns Disconnected after the disconnect notice has been drained", func() {
			conn := newTestConnection(0)

			go func() {
				writeRaw(serverConn, []escodec.Header{h("Content-Type", "text/disconnect-notice")}, "")
				serverConn.Close()
			}()

			notice, err := conn.Recv(context.Background())
			Expect(err).To(Succeed())
			Expect(notice.IsDisconnectNotice()).To(BeTrue())

			_, err = conn.Recv(context.Background())
			Expect(err).To(HaveOccurred())
			var connErr *esl.ConnError
			Expect(err).To(BeAssignableToTypeOf(connErr))
		})
	})

	Describe("cancellation via context deadline", func() {
		It("returns the context error without leaking a goroutine on the caller's side", func() {
			conn := newTestConnection(0)

			cmd, _ := command.API("status")

			// The peer reads the command but never replies, so only the
			// deadline can end the wait.
			go func() {
				_, _ = readCommandLine(serverReader)
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			_, err := conn.SendRecv(ctx, cmd)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})
})
