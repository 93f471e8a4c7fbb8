package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/esl"
	"github.com/luma/esl/internal/env"
)

var (
	outboundHost     string
	outboundPort     int
	outboundHTTPPort string
)

func init() {
	flags := OutboundCmd.PersistentFlags()

	flags.IntVarP(&outboundPort, "port", "p", 8084, "The port to listen for FreeSWITCH Outbound connections on")
	flags.StringVar(&outboundHTTPPort, "http-port", "8085", "The port to listen to HTTP requests on")
	flags.StringVarP(&outboundHost, "host", "a", "0.0.0.0", "The host to listen on")
}

var OutboundCmd = &cobra.Command{
	Use:   "outbound",
	Short: "Listen for FreeSWITCH Outbound Event Socket connections",
	Long: `Listen for FreeSWITCH Outbound Event Socket connections

Usage
	esl outbound
`,
	RunE: func(cobraCmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}
		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		eventFormat, err := parseEventFormat(conf.EventFormat)
		if err != nil {
			return err
		}

		listener, err := esl.NewListener(
			net.JoinHostPort(outboundHost, fmt.Sprint(outboundPort)),
			true,
			esl.OutboundConfig{
				Linger:            true,
				SubscribeMyEvents: true,
				EventFormat:       eventFormat,
			},
			handleCall(log),
			log.Named("outbound"),
		)
		if err != nil {
			return err
		}

		router := setupOutboundRouter(conf.DebugHTTP, log, listener)

		httpServer := &http.Server{
			Addr:    net.JoinHostPort(outboundHost, outboundHTTPPort),
			Handler: router,
		}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		go func() {
			if err := listener.Serve(ctx); err != nil {
				log.Error("Outbound listener errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.Any("config", conf),
			zap.String("host", outboundHost),
			zap.Int("port", outboundPort),
			zap.String("httpPort", outboundHTTPPort))

		<-ctx.Done()

		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		httpServer.SetKeepAlivesEnabled(false)

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := listener.Close(); err != nil {
			log.Error("Outbound listener forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

// handleCall is invoked once per handshaken Outbound connection. It
// simply drains events until the channel hangs up, logging what it
// sees; a real application would drive call control here via
// conn.SendRecv(command.Execute(...)).
func handleCall(log *zap.Logger) esl.HandleFunc {
	return func(conn *esl.Connection, callCtx *esl.CallContext) {
		uuid, _ := callCtx.Header("Unique-ID")
		connLog := log.With(zap.String("uniqueId", uuid))
		connLog.Info("Call connected")

		for {
			ev, err := conn.Recv(context.Background())
			if err != nil {
				connLog.Info("Call disconnected", zap.Error(err))
				return
			}

			if ev.IsDisconnectNotice() {
				connLog.Info("Received disconnect notice")
				continue
			}

			connLog.Debug("Event received", zap.String("contentType", ev.ContentType()))
		}
	}
}

func parseEventFormat(s string) (esl.EventFormat, error) {
	switch s {
	case "", "plain":
		return esl.EventFormatPlain, nil
	case "json":
		return esl.EventFormatJSON, nil
	case "xml":
		return esl.EventFormatXML, nil
	default:
		return esl.EventFormatPlain, fmt.Errorf("esl: unknown ESL_EVENT_FORMAT %q", s)
	}
}

func setupOutboundRouter(debugHTTP bool, log *zap.Logger, listener *esl.Listener) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"activeConnections": listener.ActiveConnections(),
		})
	})

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
