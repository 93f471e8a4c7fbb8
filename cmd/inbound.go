package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/esl"
	"github.com/luma/esl/command"
	"github.com/luma/esl/internal/env"
)

var inboundAPICommand string

func init() {
	flags := InboundCmd.PersistentFlags()
	flags.StringVar(&inboundAPICommand, "api", "status", "the api command to run once connected")
}

var InboundCmd = &cobra.Command{
	Use:   "inbound",
	Short: "Dial a FreeSWITCH Inbound Event Socket connection",
	Long: `Dial a FreeSWITCH Inbound Event Socket connection, run a single api
command, and stream unsolicited events until interrupted.

Usage
	esl inbound --api "status"
`,
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		conn, err := esl.DialInbound(dialCtx, conf.Addr, esl.InboundConfig{
			Password:    conf.Password,
			DialTimeout: 5 * time.Second,
		}, log.Named("inbound"))
		if err != nil {
			return err
		}
		defer conn.Close()

		log.Info("Authenticated", zap.String("addr", conf.Addr))

		apiCmd, err := command.API(inboundAPICommand)
		if err != nil {
			return err
		}

		reply, err := conn.SendRecv(ctx, apiCmd)
		if err != nil {
			return err
		}
		fmt.Println(string(reply.Bytes()))

		for {
			ev, err := conn.Recv(ctx)
			if err != nil {
				log.Info("Connection closed", zap.Error(err))
				return nil
			}

			log.Info("Event received", zap.String("contentType", ev.ContentType()))
		}
	},
}
