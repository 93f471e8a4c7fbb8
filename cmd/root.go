package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/esl/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "esl",
	Short: "Dial or listen for FreeSWITCH Event Socket Layer connections",
	Long: `esl drives a FreeSWITCH Event Socket Layer session.

Usage
	esl inbound
	esl outbound
`,
}

func init() {
	RootCmd.AddCommand(InboundCmd)
	RootCmd.AddCommand(OutboundCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
