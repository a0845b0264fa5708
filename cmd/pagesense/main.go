// Command pagesense runs the reading-assistant agent server: a websocket
// session endpoint backed by the reasoning engine, with Prometheus metrics
// on the same listener.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pagesense",
		Short:         "PageSense reading-assistant agent server",
		Long:          "pagesense serves the interactive reading assistant: websocket sessions at /ws/agent/{conversation_id}, an agent reasoning loop with tools and layered memory, and Prometheus metrics at /metrics.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}
