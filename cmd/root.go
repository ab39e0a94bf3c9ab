package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Arbiter - multi-agent debate engine",
	Long: `Arbiter runs structured debates between LLM-backed agents.
Debates execute as background tasks with round-robin turns, optional
judging, and real-time event streaming over WebSocket.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is .env)")
}
