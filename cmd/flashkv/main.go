// FlashKV - A Redis-compatible in-memory string store
//
// Usage:
//
//	flashkv serve [flags]     Run the RESP server
//	flashkv bench [flags]     Benchmark a running server
//	flashkv call CMD [ARG...] Send one command and print the reply
//	flashkv version           Print the version
//
// Every serve flag can also be set as FLASHKV_<FLAG> in the environment
// (dashes become underscores) or in a .env file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flashdb/flashkv/internal/version"
)

var rootCmd = &cobra.Command{
	Use:          "flashkv",
	Short:        "Redis-compatible in-memory string store",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of FlashKV",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newBenchCmd())
	rootCmd.AddCommand(newCallCmd())
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
