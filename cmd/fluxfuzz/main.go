// fluxfuzz is a coverage-guided protocol fuzzer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "fluxfuzz",
		Short: "fluxfuzz is a coverage-guided protocol fuzzer",
		Long: `fluxfuzz drives a target binary with mutated inputs, tracks
edge coverage through an AFL-style bitmap, and grows a corpus toward
new coverage while triaging and minimizing crashes it finds.`,
	}

	rootCmd.AddCommand(newFuzzCmd())
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newMinimizeCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fluxfuzz version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
