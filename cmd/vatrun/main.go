// Command vatrun drives one vat outside of any real kernel: it loads a
// vat configuration, replays a JSON-described delivery script through
// dispatch.Core, and prints every syscall the vat emits in response. It
// also exposes a standalone vatstore inspection command for operators
// debugging a vat's persisted key-value state without a live kernel
// connection.
//
// Grounded on oriys-nova's cmd/nova/main.go: a cobra root command whose
// subcommands are each built by a small constructor function, registered
// once in main via AddCommand, with the process exiting 1 on any error
// cobra surfaces.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "vatrun",
		Short: "Drive a liveslots vat from a delivery script",
		Long:  "vatrun replays a JSON delivery script against one in-process vat and prints the syscalls it emits, and can inspect a vatstore snapshot file directly.",
	}

	root.AddCommand(runCmd(), storeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
