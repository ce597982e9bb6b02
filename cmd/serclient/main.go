// Command serclient is the out-of-band management agent: it opens a
// virtual serial port, speaks the framed request/response protocol
// over it, and dispatches commands to module executables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
