// Command storebridge inspects and exercises the devtools bridge.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/storebridge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
