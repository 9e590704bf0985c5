// Command jobworker is the jobworker CLI: it serves the gRPC API, or drives
// it as a client, depending on the subcommand given.
package main

import (
	"os"

	"github.com/tjper/jobworker/internal/jobworker/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
