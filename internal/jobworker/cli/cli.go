// Package cli defines the jobworker command-line front-end: a "serve"
// subcommand that runs the gRPC API, and a set of client subcommands
// (start, stop, status, wait, output) that drive it over mTLS.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/tjper/jobworker/internal/log"
)

var logger = log.New(os.Stdout, "cli")

const (
	ecSuccess = iota
	ecUnrecognized
	ecServeFailure
	ecClientFailure
)

// Run is the entrypoint of the jobworker CLI. It dispatches on the first
// argument, since unlike the server subcommand, the client subcommands each
// take their own distinct positional arguments and cannot share a single
// global flag set parsed ahead of the subcommand name.
func Run(args []string) int {
	if len(args) < 1 {
		return help("Too few arguments")
	}

	switch sub := args[0]; sub {
	case "serve":
		return runServe(args[1:])
	case "start", "stop", "status", "wait", "output":
		return runClient(sub, args[1:])
	default:
		return help(fmt.Sprintf("Unrecognized subcommand %q.", sub))
	}
}

// help outputs a general overview of the jobworker executable to the user.
// The text argument may be used to add a detailed help message.
func help(text string) int {
	var b strings.Builder
	if text != "" {
		fmt.Fprintf(&b, "\nNotice: %s\n", text)
	}

	b.WriteString(`
Jobworker launches and drives a gRPC API that allows arbitrary commands to
be started, stopped, queried, and streamed.

Usage:
  jobworker serve [-cert path] [-key path] [-ca_cert path] [-port n]
  jobworker start  [tls flags] <server> <path> [args...]
  jobworker stop   [tls flags] <server> <jobid>
  jobworker status [tls flags] <server> <jobid>
  jobworker wait   [tls flags] <server> <jobid>
  jobworker output [tls flags] <server> <jobid>

TLS flags: -s/-server-root-ca-crt, -c/-client-crt, -k/-client-key, each also
settable via TLS_SERVER_ROOT_CA_CRT, TLS_CLIENT_CRT, and TLS_CLIENT_KEY.
`)
	fmt.Fprint(os.Stdout, b.String())
	return ecUnrecognized
}
