package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tjper/jobworker/internal/encrypt"
	"github.com/tjper/jobworker/internal/jobworker/jobid"
	pb "github.com/tjper/jobworker/proto/gen/go/jobworker/v1"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// waitPollInterval is how often the "wait" subcommand polls Status. The
// wire protocol has no server-push equivalent; see internal/monotonic for
// the primitive a future revision could use to replace this.
const waitPollInterval = 500 * time.Millisecond

// runClient parses the shared TLS flags and positional server address, then
// dispatches to the requested operation.
func runClient(sub string, args []string) int {
	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	var rootCA, clientCrt, clientKey string
	fs.StringVar(&rootCA, "server-root-ca-crt", os.Getenv("TLS_SERVER_ROOT_CA_CRT"), "path to the server's root CA certificate")
	fs.StringVar(&rootCA, "s", rootCA, "shorthand for -server-root-ca-crt")
	fs.StringVar(&clientCrt, "client-crt", os.Getenv("TLS_CLIENT_CRT"), "path to the client certificate")
	fs.StringVar(&clientCrt, "c", clientCrt, "shorthand for -client-crt")
	fs.StringVar(&clientKey, "client-key", os.Getenv("TLS_CLIENT_KEY"), "path to the client private key")
	fs.StringVar(&clientKey, "k", clientKey, "shorthand for -client-key")
	_ = fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "missing server address")
		return ecClientFailure
	}
	server, rest := rest[0], rest[1:]

	tlsConfig, err := encrypt.NewClientTLSConfig(clientCrt, clientKey, rootCA)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client TLS config; error: %v\n", err)
		return ecClientFailure
	}

	conn, err := grpc.Dial(server, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s; error: %v\n", server, err)
		return ecClientFailure
	}
	defer conn.Close()

	client := pb.NewJobWorkerServiceClient(conn)
	ctx := context.Background()

	switch sub {
	case "start":
		return doStart(ctx, client, rest)
	case "stop":
		return doStop(ctx, client, rest)
	case "status":
		return doStatus(ctx, client, rest)
	case "wait":
		return doWait(ctx, client, rest)
	case "output":
		return doOutput(ctx, client, rest)
	default:
		return help(fmt.Sprintf("Unrecognized subcommand %q.", sub))
	}
}

func doStart(ctx context.Context, client pb.JobWorkerServiceClient, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "missing path")
		return ecClientFailure
	}
	path, jobArgs := args[0], args[1:]

	resp, err := client.Start(ctx, &pb.JobStartRequest{Path: path, Args: jobArgs})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start %s; error: %v\n", path, err)
		return ecClientFailure
	}

	id, err := jobid.FromBytes(resp.Jobid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode job id; error: %v\n", err)
		return ecClientFailure
	}
	fmt.Println(id)
	return ecSuccess
}

func doStop(ctx context.Context, client pb.JobWorkerServiceClient, args []string) int {
	id, ok := parseJobID(args)
	if !ok {
		return ecClientFailure
	}
	if _, err := client.Stop(ctx, &pb.TargetJobId{Jobid: id.Bytes()}); err != nil {
		fmt.Fprintf(os.Stderr, "stop %s; error: %v\n", id, err)
		return ecClientFailure
	}
	return ecSuccess
}

func doStatus(ctx context.Context, client pb.JobWorkerServiceClient, args []string) int {
	id, ok := parseJobID(args)
	if !ok {
		return ecClientFailure
	}

	resp, err := client.Status(ctx, &pb.TargetJobId{Jobid: id.Bytes()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "status %s; error: %v\n", id, err)
		return ecClientFailure
	}
	printStatus(resp)
	return ecSuccess
}

// doWait polls Status at waitPollInterval until the job reaches a terminal
// state, then prints it. The server exposes no push-based equivalent.
func doWait(ctx context.Context, client pb.JobWorkerServiceClient, args []string) int {
	id, ok := parseJobID(args)
	if !ok {
		return ecClientFailure
	}

	req := &pb.TargetJobId{Jobid: id.Bytes()}
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		resp, err := client.Status(ctx, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "status %s; error: %v\n", id, err)
			return ecClientFailure
		}
		if resp.Completed != nil {
			printStatus(resp)
			return ecSuccess
		}
		<-ticker.C
	}
}

func doOutput(ctx context.Context, client pb.JobWorkerServiceClient, args []string) int {
	id, ok := parseJobID(args)
	if !ok {
		return ecClientFailure
	}

	stream, err := client.Output(ctx, &pb.TargetJobId{Jobid: id.Bytes()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "output %s; error: %v\n", id, err)
		return ecClientFailure
	}

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return ecSuccess
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "receive output %s; error: %v\n", id, err)
			return ecClientFailure
		}

		w := os.Stdout
		if event.Stream == pb.OutputEvent_STDERR {
			w = os.Stderr
		}
		if _, err := w.Write(event.Output); err != nil {
			fmt.Fprintf(os.Stderr, "write output %s; error: %v\n", id, err)
			return ecClientFailure
		}
	}
}

func parseJobID(args []string) (jobid.ID, bool) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "missing job id")
		return jobid.ID{}, false
	}
	id, err := jobid.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse job id %q; error: %v\n", args[0], err)
		return jobid.ID{}, false
	}
	return id, true
}

// printStatus renders a JobStatus the way the jobworker CLI always has:
// "Running" while Completed is unset, "Completed <code>" for a numeric exit
// status, and "Signal <n>" for death by signal.
func printStatus(s *pb.JobStatus) {
	switch v := s.Completed.(type) {
	case *pb.JobStatus_StatusCode:
		fmt.Printf("Completed %d\n", v.StatusCode)
	case *pb.JobStatus_Signal:
		fmt.Printf("Signal %d\n", v.Signal)
	default:
		fmt.Println("Running")
	}
}
