package cli

import (
	"flag"
	"fmt"
	"net"

	"github.com/tjper/jobworker/internal/encrypt"
	igrpc "github.com/tjper/jobworker/internal/jobworker/grpc"
	"github.com/tjper/jobworker/internal/jobworker/registry"
	pb "github.com/tjper/jobworker/proto/gen/go/jobworker/v1"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// runServe parses the "serve" subcommand's flags, wires the gRPC facade to a
// fresh job registry, and blocks serving the API over mTLS until it fails.
func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cert := fs.String("cert", "", "path to server certificate")
	key := fs.String("key", "", "path to server private key")
	caCert := fs.String("ca_cert", "", "path to CA certificate")
	port := fs.Int("port", 8080, "port to serve the jobworker API on")
	_ = fs.Parse(args)

	tlsConfig, err := encrypt.NewServermTLSConfig(*cert, *key, *caCert)
	if err != nil {
		logger.Errorf("build server TLS config; error: %v", err)
		return ecServeFailure
	}

	reg := registry.New()
	jw := igrpc.NewJobWorker(reg)

	srv := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsConfig)))
	pb.RegisterJobWorkerServiceServer(srv, jw)

	addr := fmt.Sprintf(":%d", *port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Errorf("listen on %s; error: %v", addr, err)
		return ecServeFailure
	}
	defer lis.Close()

	logger.Infof("serving on %s", addr)
	if err := srv.Serve(lis); err != nil {
		logger.Errorf("serve on %s; error: %v", addr, err)
		return ecServeFailure
	}

	return ecSuccess
}
