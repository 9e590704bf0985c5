// Package jobworker contains end-to-end tests that drive the gRPC API over
// a real (if in-memory) mTLS connection, exercising authentication, job
// lifecycle, ownership, and output fan-out together.
package jobworker

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"testing"
	"time"

	"github.com/tjper/jobworker/internal/jobworker/grpc"
	"github.com/tjper/jobworker/internal/jobworker/jobid"
	"github.com/tjper/jobworker/internal/jobworker/registry"
	pb "github.com/tjper/jobworker/proto/gen/go/jobworker/v1"

	igrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// suite wires a JobWorker server to an in-memory bufconn listener, so tests
// can dial it as arbitrarily many distinctly named clients without a real
// socket or on-disk certificates.
type suite struct {
	pki      *testPKI
	listener *bufconn.Listener
}

func newSuite(t *testing.T) *suite {
	t.Helper()

	pki := newTestPKI(t)
	lis := bufconn.Listen(bufSize)

	srv := igrpc.NewServer(igrpc.Creds(credentials.NewTLS(pki.serverTLSConfig())))
	pb.RegisterJobWorkerServiceServer(srv, grpc.NewJobWorker(registry.New()))

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return &suite{pki: pki, listener: lis}
}

// dial connects a client authenticated with cert and returns it along with
// a closer the caller should defer.
func (s *suite) dial(t *testing.T, cert tls.Certificate) (pb.JobWorkerServiceClient, func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	conn, err := igrpc.DialContext(ctx, "bufnet",
		igrpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return s.listener.Dial() }),
		igrpc.WithTransportCredentials(credentials.NewTLS(s.pki.clientTLSConfig(cert))),
		igrpc.WithBlock(),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return pb.NewJobWorkerServiceClient(conn), func() { _ = conn.Close() }
}

// dialAs is a convenience wrapper issuing a fresh client certificate named
// commonName and dialing with it.
func (s *suite) dialAs(t *testing.T, commonName string) (pb.JobWorkerServiceClient, func()) {
	t.Helper()
	return s.dial(t, s.pki.clientCert(t, commonName))
}

func TestAuthentication(t *testing.T) {
	s := newSuite(t)

	t.Run("verified client certificate authenticates", func(t *testing.T) {
		client, closeConn := s.dialAs(t, "alpha")
		defer closeConn()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if _, err := client.Start(ctx, &pb.JobStartRequest{Path: "true"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("certificate not signed by the configured CA is rejected", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_, err := igrpc.DialContext(ctx, "bufnet",
			igrpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return s.listener.Dial() }),
			igrpc.WithTransportCredentials(credentials.NewTLS(s.pki.clientTLSConfig(s.pki.unknownClientCert(t)))),
			igrpc.WithBlock(),
		)
		if err == nil {
			t.Fatal("expected dial to fail the TLS handshake")
		}
	})
}

func TestStartStatus(t *testing.T) {
	s := newSuite(t)
	client, closeConn := s.dialAs(t, "alpha")
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := map[string]struct {
		req      *pb.JobStartRequest
		wantCode codes.Code
	}{
		"true exits zero": {
			req:      &pb.JobStartRequest{Path: "true"},
			wantCode: codes.OK,
		},
		"nonexistent binary fails precondition": {
			req:      &pb.JobStartRequest{Path: "/no/such/binary-xyz"},
			wantCode: codes.FailedPrecondition,
		},
		"empty path is a bad argument": {
			req:      &pb.JobStartRequest{Path: ""},
			wantCode: codes.InvalidArgument,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := client.Start(ctx, test.req)
			if status.Code(err) != test.wantCode {
				t.Fatalf("unexpected code; got: %v, want: %v (err: %v)", status.Code(err), test.wantCode, err)
			}
			if test.wantCode != codes.OK {
				return
			}

			id, err := jobid.FromBytes(resp.Jobid)
			if err != nil {
				t.Fatalf("decode job id: %v", err)
			}

			deadline := time.Now().Add(2 * time.Second)
			for {
				statusResp, err := client.Status(ctx, &pb.TargetJobId{Jobid: id.Bytes()})
				if err != nil {
					t.Fatalf("status: %v", err)
				}
				if sc, ok := statusResp.Completed.(*pb.JobStatus_StatusCode); ok {
					if sc.StatusCode != 0 {
						t.Fatalf("unexpected exit code: %d", sc.StatusCode)
					}
					break
				}
				if time.Now().After(deadline) {
					t.Fatal("job never reached a terminal status")
				}
				time.Sleep(10 * time.Millisecond)
			}
		})
	}
}

func TestStop(t *testing.T) {
	s := newSuite(t)
	client, closeConn := s.dialAs(t, "alpha")
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	startResp, err := client.Start(ctx, &pb.JobStartRequest{Path: "sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := client.Stop(ctx, &pb.TargetJobId{Jobid: startResp.Jobid}); err != nil {
		t.Fatalf("stop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		statusResp, err := client.Status(ctx, &pb.TargetJobId{Jobid: startResp.Jobid})
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if sig, ok := statusResp.Completed.(*pb.JobStatus_Signal); ok {
			if sig.Signal == 0 {
				t.Fatal("expected a nonzero termination signal")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("stopped job never reached a terminal status")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStatusAndStopUnknownJob(t *testing.T) {
	s := newSuite(t)
	client, closeConn := s.dialAs(t, "alpha")
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bogus := &pb.TargetJobId{Jobid: jobid.New().Bytes()}

	if _, err := client.Status(ctx, bogus); status.Code(err) != codes.NotFound {
		t.Fatalf("unexpected code; got: %v, want: %v", status.Code(err), codes.NotFound)
	}
	if _, err := client.Stop(ctx, bogus); status.Code(err) != codes.NotFound {
		t.Fatalf("unexpected code; got: %v, want: %v", status.Code(err), codes.NotFound)
	}
}

func TestCrossClientAccessDenied(t *testing.T) {
	s := newSuite(t)
	owner, closeOwner := s.dialAs(t, "alpha")
	defer closeOwner()
	stranger, closeStranger := s.dialAs(t, "bravo")
	defer closeStranger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	startResp, err := owner.Start(ctx, &pb.JobStartRequest{Path: "true"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	target := &pb.TargetJobId{Jobid: startResp.Jobid}
	if _, err := stranger.Status(ctx, target); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("unexpected code; got: %v, want: %v", status.Code(err), codes.PermissionDenied)
	}
	if _, err := stranger.Stop(ctx, target); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("unexpected code; got: %v, want: %v", status.Code(err), codes.PermissionDenied)
	}
}

func TestOutput(t *testing.T) {
	s := newSuite(t)
	client, closeConn := s.dialAs(t, "alpha")
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	startResp, err := client.Start(ctx, &pb.JobStartRequest{
		Path: "sh",
		Args: []string{"-c", "echo out-line; echo err-line 1>&2"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	stream, err := client.Output(ctx, &pb.TargetJobId{Jobid: startResp.Jobid})
	if err != nil {
		t.Fatalf("output: %v", err)
	}

	var stdout, stderr bytes.Buffer
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		switch event.Stream {
		case pb.OutputEvent_STDOUT:
			stdout.Write(event.Output)
		case pb.OutputEvent_STDERR:
			stderr.Write(event.Output)
		}
	}

	if stdout.String() != "out-line\n" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
	if stderr.String() != "err-line\n" {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

// TestOutputFanOut subscribes twice to the same running job's output and
// checks that both subscribers observe the identical full byte stream,
// regardless of when each one attached relative to the writer.
func TestOutputFanOut(t *testing.T) {
	s := newSuite(t)
	client, closeConn := s.dialAs(t, "alpha")
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	startResp, err := client.Start(ctx, &pb.JobStartRequest{
		Path: "sh",
		Args: []string{"-c", "for i in 1 2 3 4 5; do echo line$i; sleep 0.05; done"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	target := &pb.TargetJobId{Jobid: startResp.Jobid}

	// Give the producer a head start so the late subscriber must replay
	// history rather than only see live appends.
	time.Sleep(120 * time.Millisecond)

	early, err := client.Output(ctx, target)
	if err != nil {
		t.Fatalf("early output: %v", err)
	}
	late, err := client.Output(ctx, target)
	if err != nil {
		t.Fatalf("late output: %v", err)
	}

	readAll := func(stream pb.JobWorkerService_OutputClient) string {
		var buf bytes.Buffer
		for {
			event, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("recv: %v", err)
			}
			buf.Write(event.Output)
		}
		return buf.String()
	}

	earlyOut := readAll(early)
	lateOut := readAll(late)

	if earlyOut != lateOut {
		t.Fatalf("subscribers observed different output; early: %q, late: %q", earlyOut, lateOut)
	}
	if earlyOut != "line1\nline2\nline3\nline4\nline5\n" {
		t.Fatalf("unexpected output: %q", earlyOut)
	}
}
