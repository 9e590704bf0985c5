// Package grpc implements the jobworker ServiceFacade: it authenticates
// every request via internal/jobworker/auth, composes internal/jobworker/job
// and internal/jobworker/registry to implement the four RPC operations, and
// fans output out to streaming subscribers via internal/jobworker/output.
package grpc

import (
	"context"
	"errors"
	"os"
	"sync"

	pb "github.com/tjper/jobworker/proto/gen/go/jobworker/v1"

	"github.com/tjper/jobworker/internal/jobworker/auth"
	"github.com/tjper/jobworker/internal/jobworker/job"
	"github.com/tjper/jobworker/internal/jobworker/jobid"
	"github.com/tjper/jobworker/internal/jobworker/output"
	"github.com/tjper/jobworker/internal/jobworker/registry"
	"github.com/tjper/jobworker/internal/log"
	"github.com/tjper/jobworker/internal/validator"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "grpc")

// subscriberDepth bounds how far a slow Output subscriber may lag the
// producer before its sends start blocking. Matches the depth the
// original job-runner's output channel used (tokio::sync::mpsc::channel(2)).
const subscriberDepth = 2

// NewJobWorker creates a JobWorker instance wired to reg.
func NewJobWorker(reg *registry.Registry) *JobWorker {
	return &JobWorker{registry: reg}
}

var _ pb.JobWorkerServiceServer = (*JobWorker)(nil)

// JobWorker implements pb.JobWorkerServiceServer: the ServiceFacade that
// exposes Start, Stop, Status, and Output over the gRPC transport.
type JobWorker struct {
	pb.UnimplementedJobWorkerServiceServer
	registry *registry.Registry
}

// Start authenticates the caller, spawns a job running the requested
// command, and registers it under a freshly minted id.
func (jw JobWorker) Start(ctx context.Context, req *pb.JobStartRequest) (*pb.TargetJobId, error) {
	owner, err := auth.FromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	valid := validator.New()
	valid.Assert(req.Path != "", "path empty")
	if err := valid.Err(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	j, err := job.Spawn(string(owner), job.Request{Path: req.Path, Args: req.Args}, nil)
	if err != nil {
		logger.Errorf("spawn job; error: %s", err)
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}

	id := jw.registry.Insert(j)
	return &pb.TargetJobId{Jobid: id.Bytes()}, nil
}

// Stop authenticates the caller, then requests asynchronous termination of
// the owned job. It does not wait for the child to reap.
func (jw JobWorker) Stop(ctx context.Context, req *pb.TargetJobId) (*pb.StopSignalSent, error) {
	owner, err := auth.FromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	id, err := jobid.FromBytes(req.Jobid)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	err = jw.registry.WithJob(id, string(owner), func(j *job.Job) error {
		j.StartKill()
		return nil
	})
	if err != nil {
		return nil, toGRPCError(err)
	}

	return &pb.StopSignalSent{}, nil
}

// Status authenticates the caller, then returns the owned job's current
// CompletionStatus, or the "still running" variant if it has none yet.
func (jw JobWorker) Status(ctx context.Context, req *pb.TargetJobId) (*pb.JobStatus, error) {
	owner, err := auth.FromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	id, err := jobid.FromBytes(req.Jobid)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var resp *pb.JobStatus
	err = jw.registry.WithJob(id, string(owner), func(j *job.Job) error {
		resp = toProtoStatus(j.Status())
		return nil
	})
	if err != nil {
		return nil, toGRPCError(err)
	}

	return resp, nil
}

// Output authenticates the caller, verifies ownership under the registry
// lock, takes stable references to the job's two output buffers, and then
// — with the registry lock released — attaches one fan-out reader per
// buffer, forwarding each chunk to stream tagged with its source stream.
// The two readers share a single bounded sink (a channel of depth
// subscriberDepth that one goroutine forwards to the gRPC stream);
// their sends naturally interleave, so the relative order between stdout
// and stderr on the wire is intentionally left unspecified. Output returns
// once both readers have drained their buffer to completion, or as soon as
// the subscriber disconnects (observed as a failed Send).
func (jw JobWorker) Output(req *pb.TargetJobId, stream pb.JobWorkerService_OutputServer) error {
	owner, err := auth.FromContext(stream.Context())
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}

	id, err := jobid.FromBytes(req.Jobid)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	var stdout, stderr *output.Buffer
	err = jw.registry.WithJob(id, string(owner), func(j *job.Job) error {
		stdout, stderr = j.Stdout, j.Stderr
		return nil
	})
	if err != nil {
		return toGRPCError(err)
	}

	type event struct {
		tag pb.OutputEvent_Stream
		buf []byte
	}
	sink := make(chan event, subscriberDepth)
	send := make(chan error, 1)

	go func() {
		for ev := range sink {
			if err := stream.Send(&pb.OutputEvent{Stream: ev.tag, Output: ev.buf}); err != nil {
				send <- err
				return
			}
		}
		send <- nil
	}()

	readers := []struct {
		buf    *output.Buffer
		stream output.Stream
	}{
		{stdout, output.Stdout},
		{stderr, output.Stderr},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(len(readers))
		for _, r := range readers {
			r := r
			go func() {
				defer wg.Done()
				tag := toProtoStream(r.stream)
				_ = r.buf.Drain(stream.Context(), func(chunk output.Chunk) bool {
					select {
					case sink <- event{tag: tag, buf: chunk.Bytes}:
						return true
					case <-stream.Context().Done():
						return false
					}
				})
			}()
		}
		wg.Wait()
		close(sink)
	}()

	select {
	case err := <-send:
		<-done
		return err
	case <-done:
		return <-send
	}
}

func toGRPCError(err error) error {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, registry.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
