package grpc

import (
	"github.com/tjper/jobworker/internal/jobworker/job"
	"github.com/tjper/jobworker/internal/jobworker/output"
	pb "github.com/tjper/jobworker/proto/gen/go/jobworker/v1"
)

// toProtoStatus converts a Job's CompletionStatus into the wire JobStatus
// union. A nil status (still running) maps to a JobStatus with no
// Completed set.
func toProtoStatus(s *job.CompletionStatus) *pb.JobStatus {
	if s == nil {
		return &pb.JobStatus{}
	}
	if s.Exited {
		return &pb.JobStatus{Completed: &pb.JobStatus_StatusCode{StatusCode: int32(s.Code)}}
	}
	return &pb.JobStatus{Completed: &pb.JobStatus_Signal{Signal: int32(s.Signal)}}
}

func toProtoStream(s output.Stream) pb.OutputEvent_Stream {
	if s == output.Stderr {
		return pb.OutputEvent_STDERR
	}
	return pb.OutputEvent_STDOUT
}
