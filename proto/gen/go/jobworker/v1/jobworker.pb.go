// Code generated by protoc-gen-go from proto/jobworker/v1/jobworker.proto.
// DO NOT EDIT.

package v1

import (
	fmt "fmt"

	proto "github.com/golang/protobuf/proto"
)

// Reference imports to suppress errors if they are not otherwise used.
var _ = proto.Marshal
var _ = fmt.Errorf

// OutputEvent_Stream identifies which of a job's two output streams an
// OutputEvent chunk belongs to.
type OutputEvent_Stream int32

const (
	OutputEvent_STDOUT OutputEvent_Stream = 0
	OutputEvent_STDERR OutputEvent_Stream = 1
)

var OutputEvent_Stream_name = map[int32]string{
	0: "STDOUT",
	1: "STDERR",
}

var OutputEvent_Stream_value = map[string]int32{
	"STDOUT": 0,
	"STDERR": 1,
}

func (x OutputEvent_Stream) String() string {
	if name, ok := OutputEvent_Stream_name[int32(x)]; ok {
		return name
	}
	return fmt.Sprintf("OutputEvent_Stream(%d)", x)
}

// JobStartRequest describes the executable a client wants run as a job.
type JobStartRequest struct {
	Path string   `protobuf:"bytes,1,opt,name=path,proto3" json:"path,omitempty"`
	Args []string `protobuf:"bytes,2,rep,name=args,proto3" json:"args,omitempty"`
}

func (m *JobStartRequest) Reset()         { *m = JobStartRequest{} }
func (m *JobStartRequest) String() string { return proto.CompactTextString(m) }
func (*JobStartRequest) ProtoMessage()    {}

func (m *JobStartRequest) GetPath() string {
	if m != nil {
		return m.Path
	}
	return ""
}

func (m *JobStartRequest) GetArgs() []string {
	if m != nil {
		return m.Args
	}
	return nil
}

// TargetJobId addresses an existing job by its server-minted identifier.
type TargetJobId struct {
	Jobid []byte `protobuf:"bytes,1,opt,name=jobid,proto3" json:"jobid,omitempty"`
}

func (m *TargetJobId) Reset()         { *m = TargetJobId{} }
func (m *TargetJobId) String() string { return proto.CompactTextString(m) }
func (*TargetJobId) ProtoMessage()    {}

func (m *TargetJobId) GetJobid() []byte {
	if m != nil {
		return m.Jobid
	}
	return nil
}

// StopSignalSent acknowledges that termination has been requested.
type StopSignalSent struct{}

func (m *StopSignalSent) Reset()         { *m = StopSignalSent{} }
func (m *StopSignalSent) String() string { return proto.CompactTextString(m) }
func (*StopSignalSent) ProtoMessage()    {}

// JobStatus reports whether a job has reached a terminal state, and if so,
// how. If Completed is nil, the job is still running.
type JobStatus struct {
	// Types that are valid to be assigned to Completed:
	//	*JobStatus_StatusCode
	//	*JobStatus_Signal
	Completed isJobStatus_Completed `protobuf_oneof:"completed"`
}

func (m *JobStatus) Reset()         { *m = JobStatus{} }
func (m *JobStatus) String() string { return proto.CompactTextString(m) }
func (*JobStatus) ProtoMessage()    {}

type isJobStatus_Completed interface {
	isJobStatus_Completed()
}

type JobStatus_StatusCode struct {
	StatusCode int32 `protobuf:"varint,1,opt,name=status_code,json=statusCode,proto3,oneof"`
}

type JobStatus_Signal struct {
	Signal int32 `protobuf:"varint,2,opt,name=signal,proto3,oneof"`
}

func (*JobStatus_StatusCode) isJobStatus_Completed() {}
func (*JobStatus_Signal) isJobStatus_Completed()     {}

func (m *JobStatus) GetCompleted() isJobStatus_Completed {
	if m != nil {
		return m.Completed
	}
	return nil
}

func (m *JobStatus) GetStatusCode() int32 {
	if x, ok := m.GetCompleted().(*JobStatus_StatusCode); ok {
		return x.StatusCode
	}
	return 0
}

func (m *JobStatus) GetSignal() int32 {
	if x, ok := m.GetCompleted().(*JobStatus_Signal); ok {
		return x.Signal
	}
	return 0
}

// XXX_OneofWrappers registers JobStatus's oneof member types with the
// legacy reflection-based marshaler.
func (*JobStatus) XXX_OneofWrappers() []interface{} {
	return []interface{}{
		(*JobStatus_StatusCode)(nil),
		(*JobStatus_Signal)(nil),
	}
}

// OutputEvent carries one chunk of bytes captured from a job's stdout or
// stderr, in the order it was read from the child's pipe.
type OutputEvent struct {
	Stream OutputEvent_Stream `protobuf:"varint,1,opt,name=stream,proto3,enum=jobworker.v1.OutputEvent_Stream" json:"stream,omitempty"`
	Output []byte             `protobuf:"bytes,2,opt,name=output,proto3" json:"output,omitempty"`
}

func (m *OutputEvent) Reset()         { *m = OutputEvent{} }
func (m *OutputEvent) String() string { return proto.CompactTextString(m) }
func (*OutputEvent) ProtoMessage()    {}

func (m *OutputEvent) GetStream() OutputEvent_Stream {
	if m != nil {
		return m.Stream
	}
	return OutputEvent_STDOUT
}

func (m *OutputEvent) GetOutput() []byte {
	if m != nil {
		return m.Output
	}
	return nil
}

func init() {
	proto.RegisterType((*JobStartRequest)(nil), "jobworker.v1.JobStartRequest")
	proto.RegisterType((*TargetJobId)(nil), "jobworker.v1.TargetJobId")
	proto.RegisterType((*StopSignalSent)(nil), "jobworker.v1.StopSignalSent")
	proto.RegisterType((*JobStatus)(nil), "jobworker.v1.JobStatus")
	proto.RegisterType((*OutputEvent)(nil), "jobworker.v1.OutputEvent")
	proto.RegisterEnum("jobworker.v1.OutputEvent_Stream", OutputEvent_Stream_name, OutputEvent_Stream_value)
}
