// Package job provides Job, which wraps one spawned child process, owns its
// two output buffers, and exposes start-kill and status queries. The child
// is spawned directly with os/exec, with its stdout and stderr pipes drained
// into in-memory buffers rather than a log file on disk. Resource isolation
// is not enforced by default; PreExecHook exists as an extension point for
// callers that want it.
package job

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/tjper/jobworker/internal/jobworker/jobid"
	"github.com/tjper/jobworker/internal/jobworker/output"
	"github.com/tjper/jobworker/internal/log"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "job")

// chunkSize is the size of each read from a child's stdout/stderr pipe.
// Chunking is an implementation detail; it has no bearing on correctness
// since Buffer preserves per-stream byte order regardless of chunk sizing.
const chunkSize = 32 * 1024

// Request describes the executable a client asked the server to run.
type Request struct {
	Path string
	Args []string
}

// PreExecHook, if set, is invoked on a Job's *syscall.SysProcAttr before the
// child is started. It is the extension point for resource isolation
// (cgroups, namespaces); by default no hook is installed and this field is
// left nil. See internal/jobworker/resourcelimit for an implementation that
// can be plugged in here.
type PreExecHook func(*syscall.SysProcAttr)

// Signal is the strongest available termination signal this package sends
// on Stop. Kept as a variable, not a literal, so tests can observe it.
var Signal = syscall.SIGKILL

// Spawn configures and starts a child process for req, owned by owner.
// Stdout and stderr are captured as pipes; stdin is never attached. On
// success, two long-running goroutines are started, each draining one pipe
// into the Job's corresponding output.Buffer. Spawn either returns a fully
// constructed, running Job, or an error — a Job is never partially
// constructed.
func Spawn(owner string, req Request, hook PreExecHook) (*Job, error) {
	cmd := exec.Command(req.Path, req.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if hook != nil {
		hook(cmd.SysProcAttr)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("job: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("job: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("job: start child process: %w", err)
	}

	j := &Job{
		ID:     jobid.New(),
		Owner:  owner,
		Stdout: output.New(),
		Stderr: output.New(),
		cmd:    cmd,
		done:   make(chan struct{}),
	}

	logger.Infof("spawned job; ID: %v, path: %s", j.ID, req.Path)

	j.wg.Add(2)
	go j.drain(stdoutPipe, j.Stdout)
	go j.drain(stderrPipe, j.Stderr)
	go j.supervise()

	return j, nil
}

// Job represents one spawned child process owned by a single client.
type Job struct {
	// ID is the server-minted identifier for this Job.
	ID jobid.ID
	// Owner is the client that started this Job. Immutable.
	Owner string
	// Stdout and Stderr each hold the complete, ordered byte history of one
	// stream, independently readable by any number of fan-out subscribers.
	Stdout *output.Buffer
	Stderr *output.Buffer

	cmd  *exec.Cmd
	wg   sync.WaitGroup
	done chan struct{}

	mutex    sync.RWMutex
	status   *CompletionStatus
	killOnce sync.Once
}

// CompletionStatus describes how a Job's child process terminated.
type CompletionStatus struct {
	// Exited is true if the child ran to completion and reported a numeric
	// exit code; false if it was terminated by a signal.
	Exited bool
	// Code is the process exit code. Only meaningful if Exited is true.
	Code int
	// Signal is the signal number that terminated the child. Only
	// meaningful if Exited is false.
	Signal int
}

// drain reads pipe in chunkSize runs, appending each non-empty read to buf,
// and calls buf.Complete on EOF or any read error. A read error is logged
// and demoted to end-of-stream: it does not kill the child, since the
// child's own exit status remains the source of truth for how it ended.
func (j *Job) drain(pipe io.ReadCloser, buf *output.Buffer) {
	defer j.wg.Done()
	defer buf.Complete()

	b := make([]byte, chunkSize)
	for {
		n, err := pipe.Read(b)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, b[:n])
			buf.Append(output.Chunk{Bytes: chunk})
		}
		if err != nil {
			if err != io.EOF {
				logger.Warnf("job %v: pipe read: %v", j.ID, err)
			}
			return
		}
	}
}

// supervise waits for both pipe-drain goroutines to reach EOF, then reaps
// the child, records its CompletionStatus, and closes done. The drains must
// finish before cmd.Wait is called: Wait closes the pipes' read ends the
// moment it reaps the child, and the drains reach EOF on their own once the
// child closes its write ends at exit, so this order never races a read
// against that close. It is the only writer of the status cell; Status only
// reads it.
func (j *Job) supervise() {
	j.wg.Wait()
	err := j.cmd.Wait()

	status := completionStatus(err, j.cmd.ProcessState)
	j.mutex.Lock()
	j.status = status
	j.mutex.Unlock()

	logger.Infof("job %v terminal: %+v", j.ID, status)
	close(j.done)
}

func completionStatus(waitErr error, state *os.ProcessState) *CompletionStatus {
	if state == nil {
		// cmd.Start failed to even produce a process state; treat as a
		// non-zero exit so Status never blocks forever.
		return &CompletionStatus{Exited: true, Code: -1}
	}

	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		panic(fmt.Sprintf("job: unrecognized process state: %v", state.Sys()))
	}

	switch {
	case ws.Exited():
		return &CompletionStatus{Exited: true, Code: ws.ExitStatus()}
	case ws.Signaled():
		return &CompletionStatus{Exited: false, Signal: int(ws.Signal())}
	default:
		panic(fmt.Sprintf("job: child in neither exited nor signaled state: %v", ws))
	}
}

// StartKill requests asynchronous termination of the child by sending
// Signal (SIGKILL by default) to its process group. It does not wait for
// the child to exit. Idempotent: a second call while the first is still
// pending, or after the child has already exited, is a no-op.
func (j *Job) StartKill() {
	j.killOnce.Do(func() {
		pid := j.cmd.Process.Pid
		if err := syscall.Kill(-pid, Signal); err != nil {
			logger.Warnf("job %v: signal process group: %v", j.ID, err)
		}
	})
}

// Status returns the Job's CompletionStatus, or nil if the child is still
// running. Non-blocking.
func (j *Job) Status() *CompletionStatus {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.status
}

// Done returns a channel that is closed once the Job has reached a
// terminal state and its output buffers have been marked complete.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
