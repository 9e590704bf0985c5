// Package resourcelimit provides an optional cgroups-v2-backed
// implementation of job.PreExecHook: enabling the cpu and memory
// controllers, writing cpu.max and memory.high, and placing a pid into a
// freshly created leaf cgroup. Resource isolation is not enforced by
// default; a caller opts in by passing Group.Hook() to job.Spawn. Disk-I/O
// throttling (io.max) is out of scope: cpu.max and memory.high alone are
// enough to demonstrate the hook shape a production isolation layer would
// plug into.
package resourcelimit

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tjper/jobworker/internal/jobworker/job"
	"github.com/tjper/jobworker/internal/log"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "resourcelimit")

const (
	fileMode             = 0644
	cgroupProcs          = "cgroup.procs"
	cgroupSubtreeControl = "cgroup.subtree_control"
	memoryHigh           = "memory.high"
	cpuMax               = "cpu.max"
	cpuPeriod            = 100000
)

// NewLimiter creates a Limiter rooted at mountPath, a cgroup2 filesystem
// that must already be mounted (e.g. by the host's init system). It never
// mounts cgroup2 itself: a jobworker process is not expected to own host
// mount namespace changes.
func NewLimiter(mountPath string) (*Limiter, error) {
	base := path.Join(mountPath, "jobworker")
	if err := os.MkdirAll(base, fileMode); err != nil {
		return nil, errors.Wrapf(err, "resourcelimit: create base cgroup %s", base)
	}
	if err := enable(mountPath, "cpu", "memory"); err != nil {
		return nil, err
	}
	if err := enable(base, "cpu", "memory"); err != nil {
		return nil, err
	}
	return &Limiter{base: base}, nil
}

// Limiter creates per-job cgroups under a single jobworker base cgroup.
type Limiter struct {
	base string
}

// Limits bounds the resources a Group constrains its member process to. A
// zero value for any field means "no limit".
type Limits struct {
	MemoryBytes uint64
	CPUs        float32
}

// CreateGroup creates a new cgroup applying limits, returning a Group whose
// Hook can be installed as a job.PreExecHook.
func (l *Limiter) CreateGroup(limits Limits) (*Group, error) {
	id := uuid.New()
	dir := path.Join(l.base, id.String())
	if err := os.Mkdir(dir, fileMode); err != nil {
		return nil, errors.Wrapf(err, "resourcelimit: create cgroup %s", dir)
	}

	g := &Group{id: id, path: dir}
	if limits.MemoryBytes > 0 {
		if err := g.write(memoryHigh, strconv.FormatUint(limits.MemoryBytes, 10)); err != nil {
			return nil, err
		}
	}
	if limits.CPUs > 0 {
		value := fmt.Sprintf("%d %d", int(limits.CPUs*cpuPeriod), cpuPeriod)
		if err := g.write(cpuMax, value); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Group is a single cgroup created for one Job.
type Group struct {
	id   uuid.UUID
	path string
}

// Hook returns a job.PreExecHook that, once the child has started, the
// caller is responsible for completing by calling Place with the child's
// pid — SysProcAttr alone cannot join a cgroup before the child is forked
// on Linux's cgroup2 model without a companion syscall, so the hook only
// marks the process group for Place to target afterward. job.Spawn does not
// call Place itself; a caller wiring this hook in must also call Place(pid)
// after Spawn returns for the child to actually join the Group's cgroup.
func (g *Group) Hook() job.PreExecHook {
	return func(attr *syscall.SysProcAttr) {
		attr.Setpgid = true
	}
}

// Place moves pid into the Group's cgroup.
func (g *Group) Place(pid int) error {
	file := path.Join(g.path, cgroupProcs)
	fd, err := os.OpenFile(file, os.O_WRONLY, fileMode)
	if err != nil {
		return errors.Wrapf(err, "resourcelimit: open %s", file)
	}
	defer fd.Close()

	if _, err := fd.WriteString(strconv.Itoa(pid)); err != nil {
		return errors.Wrapf(err, "resourcelimit: place pid %d", pid)
	}
	return nil
}

func (g *Group) write(control, value string) error {
	file := path.Join(g.path, control)
	fd, err := os.OpenFile(file, os.O_WRONLY, fileMode)
	if err != nil {
		return errors.Wrapf(err, "resourcelimit: open %s", file)
	}
	defer fd.Close()

	if _, err := fd.WriteString(value); err != nil {
		return errors.Wrapf(err, "resourcelimit: write %s", control)
	}
	return nil
}

// Remove moves any remaining pids in the Group back to the root cgroup and
// removes the Group's cgroup directory. rootCgroupProcs is the path to the
// root cgroup's cgroup.procs file (e.g. "<mountPath>/cgroup.procs"); Rmdir
// fails with EBUSY on a non-empty cgroup, so every pid must be relocated
// first.
func (g *Group) Remove(rootCgroupProcs string) error {
	procs := path.Join(g.path, cgroupProcs)
	contents, err := os.ReadFile(procs)
	if err != nil {
		return errors.Wrapf(err, "resourcelimit: read %s", procs)
	}

	root, err := os.OpenFile(rootCgroupProcs, os.O_WRONLY, fileMode)
	if err != nil {
		return errors.Wrapf(err, "resourcelimit: open %s", rootCgroupProcs)
	}
	defer root.Close()

	for _, line := range strings.Fields(string(contents)) {
		if _, err := root.WriteString(line); err != nil {
			return errors.Wrapf(err, "resourcelimit: relocate pid %s to %s", line, rootCgroupProcs)
		}
	}

	if err := unix.Rmdir(g.path); err != nil {
		logger.Warnf("remove cgroup %s: %v", g.path, err)
		return errors.Wrapf(err, "resourcelimit: remove cgroup %s", g.path)
	}
	return nil
}

func enable(dir string, controllers ...string) error {
	file := path.Join(dir, cgroupSubtreeControl)
	fd, err := os.OpenFile(file, os.O_WRONLY, fileMode)
	if err != nil {
		return errors.Wrapf(err, "resourcelimit: open %s", file)
	}
	defer fd.Close()

	for _, controller := range controllers {
		if _, err := fd.WriteString(fmt.Sprintf("+%s", controller)); err != nil {
			return errors.Wrapf(err, "resourcelimit: enable %s on %s", controller, dir)
		}
	}
	return nil
}
