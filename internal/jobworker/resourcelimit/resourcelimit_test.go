package resourcelimit

import (
	"os"
	"testing"
)

// These tests write real cgroup2 control files, so they only run with root
// privileges against an already-mounted cgroup2 hierarchy, matching how the
// cgroup package this was adapted from gates its own tests.
func TestCreateGroupAppliesLimits(t *testing.T) {
	if !isRoot() {
		t.Skip("must be root to run")
	}

	limiter, err := NewLimiter("/sys/fs/cgroup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	group, err := limiter.CreateGroup(Limits{MemoryBytes: 100 * 1024 * 1024, CPUs: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer group.Remove("/sys/fs/cgroup/cgroup.procs")

	if _, err := os.Stat(group.path); err != nil {
		t.Fatalf("stat group path; error: %v", err)
	}
}

func isRoot() bool {
	return os.Geteuid() == 0
}
