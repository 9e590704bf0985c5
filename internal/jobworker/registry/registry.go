// Package registry provides Registry, the process-wide mapping from
// jobid.ID to *job.Job. It stores each job under the id job.Spawn minted for
// it and mediates every subsequent lookup through an ownership check.
package registry

import (
	"errors"
	"sync"

	"github.com/tjper/jobworker/internal/jobworker/job"
	"github.com/tjper/jobworker/internal/jobworker/jobid"
)

// ErrNotFound indicates no job exists for the given id.
var ErrNotFound = errors.New("registry: job not found")

// ErrPermissionDenied indicates the requesting client is not the job's
// owner.
var ErrPermissionDenied = errors.New("registry: permission denied")

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		jobs: make(map[jobid.ID]*job.Job),
	}
}

// Registry owns every Job in the process. Inserts and lookups are
// serialized by a single mutex; the mutex is held only for the map
// operation and, in WithJob, the ownership check — never across I/O.
type Registry struct {
	mutex sync.Mutex
	jobs  map[jobid.ID]*job.Job
}

// Insert adds j to the registry under its own ID, which is returned for
// convenience. j.ID is expected to already be a freshly minted jobid.New()
// value, so collisions are not checked for.
func (r *Registry) Insert(j *job.Job) jobid.ID {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.jobs[j.ID] = j
	return j.ID
}

// WithJob looks up the Job for id; if absent, returns ErrNotFound. If found
// but owned by a different client, returns ErrPermissionDenied without
// invoking fn. Otherwise it invokes fn with the Job and returns fn's error.
//
// fn MUST NOT block for substantial time and MUST NOT call back into the
// Registry: the registry lock is held for the duration of the lookup and
// ownership check, but is released before fn runs, so fn does not itself
// hold up other callers — callers that need to do long-running work (in
// particular, serving an Output stream) should take stable references to
// the Job's fields here and drain them after WithJob returns.
func (r *Registry) WithJob(id jobid.ID, client string, fn func(*job.Job) error) error {
	r.mutex.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mutex.Unlock()
		return ErrNotFound
	}
	if j.Owner != client {
		r.mutex.Unlock()
		return ErrPermissionDenied
	}
	r.mutex.Unlock()
	return fn(j)
}
