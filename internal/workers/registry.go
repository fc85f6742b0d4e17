package workers

import (
	"strings"
	"sync"

	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/errors"
)

// On-demand targets accepted by the control surface.
// TargetOptionsSnapshot is an alias of TargetOptions.
const (
	TargetRelation        = "relation"
	TargetOptions         = "cme"
	TargetOptionsSnapshot = "options-snapshot"
	TargetBoth            = "both"
)

// Targets lists the accepted on-demand targets
var Targets = []string{TargetRelation, TargetOptions, TargetOptionsSnapshot, TargetBoth}

// TargetsHint is the accepted target list as shown to callers
func TargetsHint() string {
	return "job must be one of: " + strings.Join(Targets, ", ")
}

// Registry holds the managed jobs by name
type Registry struct {
	jobs map[jobrun.JobName]Job
	mu   sync.RWMutex
}

// NewRegistry creates a registry holding jobs
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{jobs: make(map[jobrun.JobName]Job, len(jobs))}
	for _, j := range jobs {
		if err := r.Register(j); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a job. Names must be unique.
func (r *Registry) Register(j Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := j.Name()
	if _, exists := r.jobs[name]; exists {
		return errors.Wrapf(errors.ErrInvalidInput, "job %s already registered", name)
	}
	r.jobs[name] = j
	return nil
}

// Get returns a job by name
func (r *Registry) Get(name jobrun.JobName) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[name]
	return j, ok
}

// Names returns registered job names in the canonical job order
func (r *Registry) Names() []jobrun.JobName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]jobrun.JobName, 0, len(r.jobs))
	for _, name := range jobrun.Jobs {
		if _, ok := r.jobs[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Resolve maps an on-demand target to the jobs it runs, in execution order
func Resolve(target string) ([]jobrun.JobName, error) {
	switch target {
	case TargetRelation:
		return []jobrun.JobName{jobrun.JobRelation}, nil
	case TargetOptions, TargetOptionsSnapshot:
		return []jobrun.JobName{jobrun.JobOptions}, nil
	case TargetBoth:
		return []jobrun.JobName{jobrun.JobRelation, jobrun.JobOptions}, nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "%s (got %q)", TargetsHint(), target)
	}
}
