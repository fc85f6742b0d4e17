package workers

import (
	"context"
	"sort"
	"sync"
	"time"

	"oidworker/internal/domain/jobrun"
)

// Job is one managed pipeline job.
// Run must record its own terminal job run and return an error only when that record failed.
type Job interface {
	Name() jobrun.JobName
	Run(ctx context.Context, anchor time.Time) error
}

// RunningSet tracks which job kinds are in flight in this process
type RunningSet struct {
	mu      sync.Mutex
	running map[jobrun.JobName]time.Time
}

func NewRunningSet() *RunningSet {
	return &RunningSet{running: make(map[jobrun.JobName]time.Time)}
}

// TryAcquire marks job as running. It returns false when it already is.
func (s *RunningSet) TryAcquire(job jobrun.JobName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[job]; busy {
		return false
	}
	s.running[job] = time.Now()
	return true
}

// Release marks job as finished
func (s *RunningSet) Release(job jobrun.JobName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, job)
}

// Names returns the running job names, sorted
func (s *RunningSet) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.running))
	for name := range s.running {
		out = append(out, string(name))
	}
	sort.Strings(out)
	return out
}

// Since returns when job was acquired, if it is running
func (s *RunningSet) Since(job jobrun.JobName) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.running[job]
	return at, ok
}
