package workers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/errors"
)

func TestRunningSet(t *testing.T) {
	s := NewRunningSet()

	assert.True(t, s.TryAcquire(jobrun.JobOptions))
	assert.False(t, s.TryAcquire(jobrun.JobOptions))
	assert.True(t, s.TryAcquire(jobrun.JobRelation))
	assert.Equal(t, []string{"cme_30m", "relation_30m"}, s.Names())

	_, ok := s.Since(jobrun.JobOptions)
	assert.True(t, ok)

	s.Release(jobrun.JobOptions)
	assert.True(t, s.TryAcquire(jobrun.JobOptions))
}

func TestRunningSet_SingleWinnerUnderContention(t *testing.T) {
	s := NewRunningSet()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAcquire(jobrun.JobRetention) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		target string
		want   []jobrun.JobName
	}{
		{TargetRelation, []jobrun.JobName{jobrun.JobRelation}},
		{TargetOptions, []jobrun.JobName{jobrun.JobOptions}},
		{TargetOptionsSnapshot, []jobrun.JobName{jobrun.JobOptions}},
		{TargetBoth, []jobrun.JobName{jobrun.JobRelation, jobrun.JobOptions}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got, err := Resolve(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Resolve("")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	a := newFakeJob(jobrun.JobRelation, nil)
	_, err := NewRegistry(a, newFakeJob(jobrun.JobRelation, nil))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	reg, err := NewRegistry(newFakeJob(jobrun.JobRetention, nil), a)
	require.NoError(t, err)
	assert.Equal(t, []jobrun.JobName{jobrun.JobRelation, jobrun.JobRetention}, reg.Names())
}
