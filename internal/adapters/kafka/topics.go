package kafka

// Topic definitions for worker events
const (
	// Snapshot events, keyed by anchor time
	TopicRelationSnapshots = "relation.snapshots"
	TopicOptionsSnapshots  = "options.snapshots"

	// Audit events, keyed by job name
	TopicJobRuns = "jobs.runs"
)

// AllTopics lists every topic the worker writes to
func AllTopics() []string {
	return []string{TopicRelationSnapshots, TopicOptionsSnapshots, TopicJobRuns}
}
