package domain

import "time"

// JobStatus enumerates search job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
	JobStatusTimeout    JobStatus = "timeout"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusRunning, JobStatusFailed},
	JobStatusRunning:    {JobStatusProcessing, JobStatusFailed, JobStatusTimeout},
	JobStatusProcessing: {JobStatusDone, JobStatusFailed},
}

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusFailed, JobStatusTimeout:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourceType records whether a query was derived from a topic or a competitor.
type SourceType string

const (
	SourceKeyword    SourceType = "keyword"
	SourceCompetitor SourceType = "competitor"
)

// BuiltQuery is a provider query plus its provenance.
type BuiltQuery struct {
	Text        string     `json:"text"`
	Platform    Platform   `json:"platform"`
	SourceType  SourceType `json:"source_type"`
	SourceValue string     `json:"source_value"`
}

// SearchJob is one discovery run for one owner.
type SearchJob struct {
	ID                  string
	OwnerID             string
	Topics              []string
	Competitors         []string
	Platforms           []Platform
	Queries             []BuiltQuery
	Settings            SettingsSnapshot
	RunID               string
	DatasetID           string
	Status              JobStatus
	ErrorMessage        string
	ResultsCount        int
	ResultJSON          []byte
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time
}

// Transition describes a conditional status change. Stores apply it only
// when the current status is one of From, or when StaleBefore is set and the
// job has been processing since before that instant.
type Transition struct {
	From         []JobStatus
	To           JobStatus
	RunID        string
	DatasetID    string
	ErrorMessage string
	ResultsCount *int
	ResultJSON   []byte
	StaleBefore  *time.Time
}

// FromStrings flattens From for SQL array parameters.
func (t Transition) FromStrings() []string {
	out := make([]string, len(t.From))
	for i, s := range t.From {
		out[i] = string(s)
	}
	return out
}
