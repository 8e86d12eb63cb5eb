package backtest

import (
	"sync"
	"time"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Window bounds the historical production traffic a backtest replays.
type Window struct {
	From  time.Time `json:"from" binding:"required"`
	To    time.Time `json:"to" binding:"required"`
	Limit int       `json:"limit"`
}

// SubmitRequest asks to replay a candidate rule source against the recorded
// production decisions of an existing rule.
type SubmitRequest struct {
	RuleID string `json:"rule_id" binding:"required"`
	Source string `json:"source" binding:"required"`
	Window Window `json:"window" binding:"required"`
}

// Diff compares the recorded outcome of one event with the candidate's.
type Diff struct {
	EventID    string `json:"event_id"`
	OldOutcome string `json:"old_outcome"`
	NewOutcome string `json:"new_outcome"`
	Changed    bool   `json:"changed"`
}

// Result is the complete output of a finished backtest. Jobs either produce a
// full result or none at all.
type Result struct {
	EventsReplayed  int            `json:"events_replayed"`
	ChangedCount    int            `json:"changed_count"`
	Diffs           []Diff         `json:"diffs"`
	OldDistribution map[string]int `json:"old_distribution"`
	NewDistribution map[string]int `json:"new_distribution"`
}

// Job tracks one backtest through the queue. Workers mutate it under its
// mutex; handlers only ever see snapshots.
type Job struct {
	mu sync.Mutex

	ID          string
	RuleID      string
	Source      string
	Window      Window
	Status      string
	Error       string
	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Result      *Result
}

// JobView is the immutable snapshot of a job served to pollers.
type JobView struct {
	ID          string     `json:"id"`
	RuleID      string     `json:"rule_id"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *Result    `json:"result,omitempty"`
}

func (j *Job) markRunning() {
	j.mu.Lock()
	j.Status = StatusRunning
	j.StartedAt = time.Now()
	j.mu.Unlock()
}

func (j *Job) markCompleted(result *Result) {
	j.mu.Lock()
	j.Status = StatusCompleted
	j.Result = result
	j.CompletedAt = time.Now()
	j.mu.Unlock()
}

func (j *Job) markFailed(err error) {
	j.mu.Lock()
	j.Status = StatusFailed
	j.Error = err.Error()
	j.CompletedAt = time.Now()
	j.mu.Unlock()
}

func (j *Job) finishedBefore(cutoff time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Status != StatusCompleted && j.Status != StatusFailed {
		return false
	}
	return j.CompletedAt.Before(cutoff)
}

func (j *Job) Snapshot() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()

	view := JobView{
		ID:          j.ID,
		RuleID:      j.RuleID,
		Status:      j.Status,
		Error:       j.Error,
		SubmittedAt: j.SubmittedAt,
		Result:      j.Result,
	}
	if !j.StartedAt.IsZero() {
		started := j.StartedAt
		view.StartedAt = &started
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		view.CompletedAt = &completed
	}
	return view
}
