package queue

import (
	"fmt"
	"time"

	"github.com/adlens/adlens/intel"
)

// Priority is a job's scheduling tier. Higher tiers always dispatch before
// lower ones; within a tier jobs run in submission order.
type Priority string

const (
	// PriorityInstant runs a quick scan of the primary keyword only.
	PriorityInstant Priority = "instant"
	// PriorityStandard runs a full keyword sweep, serving cache when fresh.
	PriorityStandard Priority = "standard"
	// PriorityDeep runs a full sweep and always recollects.
	PriorityDeep Priority = "deep"
)

// rank orders tiers for dispatch; lower dispatches first.
func (p Priority) rank() int {
	switch p {
	case PriorityInstant:
		return 0
	case PriorityStandard:
		return 1
	default:
		return 2
	}
}

// ParsePriority validates a wire-level priority string. Empty defaults to
// standard.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityInstant, PriorityStandard, PriorityDeep:
		return Priority(s), nil
	case "":
		return PriorityStandard, nil
	}
	return "", fmt.Errorf("queue: unknown priority %q", s)
}

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal jobs never change
// again: failures are not retried.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DataCollected counts what a running job has gathered so far.
type DataCollected struct {
	KeywordsSearched int `json:"keywords_searched"`
	AdsFound         int `json:"ads_found"`
	CompetitorsFound int `json:"competitors_found"`
}

// Job is one scrape job. Callers only ever see snapshot copies; the queue
// owns the live record.
type Job struct {
	ID          string        `json:"id"`
	URL         string        `json:"url"`
	Customer    string        `json:"customer,omitempty"`
	Priority    Priority      `json:"priority"`
	Status      Status        `json:"status"`
	Progress    int           `json:"progress"` // 0..100, never decreases
	CurrentTask string        `json:"current_task,omitempty"`
	Collected   DataCollected `json:"data_collected"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error  string        `json:"error,omitempty"`
	Result *intel.Result `json:"result,omitempty"`
}

// snapshot returns a defensive copy safe to hand to callers.
func (j *Job) snapshot() Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
