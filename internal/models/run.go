package models

import (
	"time"
)

// RunOutcome is the terminal state of a supervised run
type RunOutcome string

const (
	RunRunning   RunOutcome = "running"
	RunSucceeded RunOutcome = "succeeded"
	RunCancelled RunOutcome = "cancelled"
	RunExhausted RunOutcome = "attempts_exhausted"
)

// RunRecord is the persisted summary of one orchestrator run
type RunRecord struct {
	ID              string         `json:"id"`
	Period          string         `json:"period"`
	Workbook        string         `json:"workbook"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	Outcome         RunOutcome     `json:"outcome"`
	SessionAttempts int            `json:"session_attempts"`
	Total           int            `json:"total"`
	Counts          map[string]int `json:"counts"`
	Error           string         `json:"error,omitempty"`
}

// AttemptRecord is the persisted result of processing one entity inside a run
type AttemptRecord struct {
	ID       string    `json:"id"`
	RunID    string    `json:"run_id" badgerhold:"index"`
	EntityID string    `json:"entity_id"`
	Code     string    `json:"code"`
	Status   Status    `json:"status"`
	Attempts int       `json:"attempts"`
	Artifact string    `json:"artifact,omitempty"`
	Captured bool      `json:"captured"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// CountStatuses tallies the batch by status label
func CountStatuses(batch []Entity) map[string]int {
	counts := make(map[string]int, len(AllStatuses))
	for _, e := range batch {
		counts[e.Status.Label()]++
	}
	return counts
}
