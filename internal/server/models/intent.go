package models

import (
	"encoding/json"
	"time"
)

type IntentState string

const (
	IntentPending   IntentState = "pending"
	IntentCompleted IntentState = "completed"
	IntentFailed    IntentState = "failed"
)

// Stage names a step of the submission flow. A failed intent records the
// stage it failed in.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageValidating    Stage = "validating"
	StageWritingRemote Stage = "writing_remote"
	StageWritingLocal  Stage = "writing_local"
	StageDone          Stage = "done"
)

// SubmissionIntent is the outbox record persisted before any workspace
// write. RemotePageIDs is index-aligned with the payload's tasks; an empty
// string marks a page not yet created.
type SubmissionIntent struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Fingerprint   string          `json:"fingerprint"`
	State         IntentState     `json:"state"`
	Stage         Stage           `json:"stage"`
	Payload       json.RawMessage `json:"payload"`
	EmployeeID    string          `json:"employeeId"`
	RemotePageIDs []string        `json:"remotePageIds"`
	TimeEntryID   *string         `json:"timeEntryId,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Submission decodes the stored payload.
func (i *SubmissionIntent) Submission() (Submission, error) {
	var s Submission
	err := json.Unmarshal(i.Payload, &s)
	return s, err
}

// PendingWrites returns the indices whose remote page has not been created.
func (i *SubmissionIntent) PendingWrites() []int {
	var out []int
	for idx, id := range i.RemotePageIDs {
		if id == "" {
			out = append(out, idx)
		}
	}
	return out
}
