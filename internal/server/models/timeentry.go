package models

import "time"

// TimeEntry is the local mirror of one timesheet submission. TaskIDs,
// TaskNames, HoursWorked, Descriptions and WorkspaceEntryIDs are index
// aligned; ProjectIDs and ProjectNames apply to every task.
type TimeEntry struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Date              time.Time `json:"date"`
	ProjectIDs        []string  `json:"projectIds"`
	ProjectNames      []string  `json:"projectNames"`
	TaskIDs           []string  `json:"taskIds"`
	TaskNames         []string  `json:"taskNames"`
	HoursWorked       []float64 `json:"hoursWorked"`
	Descriptions      []string  `json:"descriptions"`
	WorkspaceEntryIDs []string  `json:"workspaceEntryIds"`
	SubmissionID      *string   `json:"submissionId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// TotalHours sums HoursWorked.
func (e *TimeEntry) TotalHours() float64 {
	var total float64
	for _, h := range e.HoursWorked {
		total += h
	}
	return total
}

// Submission is the payload of a timesheet form post. A null description
// decodes to "". EmployeeID is optional; when present it must match the
// employee resolved from the caller's email.
type Submission struct {
	ProjectIDs   []string  `json:"projectIds"`
	TaskIDs      []string  `json:"taskIds"`
	EmployeeID   string    `json:"employeeId,omitempty"`
	Date         string    `json:"date"`
	HoursWorked  []float64 `json:"hoursWorked"`
	Descriptions []string  `json:"descriptions"`
}
