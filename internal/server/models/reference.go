package models

import "time"

// Employee is a workspace employee page.
type Employee struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	HourlyRate *float64 `json:"hourlyRate,omitempty"`
	Status     string   `json:"status,omitempty"`
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Task may belong to several projects.
type Task struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ProjectIDs []string `json:"projectIds"`
}

// WorkspaceEntry is a raw timesheet page with relations resolved to names.
type WorkspaceEntry struct {
	ID            string    `json:"id"`
	Date          string    `json:"date"`
	ProjectIDs    []string  `json:"projectIds"`
	ProjectNames  []string  `json:"projectNames"`
	TaskIDs       []string  `json:"taskIds"`
	TaskNames     []string  `json:"taskNames"`
	EmployeeIDs   []string  `json:"employeeIds"`
	EmployeeNames []string  `json:"employeeNames"`
	HoursWorked   float64   `json:"hoursWorked"`
	Notes         string    `json:"notes"`
	CreatedTime   time.Time `json:"createdTime"`
}

// SubmissionForm is the data needed to render the timesheet form.
type SubmissionForm struct {
	Employee Employee  `json:"employee"`
	Projects []Project `json:"projects"`
	Tasks    []Task    `json:"tasks"`
}
