package jobapplication

import "time"

// Application statuses, mirroring the pipeline stages the tracker exposes.
const (
	StatusApplied   = "applied"
	StatusScreening = "screening"
	StatusInterview = "interview"
	StatusOffer     = "offer"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusOnHold    = "on_hold"
)

func validStatus(status string) bool {
	switch status {
	case StatusApplied, StatusScreening, StatusInterview, StatusOffer, StatusAccepted, StatusRejected, StatusOnHold:
		return true
	}
	return false
}

type JobApplication struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Company        string     `json:"company"`
	Position       string     `json:"position"`
	Location       string     `json:"location"`
	Status         string     `json:"status"`
	AppliedDate    time.Time  `json:"appliedDate"`
	NextActionDate *time.Time `json:"nextActionDate,omitempty"`
	Source         string     `json:"source,omitempty"`
	JobPostingURL  string     `json:"jobPostingUrl,omitempty"`
	ExpectedSalary *float64   `json:"expectedSalary,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Timeline       []Note     `json:"timeline"`
}

// Note is a timeline entry attached to an application.
type Note struct {
	ID               string    `json:"id"`
	JobApplicationID string    `json:"jobApplicationId"`
	Content          string    `json:"content"`
	Type             string    `json:"type,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type ApplicationInput struct {
	Company        string     `json:"company"`
	Position       string     `json:"position"`
	Location       string     `json:"location"`
	Status         string     `json:"status"`
	AppliedDate    time.Time  `json:"appliedDate"`
	NextActionDate *time.Time `json:"nextActionDate"`
	Source         string     `json:"source"`
	JobPostingURL  string     `json:"jobPostingUrl"`
	ExpectedSalary *float64   `json:"expectedSalary"`
	Notes          string     `json:"notes"`
}

type NoteInput struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// ListFilter narrows the List query. Zero values mean "no constraint".
type ListFilter struct {
	Status string
	Search string
	From   *time.Time
	To     *time.Time
}
