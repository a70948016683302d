package domain

import (
	"strings"
	"time"
)

// Status is the position of a task in its lifecycle.
type Status string

const (
	StatusOpen      Status = "open"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusCompleted:
		return true
	}
	return false
}

// Task is a paid unit of work ("hustle") visible to one college.
type Task struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Amount             int64      `json:"amount"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	PostedBy           string     `json:"posted_by"`
	PostedByName       string     `json:"posted_by_name"`
	PostedByDepartment string     `json:"posted_by_department,omitempty"`
	College            string     `json:"college"`
	Status             Status     `json:"status"`
	AcceptedBy         string     `json:"accepted_by,omitempty"`
	PaymentCompleted   bool       `json:"payment_completed"`
	PaymentCompletedAt *time.Time `json:"payment_completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (t *Task) IsCompleted() bool {
	return t != nil && t.Status == StatusCompleted
}

// Matches reports whether the search term occurs in the title or description, ignoring case.
func (t *Task) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if t == nil || term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), term) ||
		strings.Contains(strings.ToLower(t.Description), term)
}

// Roles is what a viewer may see and do with a task.
type Roles struct {
	IsOwner              bool `json:"is_owner"`
	IsWorker             bool `json:"is_worker"`
	CanAccept            bool `json:"can_accept"`
	CanSeeContactDetails bool `json:"can_see_contact_details"`
}

// RolesFor derives the viewer's roles from the poster, accepter and status.
func (t *Task) RolesFor(viewerID string) Roles {
	if t == nil {
		return Roles{}
	}
	isOwner := viewerID != "" && viewerID == t.PostedBy
	isWorker := viewerID != "" && viewerID == t.AcceptedBy
	return Roles{
		IsOwner:              isOwner,
		IsWorker:             isWorker,
		CanAccept:            t.Status == StatusOpen && !isOwner,
		CanSeeContactDetails: isWorker,
	}
}

// Contact is the poster's contact card shown to the worker.
type Contact struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
}

// Owned splits a user's tasks into the ones they posted and the ones they accepted.
type Owned struct {
	Posted   []Task `json:"posted"`
	Accepted []Task `json:"accepted"`
}
