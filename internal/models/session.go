package models

import "time"

// Session is the persisted record of an interactive workflow run.
type Session struct {
	ID             string    `json:"id"`
	Stage          StateType `json:"stage"`
	IterationCount int       `json:"iteration_count"`
	Reviewer       string    `json:"reviewer,omitempty"` // messaging recipient that reviews this session
	State          []byte    `json:"-"`                  // JSON encoded run state
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
