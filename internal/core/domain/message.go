package domain

import "time"

// Message is a short status notice shown to the user.
type Message struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	JobID     JobID     `json:"job_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
