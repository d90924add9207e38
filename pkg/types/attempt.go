package types

import "time"

// Attempt records one gate evaluation of a task phase
type Attempt struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	Issue      int       `json:"issue"`
	Result     Result    `json:"result"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is how long the attempt took.
func (a Attempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}
