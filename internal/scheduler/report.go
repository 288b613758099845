package scheduler

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

type TaskResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"-"`
}

func (t TaskResult) MarshalJSON() ([]byte, error) {
	type alias TaskResult
	return json.Marshal(struct {
		alias
		DurationMs int64 `json:"durationMs"`
	}{alias(t), t.Duration.Milliseconds()})
}

// Report describes one completed maintenance pass.
type Report struct {
	ID         string        `json:"id"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Duration   time.Duration `json:"-"`
	MemoryUsed int64         `json:"memoryUsed"`
	DBQueries  int64         `json:"dbQueries"`
	Tasks      []TaskResult  `json:"tasks"`
}

func (r Report) MarshalJSON() ([]byte, error) {
	type alias Report
	return json.Marshal(struct {
		alias
		Duration        string  `json:"duration"`
		DurationSeconds float64 `json:"durationSeconds"`
	}{alias(r), r.Duration.Truncate(time.Millisecond).String(), r.Duration.Seconds()})
}

// Failed counts tasks that did not complete.
func (r Report) Failed() int {
	n := 0
	for _, t := range r.Tasks {
		if t.Status == StatusFailed {
			n++
		}
	}
	return n
}

func (r Report) Task(name string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskResult{}, false
}
