package queue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingURL marks a task payload that decoded but carries no url.
var ErrMissingURL = errors.New("queue: task message missing url")

// Task is the payload carried on the main topic. A fresh enqueue omits
// retry_count, which decodes as zero.
type Task struct {
	URL        string `json:"url"`
	RetryCount int    `json:"retry_count,omitempty"`
}

// DeadLetter is the payload published to the dead-letter topic.
type DeadLetter struct {
	URL        string `json:"url"`
	RetryCount int    `json:"retry_count"`
	Error      string `json:"error"`
}

// DecodeTask parses a task payload. Malformed JSON and payloads without a
// url are errors; the consumer skips such messages without committing.
func DecodeTask(payload []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(payload, &t); err != nil {
		return Task{}, fmt.Errorf("queue: decode task: %w", err)
	}
	if t.URL == "" {
		return Task{}, ErrMissingURL
	}
	return t, nil
}
