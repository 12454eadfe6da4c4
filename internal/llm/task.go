// Package llm implements the LM task/result contract and the worker pool
// that drains ai:tasks against a generic (OpenAI- or Ollama-flavored) chat
// endpoint.
package llm

import (
	"encoding/json"
	"time"
)

// Task is appended to the task stream by the moderation engine when a
// message passes deterministic checks but ai_enabled is set. TaskID doubles as the stream entry's job_id field.
type Task struct {
	TaskID      string    `json:"task_id"`
	ChatID      int64     `json:"chat_id"`
	MessageID   int       `json:"message_id"`
	UserID      int64     `json:"user_id"`
	MessageText string    `json:"message_text"`
	PromptIDs   []string  `json:"prompt_ids,omitempty"`
	Thresholds  []float64 `json:"thresholds,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Extra marshals the whole task, message_text included, into the
// extra_json stream field, so the worker and any downstream consumer
// can recover chat/message/user context that the generic chat endpoint
// itself never sees.
func (t Task) Extra() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Result is appended to the result stream once a worker completes a task.
// Ok/Output/Error are the only fields the generic one-shot chat contract can
// actually populate — spam-classification fields (IsSpam/Score/
// MatchedPromptID) are not produced by this worker pool.
type Result struct {
	TaskID      string
	Ok          bool
	Output      string
	Error       string
	ElapsedMS   int64
	CompletedAt time.Time
}
