// Package quiz holds the payloads exchanged with the quiz server over the broker.
package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var (
	// ErrUnknownQuestionType is returned for a question whose type is neither single nor multi select.
	ErrUnknownQuestionType = errors.New("unknown question type")
	// ErrNoOptions is returned when a response is requested for a question without options.
	ErrNoOptions = errors.New("question has no options")
)

// QuestionType selects how many options a response carries.
type QuestionType string

const (
	SingleSelect QuestionType = "single_select"
	MultiSelect  QuestionType = "multi_select"
)

// maxMultiSelect caps how many options a multi select response picks.
const maxMultiSelect = 2

// Option is one answer choice of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

// Question is the broadcast question payload.
type Question struct {
	ID        string       `json:"id"`
	Text      string       `json:"text,omitempty"`
	Type      QuestionType `json:"type"`
	Options   []Option     `json:"options"`
	Timestamp int64        `json:"timestamp,omitempty"`
}

// DecodeQuestion parses a question payload. A missing type is treated as single select,
// the server default.
func DecodeQuestion(payload []byte) (Question, error) {
	var q Question
	if err := json.Unmarshal(payload, &q); err != nil {
		return Question{}, fmt.Errorf("decode question: %w", err)
	}
	if q.ID == "" {
		return Question{}, errors.New("decode question: missing id")
	}
	switch q.Type {
	case "":
		q.Type = SingleSelect
	case SingleSelect, MultiSelect:
	default:
		return Question{}, fmt.Errorf("%w: %q", ErrUnknownQuestionType, q.Type)
	}
	return q, nil
}

// BroadcastLatency is the time between the server stamping the question and now.
// It returns false when the question carries no timestamp.
func (q Question) BroadcastLatency(now time.Time) (time.Duration, bool) {
	if q.Timestamp == 0 {
		return 0, false
	}
	return now.Sub(time.UnixMilli(q.Timestamp)), true
}

// Response is the answer published by a device.
type Response struct {
	QuestionID string   `json:"questionId"`
	Timestamp  int64    `json:"timestamp"`
	OptionID   string   `json:"optionId,omitempty"`
	OptionIDs  []string `json:"optionIds,omitempty"`
}

// BuildResponse picks options for q: one uniformly random option for single select,
// min(2, len(options)) distinct options sampled without replacement for multi select.
func BuildResponse(q Question, rng *rand.Rand, now time.Time) (Response, error) {
	if len(q.Options) == 0 {
		return Response{}, ErrNoOptions
	}
	resp := Response{QuestionID: q.ID, Timestamp: now.UnixMilli()}
	switch q.Type {
	case MultiSelect:
		n := min(maxMultiSelect, len(q.Options))
		perm := rng.Perm(len(q.Options))
		resp.OptionIDs = make([]string, 0, n)
		for _, idx := range perm[:n] {
			resp.OptionIDs = append(resp.OptionIDs, q.Options[idx].ID)
		}
	case SingleSelect, "":
		resp.OptionID = q.Options[rng.Intn(len(q.Options))].ID
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownQuestionType, q.Type)
	}
	return resp, nil
}

// Join is the session join request.
type Join struct {
	SessionID string `json:"sessionId"`
	Auth      string `json:"auth"`
}

// ClientInfo is pushed by the server on a device's info topic.
type ClientInfo struct {
	ID            string `json:"id"`
	IP            string `json:"ip,omitempty"`
	Name          string `json:"name,omitempty"`
	Authenticated bool   `json:"authenticated"`
	Authorized    bool   `json:"authorized"`
}

// DecodeClientInfo parses an info payload.
func DecodeClientInfo(payload []byte) (ClientInfo, error) {
	var info ClientInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return ClientInfo{}, fmt.Errorf("decode client info: %w", err)
	}
	return info, nil
}
