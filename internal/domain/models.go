package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Participant is a registered quiz participant.
type Participant struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Group        string    `json:"group"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Answer is a single accepted submission for a stage. Correct is nil for the
// final (unscored) stage.
type Answer struct {
	ParticipantID string    `json:"participantId"`
	StageID       int       `json:"stageId"`
	Value         string    `json:"value"`
	Correct       *bool     `json:"correct,omitempty"`
	AnsweredAt    time.Time `json:"answeredAt"`
}

// Stats summarizes a participant's scored answers.
type Stats struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
}

// FinalAnswer is a final-stage submission as shown to operators.
type FinalAnswer struct {
	ParticipantID string    `json:"participantId"`
	Value         string    `json:"value"`
	AnsweredAt    time.Time `json:"answeredAt"`
}

// Status is the operator view of the campaign.
type Status struct {
	Participants int           `json:"participants"`
	FinalAnswers int           `json:"finalAnswers"`
	Recent       []FinalAnswer `json:"recent"`
	GeneratedAt  time.Time     `json:"generatedAt"`
}

// ConversationState tracks where a participant is in the registration flow.
type ConversationState string

const (
	StateNone         ConversationState = ""
	StateRegistration ConversationState = "registration"
	StateAnswering    ConversationState = "answering"
)

// Submission is an inbound answer, either free text or an option selection.
type Submission struct {
	Value      string
	FromOption bool
	// MessageRef identifies the option set the selection came from.
	MessageRef string
}

// Outbound is one message directive for the transport. Exactly one of Text,
// Media or Options drives the message; ClearRef retracts an option set.
type Outbound struct {
	Text     string   `json:"text,omitempty"`
	Media    *Media   `json:"media,omitempty"`
	Options  []string `json:"options,omitempty"`
	ClearRef string   `json:"clearRef,omitempty"`
}

// Reply is the ordered set of directives produced for a participant.
type Reply struct {
	Messages []Outbound
}

// Add appends text messages to the reply.
func (r *Reply) Add(texts ...string) {
	for _, t := range texts {
		r.Messages = append(r.Messages, Outbound{Text: t})
	}
}

// Append appends raw directives to the reply.
func (r *Reply) Append(msgs ...Outbound) {
	r.Messages = append(r.Messages, msgs...)
}

// Texts returns the text of every message, media captions included.
func (r Reply) Texts() []string {
	out := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Text != "" {
			out = append(out, m.Text)
		}
	}
	return out
}

// NormalizeAnswer trims and case-folds a submitted or configured answer.
func NormalizeAnswer(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}
