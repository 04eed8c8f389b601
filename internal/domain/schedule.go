package domain

import (
	"fmt"
	"time"
)

// ItemKind distinguishes scored stages, the final stage and posts.
type ItemKind string

const (
	KindStage ItemKind = "stage"
	KindFinal ItemKind = "final"
	KindPost  ItemKind = "post"
)

// MediaKind is the type of an attached media file.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// Media references a photo or video attached to a message.
type Media struct {
	Kind MediaKind `json:"kind"`
	Ref  string    `json:"ref"`
}

// Hint is released for a stage once Delay has elapsed since the stage start.
type Hint struct {
	Text  string
	Delay time.Duration
}

// Content is the payload of a schedule item.
type Content struct {
	Text    string
	Media   *Media
	Options []string
	// CorrectAnswer is stored normalized.
	CorrectAnswer string
	CorrectText   string
	IncorrectText string
	BonusMedia    *Media
	AckText       string
}

// ScheduleItem is a stage or post with its activation window. Posts only use
// Start as their publish instant.
type ScheduleItem struct {
	ID      int
	Kind    ItemKind
	Start   time.Time
	End     time.Time
	Content Content
	Hint    *Hint
	Fired   bool
}

// IsStage reports whether the item accepts answers.
func (i ScheduleItem) IsStage() bool {
	return i.Kind == KindStage || i.Kind == KindFinal
}

// Scored reports whether answers to the item are checked for correctness.
func (i ScheduleItem) Scored() bool {
	return i.Kind == KindStage
}

// Contains reports whether now lies inside the closed window [Start, End].
func (i ScheduleItem) Contains(now time.Time) bool {
	return i.IsStage() && !now.Before(i.Start) && !now.After(i.End)
}

// HasOption reports whether value is one of the item's options, compared
// after normalization.
func (i ScheduleItem) HasOption(value string) bool {
	v := NormalizeAnswer(value)
	for _, o := range i.Content.Options {
		if NormalizeAnswer(o) == v {
			return true
		}
	}
	return false
}

func (i ScheduleItem) String() string {
	return fmt.Sprintf("%s %d", i.Kind, i.ID)
}
