package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"broadcast-quiz-service/internal/app"
	"broadcast-quiz-service/internal/clock"
	"broadcast-quiz-service/internal/domain"
	"broadcast-quiz-service/internal/infra/memory"
	"broadcast-quiz-service/internal/schedule"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2025, 1, 28, 10, 0, 0, 0, time.UTC)

const finalStageID = 8

func sampleItems() []domain.ScheduleItem {
	return []domain.ScheduleItem{
		{
			ID: 1, Kind: domain.KindStage, Start: t0, End: t0.Add(600 * time.Second),
			Content: domain.Content{
				Text:          "Which country built the Great Wall?",
				CorrectAnswer: "china",
				CorrectText:   "Correct!",
				IncorrectText: "Wrong!",
				BonusMedia:    &domain.Media{Kind: domain.MediaPhoto, Ref: "bonus.jpg"},
			},
		},
		{
			ID: 2, Kind: domain.KindStage, Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour),
			Content: domain.Content{
				Text:          "Pick the animal",
				Media:         &domain.Media{Kind: domain.MediaPhoto, Ref: "animals.jpg"},
				Options:       []string{"Panda", "Tiger"},
				CorrectAnswer: "panda",
				CorrectText:   "Correct!",
				IncorrectText: "Wrong!",
			},
			Hint: &domain.Hint{Text: "It eats bamboo", Delay: 300 * time.Second},
		},
		{
			ID: finalStageID, Kind: domain.KindFinal, Start: t0.Add(3 * time.Hour), End: t0.Add(4 * time.Hour),
			Content: domain.Content{Text: "Final question", AckText: "Thanks, answer recorded!"},
		},
		{
			ID: 100, Kind: domain.KindPost, Start: t0.Add(30 * time.Minute),
			Content: domain.Content{Text: "Halfway there"},
		},
	}
}

type fixture struct {
	clock        *clockwork.FakeClock
	zoned        *clock.Zoned
	schedule     *schedule.Schedule
	participants *memory.ParticipantStore
	states       *memory.StateStore
	alerts       *recordingAlerter
	transport    *fakeTransport
	service      *app.QuizService
}

func newFixture(t *testing.T, items []domain.ScheduleItem) *fixture {
	t.Helper()
	sched, err := schedule.New(items, schedule.NewMemoryLedger())
	if err != nil {
		t.Fatalf("new schedule: %v", err)
	}
	fake := clockwork.NewFakeClockAt(t0.Add(-time.Minute))
	f := &fixture{
		clock:        fake,
		zoned:        clock.New(fake, time.UTC),
		schedule:     sched,
		participants: memory.NewParticipantStore(finalStageID),
		states:       memory.NewStateStore(),
		alerts:       &recordingAlerter{},
		transport:    newFakeTransport(),
	}
	status := app.NewStatusReporter(f.participants, f.zoned, zaptest.NewLogger(t), time.Minute)
	f.service = app.NewQuizService(sched, f.participants, f.states, f.alerts, f.zoned, zaptest.NewLogger(t), app.Options{
		Admins: []string{"admin"},
		Status: status,
	})
	return f
}

// at moves the fake clock forward to t0+offset.
func (f *fixture) at(offset time.Duration) {
	f.clock.Advance(t0.Add(offset).Sub(f.clock.Now()))
}

func (f *fixture) register(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.service.Start(ctx, id); err != nil {
		t.Fatalf("start %s: %v", id, err)
	}
	if _, err := f.service.HandleText(ctx, id, "Ivanov Ivan Autumn"); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *recordingAlerter) BroadcastAdminAlert(_ context.Context, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, text)
}

func (a *recordingAlerter) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.alerts...)
}

type sent struct {
	Kind    string
	Text    string
	Media   string
	Options []string
	Ref     string
}

// fakeTransport records deliveries per participant and fails on demand.
type fakeTransport struct {
	mu         sync.Mutex
	sent       map[string][]sent
	failMedia  map[string]bool
	failAll    map[string]bool
	panicFor   map[string]bool
	cleared    map[string]bool
	nextRef    int
	mediaCalls int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:      make(map[string][]sent),
		failMedia: make(map[string]bool),
		failAll:   make(map[string]bool),
		panicFor:  make(map[string]bool),
		cleared:   make(map[string]bool),
	}
}

var errBoom = errors.New("boom")

func (t *fakeTransport) check(participantID string) error {
	if t.panicFor[participantID] {
		panic("transport exploded")
	}
	if t.failAll[participantID] {
		return errBoom
	}
	return nil
}

func (t *fakeTransport) SendText(_ context.Context, participantID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(participantID); err != nil {
		return err
	}
	t.sent[participantID] = append(t.sent[participantID], sent{Kind: "text", Text: text})
	return nil
}

func (t *fakeTransport) SendMedia(_ context.Context, participantID string, media domain.Media, caption string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mediaCalls++
	if err := t.check(participantID); err != nil {
		return err
	}
	if t.failMedia[participantID] {
		return fmt.Errorf("%w: %s", domain.ErrMediaUnavailable, media.Ref)
	}
	t.sent[participantID] = append(t.sent[participantID], sent{Kind: "media", Text: caption, Media: media.Ref})
	return nil
}

func (t *fakeTransport) SendOptions(_ context.Context, participantID, prompt string, options []string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(participantID); err != nil {
		return "", err
	}
	t.nextRef++
	ref := fmt.Sprintf("ref-%d", t.nextRef)
	t.sent[participantID] = append(t.sent[participantID], sent{Kind: "options", Text: prompt, Options: options, Ref: ref})
	return ref, nil
}

func (t *fakeTransport) ClearOptions(_ context.Context, participantID, messageRef string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleared[participantID+"/"+messageRef] = true
	return nil
}

func (t *fakeTransport) messages(participantID string) []sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sent(nil), t.sent[participantID]...)
}
