package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"broadcast-quiz-service/internal/app"
	"broadcast-quiz-service/internal/clock"
	"broadcast-quiz-service/internal/domain"
	"broadcast-quiz-service/internal/schedule"
	"go.uber.org/zap/zaptest"
)

func newBroadcaster(t *testing.T, f *fixture, lister app.ParticipantLister, opts app.BroadcastOptions) *app.Broadcaster {
	t.Helper()
	if lister == nil {
		lister = f.participants
	}
	log := zaptest.NewLogger(t)
	return app.NewBroadcaster(f.schedule, lister, app.NewDeliverer(f.transport, log), f.alerts, f.zoned, log, opts)
}

func TestTickFiresStageOnce(t *testing.T) {
	f := newFixture(t, sampleItems())
	f.register(t, "u1")
	f.register(t, "u2")
	b := newBroadcaster(t, f, nil, app.BroadcastOptions{LateFire: true})

	if reports := b.Tick(context.Background()); len(reports) != 0 {
		t.Fatalf("nothing is due yet, got %+v", reports)
	}

	f.at(time.Second)
	reports := b.Tick(context.Background())
	if len(reports) != 1 || reports[0].ItemID != 1 || reports[0].Recipients != 2 || reports[0].Failed != 0 {
		t.Fatalf("unexpected reports %+v", reports)
	}
	if !f.schedule.IsFired(1) {
		t.Fatalf("stage 1 must be fired")
	}
	for _, id := range []string{"u1", "u2"} {
		msgs := f.transport.messages(id)
		if len(msgs) != 1 || msgs[0].Text != "Which country built the Great Wall?" {
			t.Fatalf("unexpected delivery to %s: %+v", id, msgs)
		}
	}

	f.at(2 * time.Second)
	if reports := b.Tick(context.Background()); len(reports) != 0 {
		t.Fatalf("stage must not fire twice, got %+v", reports)
	}
	if msgs := f.transport.messages("u1"); len(msgs) != 1 {
		t.Fatalf("expected a single delivery, got %+v", msgs)
	}

	alerts := f.alerts.all()
	if last := alerts[len(alerts)-1]; !strings.Contains(last, "stage 1 published: delivered to 2 of 2") {
		t.Fatalf("expected publication alert, got %q", last)
	}
}

func stagesOnly() []domain.ScheduleItem {
	var out []domain.ScheduleItem
	for _, item := range sampleItems() {
		if item.IsStage() {
			out = append(out, item)
		}
	}
	return out
}

func TestTickStageDeliveryIncludesOptionsAndHint(t *testing.T) {
	f := newFixture(t, stagesOnly())
	f.register(t, "u1")
	b := newBroadcaster(t, f, nil, app.BroadcastOptions{})

	_ = f.schedule.MarkFired(context.Background(), 1)
	f.at(time.Hour)
	b.Tick(context.Background())

	msgs := f.transport.messages("u1")
	var kinds []string
	for _, m := range msgs {
		kinds = append(kinds, m.Kind)
	}
	if strings.Join(kinds, ",") != "media,options,text" {
		t.Fatalf("unexpected delivery sequence %v", kinds)
	}
	if msgs[0].Media != "animals.jpg" || msgs[0].Text != "Pick the animal" {
		t.Fatalf("expected media with caption, got %+v", msgs[0])
	}
	if !strings.Contains(msgs[2].Text, "5 minutes") {
		t.Fatalf("expected hint notice, got %q", msgs[2].Text)
	}
}

func TestConcurrentTicksFirePostOnce(t *testing.T) {
	items := []domain.ScheduleItem{
		{ID: 100, Kind: domain.KindPost, Start: t0, Content: domain.Content{Text: "Halfway there"}},
	}
	f := newFixture(t, items)
	for _, id := range []string{"u1", "u2", "u3"} {
		f.register(t, id)
	}
	b := newBroadcaster(t, f, nil, app.BroadcastOptions{Concurrency: 2})
	f.at(time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports := b.Tick(context.Background())
			mu.Lock()
			fired += len(reports)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if fired != 1 {
		t.Fatalf("expected the post to fire exactly once, got %d", fired)
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		msgs := f.transport.messages(id)
		if len(msgs) != 1 || msgs[0].Kind != "text" || msgs[0].Text != "Halfway there" {
			t.Fatalf("expected one text-only delivery to %s, got %+v", id, msgs)
		}
	}
}

func TestMediaFailureDoesNotStopBatch(t *testing.T) {
	f := newFixture(t, stagesOnly())
	_ = f.schedule.MarkFired(context.Background(), 1)
	for _, id := range []string{"u1", "u2", "u3"} {
		f.register(t, id)
	}
	f.transport.failAll["u1"] = true
	f.transport.failMedia["u2"] = true
	b := newBroadcaster(t, f, nil, app.BroadcastOptions{Concurrency: 1})

	f.at(time.Hour)
	reports := b.Tick(context.Background())
	if len(reports) != 1 {
		t.Fatalf("expected one firing, got %+v", reports)
	}
	if reports[0].Recipients != 3 || reports[0].Failed != 1 {
		t.Fatalf("unexpected report %+v", reports[0])
	}
	if !f.schedule.IsFired(2) {
		t.Fatalf("stage must be marked fired despite failures")
	}

	msgs := f.transport.messages("u2")
	if len(msgs) != 3 || msgs[0].Kind != "text" || msgs[0].Text != "Pick the animal" {
		t.Fatalf("expected caption fallback for u2, got %+v", msgs)
	}
	if msgs := f.transport.messages("u3"); len(msgs) != 3 || msgs[0].Kind != "media" {
		t.Fatalf("expected full delivery for u3, got %+v", msgs)
	}
}

func TestDeliveryPanicIsContained(t *testing.T) {
	f := newFixture(t, sampleItems())
	f.register(t, "u1")
	f.register(t, "u2")
	f.transport.panicFor["u1"] = true
	b := newBroadcaster(t, f, nil, app.BroadcastOptions{})

	f.at(time.Second)
	reports := b.Tick(context.Background())
	if len(reports) != 1 || reports[0].Failed != 1 {
		t.Fatalf("unexpected reports %+v", reports)
	}
	if msgs := f.transport.messages("u2"); len(msgs) != 1 {
		t.Fatalf("expected delivery to u2, got %+v", msgs)
	}
}

type failingLister struct {
	mu    sync.Mutex
	fails int
	inner app.ParticipantLister
}

func (l *failingLister) ListIDs(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fails > 0 {
		l.fails--
		return nil, errors.New("connection refused")
	}
	return l.inner.ListIDs(ctx)
}

func TestStoreFailureLeavesItemUnfired(t *testing.T) {
	f := newFixture(t, sampleItems())
	f.register(t, "u1")
	lister := &failingLister{fails: 1, inner: f.participants}
	b := newBroadcaster(t, f, lister, app.BroadcastOptions{})

	f.at(time.Second)
	if reports := b.Tick(context.Background()); len(reports) != 0 {
		t.Fatalf("expected no firing, got %+v", reports)
	}
	if f.schedule.IsFired(1) {
		t.Fatalf("stage must stay unfired after a store failure")
	}
	alerts := f.alerts.all()
	if last := alerts[len(alerts)-1]; !strings.Contains(last, "Error sending stage 1") {
		t.Fatalf("expected error alert, got %q", last)
	}

	f.at(2 * time.Second)
	if reports := b.Tick(context.Background()); len(reports) != 1 {
		t.Fatalf("expected retry on next pass, got %+v", reports)
	}
	if !f.schedule.IsFired(1) {
		t.Fatalf("stage must be fired after retry")
	}
}

func TestLateStageSkippedWithoutLateFire(t *testing.T) {
	f := newFixture(t, sampleItems())
	f.register(t, "u1")
	b := newBroadcaster(t, f, nil, app.BroadcastOptions{LateFire: false})

	f.at(15 * time.Minute)
	reports := b.Tick(context.Background())
	if len(reports) != 1 || !reports[0].Skipped || reports[0].ItemID != 1 {
		t.Fatalf("expected skipped stage 1, got %+v", reports)
	}
	if !f.schedule.IsFired(1) {
		t.Fatalf("skipped stage must be marked fired")
	}
	if msgs := f.transport.messages("u1"); len(msgs) != 0 {
		t.Fatalf("skipped stage must not be delivered, got %+v", msgs)
	}
}

func TestLateStageFiredWithLateFire(t *testing.T) {
	f := newFixture(t, sampleItems())
	f.register(t, "u1")
	b := newBroadcaster(t, f, nil, app.BroadcastOptions{LateFire: true})

	f.at(45 * time.Minute)
	reports := b.Tick(context.Background())
	if len(reports) != 2 || reports[0].ItemID != 1 || reports[1].ItemID != 100 {
		t.Fatalf("expected stage 1 then post 100, got %+v", reports)
	}
	if msgs := f.transport.messages("u1"); len(msgs) != 2 {
		t.Fatalf("expected stage and post deliveries, got %+v", msgs)
	}
}

func TestFiredFlagsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	ledger := schedule.NewMemoryLedger()
	sched, err := schedule.New(sampleItems(), ledger)
	if err != nil {
		t.Fatalf("new schedule: %v", err)
	}
	f := newFixture(t, sampleItems())
	f.schedule = sched
	f.register(t, "u1")
	b := newBroadcaster(t, f, nil, app.BroadcastOptions{})
	f.at(time.Second)
	b.Tick(ctx)

	restarted, _ := schedule.New(sampleItems(), ledger)
	if err := restarted.Reset(ctx, false); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, err := restarted.Restore(ctx); err != nil || n != 1 {
		t.Fatalf("expected one restored flag, got %d (%v)", n, err)
	}
	if due := restarted.DueStages(f.zoned.Now()); len(due) != 0 {
		t.Fatalf("restored stage must not be due again, got %+v", due)
	}
}

func TestRunPollsUntilCanceled(t *testing.T) {
	now := time.Now()
	items := []domain.ScheduleItem{
		{ID: 100, Kind: domain.KindPost, Start: now.Add(-time.Minute), Content: domain.Content{Text: "Welcome aboard"}},
	}
	f := newFixture(t, items)
	f.register(t, "u1")
	log := zaptest.NewLogger(t)
	b := app.NewBroadcaster(f.schedule, f.participants, app.NewDeliverer(f.transport, log), f.alerts, clock.Real(time.UTC), log,
		app.BroadcastOptions{PollInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for !f.schedule.IsFired(100) {
		select {
		case <-deadline:
			t.Fatalf("post was not fired by the poll loop")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
	if msgs := f.transport.messages("u1"); len(msgs) != 1 {
		t.Fatalf("expected a single delivery, got %+v", msgs)
	}
}
