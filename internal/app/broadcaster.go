package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"broadcast-quiz-service/internal/clock"
	"broadcast-quiz-service/internal/domain"
	"broadcast-quiz-service/internal/schedule"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ParticipantLister is the part of ParticipantStore the broadcaster needs.
type ParticipantLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// BroadcastOptions tunes the poll loop.
type BroadcastOptions struct {
	PollInterval time.Duration
	// LateFire broadcasts stages whose window elapsed before they were
	// detected; otherwise such stages are marked fired without a broadcast.
	LateFire bool
	// Concurrency bounds parallel deliveries within one firing.
	Concurrency int
	// Heartbeat is how often a pass logs a schedule summary. Zero disables it.
	Heartbeat time.Duration
}

// FireReport describes one firing.
type FireReport struct {
	ItemID     int
	Kind       domain.ItemKind
	Recipients int
	Failed     int
	Skipped    bool
}

// Broadcaster polls the schedule and fires each due item to every participant once.
type Broadcaster struct {
	schedule     *schedule.Schedule
	participants ParticipantLister
	deliverer    *Deliverer
	alerts       Alerter
	clock        clock.Clock
	log          *zap.Logger
	opts         BroadcastOptions

	// mu serializes passes; it makes Tick the single writer of fired flags.
	mu       sync.Mutex
	lastBeat time.Time
}

func NewBroadcaster(sched *schedule.Schedule, participants ParticipantLister, deliverer *Deliverer, alerts Alerter, clk clock.Clock, log *zap.Logger, opts BroadcastOptions) *Broadcaster {
	if alerts == nil {
		alerts = nopAlerter{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Broadcaster{
		schedule:     sched,
		participants: participants,
		deliverer:    deliverer,
		alerts:       alerts,
		clock:        clk,
		log:          log,
		opts:         opts,
	}
}

// Run polls until ctx is canceled. A pass that is in flight when ctx is
// canceled completes before Run returns.
func (b *Broadcaster) Run(ctx context.Context) error {
	var opts []gocron.SchedulerOption
	if zoned, ok := b.clock.(interface{ Base() clockwork.Clock }); ok {
		opts = append(opts, gocron.WithClock(zoned.Base()))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return fmt.Errorf("create poll scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(b.opts.PollInterval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			b.Tick(context.WithoutCancel(ctx))
		}),
		gocron.WithName("broadcast-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("register poll job: %w", err)
	}

	b.log.Info("schedule loop is starting",
		zap.Duration("poll_interval", b.opts.PollInterval),
		zap.Bool("late_fire", b.opts.LateFire),
	)
	sched.Start()

	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("stop poll scheduler: %w", err)
	}
	b.log.Info("schedule loop stopped")
	return nil
}

// Tick runs one pass: due stages first, then due posts, each ascending by id.
// A failure while firing one item leaves it unfired for the next pass.
func (b *Broadcaster) Tick(ctx context.Context) (reports []FireReport) {
	if ctx.Err() != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("schedule pass panicked", zap.Any("panic", r), zap.Stack("stack"))
			b.alerts.BroadcastAdminAlert(ctx, fmt.Sprintf("Error in schedule loop: %v", r))
		}
	}()

	now := b.clock.Now()
	b.heartbeat(now)

	for _, item := range b.schedule.DueStages(now) {
		if now.After(item.End) && !b.opts.LateFire {
			b.log.Warn("stage window elapsed before firing, skipping", zap.Int("item", item.ID), zap.Time("end", item.End))
			b.markFired(ctx, item.ID)
			reports = append(reports, FireReport{ItemID: item.ID, Kind: item.Kind, Skipped: true})
			continue
		}
		report, err := b.fire(ctx, item, stageMessages(item, false))
		if err != nil {
			b.passError(ctx, item, err)
			continue
		}
		reports = append(reports, report)
	}

	for _, item := range b.schedule.DuePosts(now) {
		report, err := b.fire(ctx, item, postMessages(item))
		if err != nil {
			b.passError(ctx, item, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports
}

func (b *Broadcaster) fire(ctx context.Context, item domain.ScheduleItem, msgs []domain.Outbound) (FireReport, error) {
	ids, err := b.participants.ListIDs(ctx)
	if err != nil {
		return FireReport{}, fmt.Errorf("list participants: %w", err)
	}
	b.log.Info("time to send item",
		zap.Int("item", item.ID),
		zap.String("kind", string(item.Kind)),
		zap.Int("recipients", len(ids)),
	)

	reply := domain.Reply{Messages: msgs}
	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(b.opts.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := b.deliverOne(ctx, id, reply); err != nil {
				failed.Add(1)
				b.log.Error("error sending item",
					zap.Int("item", item.ID),
					zap.String("participant", id),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	b.markFired(ctx, item.ID)
	report := FireReport{
		ItemID:     item.ID,
		Kind:       item.Kind,
		Recipients: len(ids),
		Failed:     int(failed.Load()),
	}
	b.log.Info("item marked as fired",
		zap.Int("item", item.ID),
		zap.Int("delivered", report.Recipients-report.Failed),
		zap.Int("failed", report.Failed),
	)
	b.alerts.BroadcastAdminAlert(ctx, fmt.Sprintf("%s published: delivered to %d of %d participants",
		item, report.Recipients-report.Failed, report.Recipients))
	return report, nil
}

func (b *Broadcaster) deliverOne(ctx context.Context, participantID string, reply domain.Reply) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panicked: %v", r)
		}
	}()
	return b.deliverer.Deliver(ctx, participantID, reply)
}

func (b *Broadcaster) markFired(ctx context.Context, id int) {
	if err := b.schedule.MarkFired(ctx, id); err != nil {
		b.log.Warn("persist fired flag", zap.Int("item", id), zap.Error(err))
	}
}

func (b *Broadcaster) passError(ctx context.Context, item domain.ScheduleItem, err error) {
	b.log.Error("schedule pass failed for item", zap.Int("item", item.ID), zap.Error(err))
	b.alerts.BroadcastAdminAlert(ctx, fmt.Sprintf("Error sending %s: %v", item, err))
}

func (b *Broadcaster) heartbeat(now time.Time) {
	if b.opts.Heartbeat <= 0 || now.Sub(b.lastBeat) < b.opts.Heartbeat {
		return
	}
	b.lastBeat = now
	pending, fired := 0, 0
	for _, item := range b.schedule.Items() {
		if item.Fired {
			fired++
		} else {
			pending++
		}
	}
	b.log.Info("scheduler check", zap.Time("now", now), zap.Int("pending", pending), zap.Int("fired", fired))
}
