package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"broadcast-quiz-service/internal/clock"
	"broadcast-quiz-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const statusTimeLayout = "2006-01-02 15:04:05"

// StatusReporter builds the operator status and caches it with a TTL so
// bursts of admin requests hit the store once.
type StatusReporter struct {
	participants ParticipantStore
	clock        clock.Clock
	log          *zap.Logger
	ttl          time.Duration
	sf           singleflight.Group

	mu        sync.RWMutex
	rnd       *rand.Rand
	cached    domain.Status
	expiresAt time.Time
}

func NewStatusReporter(participants ParticipantStore, clk clock.Clock, log *zap.Logger, ttl time.Duration) *StatusReporter {
	return &StatusReporter{
		participants: participants,
		clock:        clk,
		log:          log,
		ttl:          ttl,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Status returns the participant count, final-answer count and the most
// recent limit final answers. Store read failures degrade to zero counts and
// are not cached.
func (r *StatusReporter) Status(ctx context.Context, limit int) (domain.Status, error) {
	now := r.clock.Now()

	r.mu.RLock()
	if r.expiresAt.After(now) {
		status := r.cached
		r.mu.RUnlock()
		return truncate(status, limit), nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("status", func() (interface{}, error) {
		r.mu.RLock()
		if r.expiresAt.After(now) {
			status := r.cached
			r.mu.RUnlock()
			return status, nil
		}
		r.mu.RUnlock()

		// shared by every caller in the flight
		status, complete := r.load(context.WithoutCancel(ctx), now)
		if complete {
			r.mu.Lock()
			r.cached = status
			r.expiresAt = now.Add(r.ttlWithJitterLocked())
			r.mu.Unlock()
		}
		return status, nil
	})
	if err != nil {
		return domain.Status{}, err
	}
	return truncate(result.(domain.Status), limit), nil
}

func (r *StatusReporter) load(ctx context.Context, now time.Time) (domain.Status, bool) {
	complete := true
	status := domain.Status{GeneratedAt: now}

	ids, err := r.participants.ListIDs(ctx)
	if err != nil {
		r.log.Error("status: list participants", zap.Error(err))
		complete = false
	}
	status.Participants = len(ids)

	finals, err := r.participants.FinalAnswers(ctx)
	if err != nil {
		r.log.Error("status: list final answers", zap.Error(err))
		complete = false
	}
	status.FinalAnswers = len(finals)
	status.Recent = finals
	return status, complete
}

// ttlWithJitterLocked must be called with mu held.
func (r *StatusReporter) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func truncate(status domain.Status, limit int) domain.Status {
	if limit >= 0 && len(status.Recent) > limit {
		recent := make([]domain.FinalAnswer, limit)
		copy(recent, status.Recent[:limit])
		status.Recent = recent
	}
	return status
}

// FormatStatus renders the status as a chat message.
func FormatStatus(status domain.Status, clk clock.Clock) string {
	loc := clk.Now().Location()
	var b strings.Builder
	fmt.Fprintf(&b, "Quiz statistics:\n\nParticipants: %d\nFinal answers: %d\n\nLatest %d final answers:",
		status.Participants, status.FinalAnswers, len(status.Recent))
	for _, a := range status.Recent {
		fmt.Fprintf(&b, "\n- Participant %s: %s (%s)", a.ParticipantID, a.Value, a.AnsweredAt.In(loc).Format(statusTimeLayout))
	}
	return b.String()
}
