package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"broadcast-quiz-service/internal/domain"
)

// FiredLedger persists fired item ids across restarts.
type FiredLedger interface {
	MarkFired(ctx context.Context, id int) error
	FiredIDs(ctx context.Context) ([]int, error)
	Clear(ctx context.Context) error
}

// Schedule is the in-memory table of stages and posts. Items are immutable
// after construction; only the one-shot fired flags change.
type Schedule struct {
	mu     sync.RWMutex
	items  []domain.ScheduleItem // ascending id
	index  map[int]int
	fired  map[int]bool
	ledger FiredLedger
}

// New builds a schedule from validated items. The ledger may be nil.
func New(items []domain.ScheduleItem, ledger FiredLedger) (*Schedule, error) {
	sorted := make([]domain.ScheduleItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	index := make(map[int]int, len(sorted))
	for i, item := range sorted {
		if _, dup := index[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate item id %d", domain.ErrInvalidSchedule, item.ID)
		}
		sorted[i].Fired = false
		index[item.ID] = i
	}
	return &Schedule{
		items:  sorted,
		index:  index,
		fired:  make(map[int]bool),
		ledger: ledger,
	}, nil
}

// ActiveStage returns the lowest-id stage whose window contains now.
func (s *Schedule) ActiveStage(now time.Time) (domain.ScheduleItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.Contains(now) {
			return s.withFlagLocked(item), true
		}
	}
	return domain.ScheduleItem{}, false
}

// HintStage returns the lowest-id stage carrying a hint whose window contains now.
func (s *Schedule) HintStage(now time.Time) (domain.ScheduleItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.Hint != nil && item.Contains(now) {
			return s.withFlagLocked(item), true
		}
	}
	return domain.ScheduleItem{}, false
}

// HintedStages returns every stage carrying a hint, ascending id.
func (s *Schedule) HintedStages() []domain.ScheduleItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduleItem
	for _, item := range s.items {
		if item.Hint != nil && item.IsStage() {
			out = append(out, s.withFlagLocked(item))
		}
	}
	return out
}

// DueStages returns unfired stages whose window has opened, ascending id.
// Stages whose window already elapsed are included; the caller decides
// whether to catch them up.
func (s *Schedule) DueStages(now time.Time) []domain.ScheduleItem {
	return s.due(now, func(item domain.ScheduleItem) bool { return item.IsStage() })
}

// DuePosts returns unfired posts whose publish time has passed, ascending id.
func (s *Schedule) DuePosts(now time.Time) []domain.ScheduleItem {
	return s.due(now, func(item domain.ScheduleItem) bool { return item.Kind == domain.KindPost })
}

func (s *Schedule) due(now time.Time, match func(domain.ScheduleItem) bool) []domain.ScheduleItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduleItem
	for _, item := range s.items {
		if !match(item) || s.fired[item.ID] || now.Before(item.Start) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// MarkFired sets the one-shot flag. Marking an already fired item is a no-op.
// The in-memory flag is set even when the ledger write fails; the ledger
// error is returned for logging.
func (s *Schedule) MarkFired(ctx context.Context, id int) error {
	s.mu.Lock()
	if _, ok := s.index[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", domain.ErrItemNotFound, id)
	}
	if s.fired[id] {
		s.mu.Unlock()
		return nil
	}
	s.fired[id] = true
	s.mu.Unlock()

	if s.ledger == nil {
		return nil
	}
	if err := s.ledger.MarkFired(ctx, id); err != nil {
		return fmt.Errorf("persist fired %d: %w", id, err)
	}
	return nil
}

// IsFired reports the item's flag.
func (s *Schedule) IsFired(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fired[id]
}

// NextStageAfter returns the next stage with an id strictly greater than id.
func (s *Schedule) NextStageAfter(id int) (domain.ScheduleItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID > id && item.IsStage() {
			return s.withFlagLocked(item), true
		}
	}
	return domain.ScheduleItem{}, false
}

// Item looks up an item by id.
func (s *Schedule) Item(id int) (domain.ScheduleItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.ScheduleItem{}, false
	}
	return s.withFlagLocked(s.items[i]), true
}

// Items returns a snapshot of all items with their flags.
func (s *Schedule) Items() []domain.ScheduleItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScheduleItem, len(s.items))
	for i, item := range s.items {
		out[i] = s.withFlagLocked(item)
	}
	return out
}

// FinalStageID returns the id of the unscored final stage, if any.
func (s *Schedule) FinalStageID() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.Kind == domain.KindFinal {
			return item.ID, true
		}
	}
	return 0, false
}

// Reset clears the in-memory flags and, when clearLedger is set, the
// persisted ones too. It is meant for process start only.
func (s *Schedule) Reset(ctx context.Context, clearLedger bool) error {
	s.mu.Lock()
	s.fired = make(map[int]bool)
	s.mu.Unlock()

	if clearLedger && s.ledger != nil {
		return s.ledger.Clear(ctx)
	}
	return nil
}

// Restore loads persisted flags from the ledger and returns how many items
// were restored. Unknown ids are ignored.
func (s *Schedule) Restore(ctx context.Context) (int, error) {
	if s.ledger == nil {
		return 0, nil
	}
	ids, err := s.ledger.FiredIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load fired ids: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	restored := 0
	for _, id := range ids {
		if _, ok := s.index[id]; ok && !s.fired[id] {
			s.fired[id] = true
			restored++
		}
	}
	return restored, nil
}

func (s *Schedule) withFlagLocked(item domain.ScheduleItem) domain.ScheduleItem {
	item.Fired = s.fired[item.ID]
	return item
}

// MemoryLedger keeps fired ids in process memory.
type MemoryLedger struct {
	mu  sync.Mutex
	ids map[int]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{ids: make(map[int]struct{})}
}

func (l *MemoryLedger) MarkFired(_ context.Context, id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[id] = struct{}{}
	return nil
}

func (l *MemoryLedger) FiredIDs(_ context.Context) ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, 0, len(l.ids))
	for id := range l.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}

func (l *MemoryLedger) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = make(map[int]struct{})
	return nil
}
