package memory

import (
	"context"
	"sort"
	"sync"

	"broadcast-quiz-service/internal/domain"
)

type answerKey struct {
	participantID string
	stageID       int
}

// ParticipantStore is an in-memory implementation of app.ParticipantStore.
type ParticipantStore struct {
	finalStageID int

	mu           sync.RWMutex
	participants map[string]domain.Participant
	order        []string
	answers      map[answerKey]domain.Answer
	finals       []domain.Answer
}

// NewParticipantStore creates a store; answers to finalStageID are kept out
// of per-participant stats and listed by FinalAnswers. Zero means no final stage.
func NewParticipantStore(finalStageID int) *ParticipantStore {
	return &ParticipantStore{
		finalStageID: finalStageID,
		participants: make(map[string]domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
	}
}

func (s *ParticipantStore) Register(_ context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.participants[p.ID] = p
	return nil
}

func (s *ParticipantStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// Participant returns a registered participant.
func (s *ParticipantStore) Participant(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *ParticipantStore) HasAnswered(_ context.Context, participantID string, stageID int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answers[answerKey{participantID, stageID}]
	return ok, nil
}

func (s *ParticipantStore) SaveAnswer(_ context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{a.ParticipantID, a.StageID}
	if _, ok := s.answers[key]; ok {
		return domain.ErrAlreadyAnswered
	}
	s.answers[key] = a
	if s.finalStageID != 0 && a.StageID == s.finalStageID {
		s.finals = append(s.finals, a)
	}
	return nil
}

func (s *ParticipantStore) Stats(_ context.Context, participantID string) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats domain.Stats
	for key, a := range s.answers {
		if key.participantID != participantID || key.stageID == s.finalStageID {
			continue
		}
		stats.Answered++
		if a.Correct != nil && *a.Correct {
			stats.Correct++
		}
	}
	return stats, nil
}

func (s *ParticipantStore) FinalAnswers(_ context.Context) ([]domain.FinalAnswer, error) {
	s.mu.RLock()
	out := make([]domain.FinalAnswer, 0, len(s.finals))
	for i := len(s.finals) - 1; i >= 0; i-- {
		a := s.finals[i]
		out = append(out, domain.FinalAnswer{ParticipantID: a.ParticipantID, Value: a.Value, AnsweredAt: a.AnsweredAt})
	}
	s.mu.RUnlock()

	// most recent first; later inserts win ties
	sort.SliceStable(out, func(i, j int) bool { return out[i].AnsweredAt.After(out[j].AnsweredAt) })
	return out, nil
}
