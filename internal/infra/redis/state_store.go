package redis

import (
	"context"
	"errors"
	"time"

	"broadcast-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// StateStore keeps conversation states in Redis so a restart does not send
// registered participants back to /start. Reads and writes both restart the
// key's ttl, so keys expire after ttl of inactivity.
type StateStore struct {
	client   *redis.Client
	campaign string
	ttl      time.Duration
}

func NewStateStore(client *redis.Client, campaign string, ttl time.Duration) *StateStore {
	return &StateStore{client: client, campaign: campaign, ttl: ttl}
}

func (s *StateStore) Get(ctx context.Context, participantID string) (domain.ConversationState, error) {
	val, err := s.client.GetEx(ctx, s.key(participantID), s.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return domain.StateNone, nil
	}
	if err != nil {
		return domain.StateNone, err
	}
	return domain.ConversationState(val), nil
}

func (s *StateStore) Set(ctx context.Context, participantID string, state domain.ConversationState) error {
	if state == domain.StateNone {
		return s.client.Del(ctx, s.key(participantID)).Err()
	}
	return s.client.Set(ctx, s.key(participantID), string(state), s.ttl).Err()
}

func (s *StateStore) key(participantID string) string {
	return "quiz:" + s.campaign + ":state:" + participantID
}
