package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// FiredLedger persists fired schedule item ids in a Redis set per campaign:
// SADD quiz:{campaign}:fired {itemID}
type FiredLedger struct {
	client   *redis.Client
	campaign string
}

func NewFiredLedger(client *redis.Client, campaign string) *FiredLedger {
	return &FiredLedger{client: client, campaign: campaign}
}

func (l *FiredLedger) MarkFired(ctx context.Context, id int) error {
	return l.client.SAdd(ctx, l.key(), strconv.Itoa(id)).Err()
}

func (l *FiredLedger) FiredIDs(ctx context.Context) ([]int, error) {
	members, err := l.client.SMembers(ctx, l.key()).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("fired ledger member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (l *FiredLedger) Clear(ctx context.Context) error {
	return l.client.Del(ctx, l.key()).Err()
}

func (l *FiredLedger) key() string {
	return "quiz:" + l.campaign + ":fired"
}
