package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo manages per-requester conversational state in Redis. State
// expires on its own so an abandoned dialogue cannot linger.
type StateRepo struct {
	client *redClient
	ttl    time.Duration
}

func NewStateRepo(client *redClient, ttl time.Duration) *StateRepo {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StateRepo{client: client, ttl: ttl}
}

func (s *StateRepo) stateKey(requesterID int64) string {
	return fmt.Sprintf("conv_state:%d", requesterID)
}

func (s *StateRepo) SetState(ctx context.Context, requesterID int64, state *repository.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(requesterID), data, s.ttl)
}

func (s *StateRepo) GetState(ctx context.Context, requesterID int64) (*repository.ConversationState, error) {
	data, err := s.client.Get(ctx, s.stateKey(requesterID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var state repository.ConversationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *StateRepo) ClearState(ctx context.Context, requesterID int64) error {
	return s.client.Del(ctx, s.stateKey(requesterID))
}
