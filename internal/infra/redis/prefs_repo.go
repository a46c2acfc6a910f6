package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.PrefsRepository = (*PrefsRepo)(nil)

// PrefsRepo persists the per-requester study profile (group, goal) and the
// last submitted job linkage. No TTL: these survive until overwritten.
type PrefsRepo struct {
	client *redClient
}

func NewPrefsRepo(client *redClient) *PrefsRepo {
	return &PrefsRepo{client: client}
}

func (p *PrefsRepo) prefsKey(requesterID int64) string {
	return fmt.Sprintf("user_prefs:%d", requesterID)
}

func (p *PrefsRepo) lastJobKey(requesterID int64) string {
	return fmt.Sprintf("last_job:%d", requesterID)
}

func (p *PrefsRepo) SavePrefs(ctx context.Context, requesterID int64, prefs *repository.UserPrefs) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, p.prefsKey(requesterID), data, 0)
}

func (p *PrefsRepo) GetPrefs(ctx context.Context, requesterID int64) (*repository.UserPrefs, error) {
	data, err := p.client.Get(ctx, p.prefsKey(requesterID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &repository.UserPrefs{}, nil
		}
		return nil, err
	}
	var prefs repository.UserPrefs
	if err := json.Unmarshal([]byte(data), &prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (p *PrefsRepo) SetLastJob(ctx context.Context, requesterID int64, jobID string) error {
	return p.client.Set(ctx, p.lastJobKey(requesterID), jobID, 0)
}

func (p *PrefsRepo) GetLastJob(ctx context.Context, requesterID int64) (string, error) {
	jobID, err := p.client.Get(ctx, p.lastJobKey(requesterID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return jobID, nil
}

func (p *PrefsRepo) ClearLastJob(ctx context.Context, requesterID int64) error {
	return p.client.Del(ctx, p.lastJobKey(requesterID))
}
