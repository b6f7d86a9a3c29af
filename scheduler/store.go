package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"shorts-bot/types"
)

type hashClient interface {
	HSet(ctx context.Context, key, field string, value []byte) error
	HDel(ctx context.Context, key string, fields ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisStore keeps pending jobs as JSON values of one redis hash, keyed by job id.
type RedisStore struct {
	client hashClient
	key    string
	logger zerolog.Logger
}

func NewRedisStore(client hashClient, key string, logger zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, logger: logger}
}

func (r *RedisStore) Save(ctx context.Context, job types.ScheduledJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return r.client.HSet(ctx, r.key, job.ID, data)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.HDel(ctx, r.key, id)
}

// List decodes every stored job. Undecodable entries are logged and dropped.
func (r *RedisStore) List(ctx context.Context) ([]types.ScheduledJob, error) {
	raw, err := r.client.HGetAll(ctx, r.key)
	if err != nil {
		return nil, err
	}
	jobs := make([]types.ScheduledJob, 0, len(raw))
	for id, v := range raw {
		var job types.ScheduledJob
		if err := json.Unmarshal([]byte(v), &job); err != nil {
			r.logger.Warn().Err(err).Str("job_id", id).Msg("dropping undecodable job")
			_ = r.client.HDel(ctx, r.key, id)
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FireAt.Before(jobs[j].FireAt) })
	return jobs, nil
}
