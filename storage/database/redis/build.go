// Package redisrepos stores build jobs in redis: one JSON value per job plus a
// sorted set indexing job ids by creation time.
package redisrepos

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/build"
)

var errJobExists = errors.New("build job already exists")

// ids fetched per MGET while listing
const listBatch = 100

// Open connects to redis and checks the connection.
func Open(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

type jobRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ build.Repository = (*jobRepository)(nil) // interface compliance check

func NewJobRepository(rdb redis.UniversalClient, prefix string) *jobRepository {
	return &jobRepository{rdb: rdb, prefix: prefix}
}

func (repo jobRepository) jobKey(id string) string { return repo.prefix + "job:" + id }
func (repo jobRepository) indexKey() string        { return repo.prefix + "jobs" }

func (repo jobRepository) CreateJob(ctx context.Context, job build.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encoding build job")
	}
	ok, err := repo.rdb.SetNX(ctx, repo.jobKey(job.ID), data, 0).Result()
	if err != nil {
		return errors.Wrap(err, "inserting build job")
	}
	if !ok {
		return errors.Wrap(errJobExists, job.ID)
	}
	err = repo.rdb.ZAdd(ctx, repo.indexKey(), redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}).Err()
	if err != nil {
		return errors.Wrap(err, "indexing build job")
	}
	return nil
}

func (repo jobRepository) GetJob(ctx context.Context, id string) (build.Job, error) {
	data, err := repo.rdb.Get(ctx, repo.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return build.Job{}, build.ErrNotFound
		}
		return build.Job{}, errors.Wrap(err, "selecting build job")
	}
	return decode(data)
}

func (repo jobRepository) UpdateJob(ctx context.Context, job build.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encoding build job")
	}
	ok, err := repo.rdb.SetXX(ctx, repo.jobKey(job.ID), data, redis.KeepTTL).Result()
	if err != nil {
		return errors.Wrap(err, "updating build job")
	}
	if !ok {
		return build.ErrNotFound
	}
	return nil
}

func (repo jobRepository) ListJobs(ctx context.Context, filter build.Filter) ([]build.Job, error) {
	// newest first; equal scores come out by id descending
	ids, err := repo.rdb.ZRevRange(ctx, repo.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing build jobs")
	}

	jobs := make([]build.Job, 0)
	for start := 0; start < len(ids); start += listBatch {
		end := start + listBatch
		if end > len(ids) {
			end = len(ids)
		}
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, repo.jobKey(id))
		}
		vals, err := repo.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, errors.Wrap(err, "selecting build jobs")
		}
		for _, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue // indexed but gone
			}
			job, err := decode([]byte(s))
			if err != nil {
				return nil, err
			}
			if !filter.Match(job) {
				continue
			}
			jobs = append(jobs, job)
			if filter.Limit > 0 && len(jobs) == filter.Limit {
				return jobs, nil
			}
		}
	}
	return jobs, nil
}

func decode(data []byte) (build.Job, error) {
	var job build.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return build.Job{}, errors.Wrap(err, "decoding build job")
	}
	return job, nil
}
