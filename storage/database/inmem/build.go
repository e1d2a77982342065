package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core/build"
)

var errJobExists = errors.New("build job already exists")

type jobRepository struct {
	db *jobTable
}

var _ build.Repository = (*jobRepository)(nil) // interface compliance check

func NewJobRepository(db *DB) build.Repository {
	return &jobRepository{db: db.job}
}

func (repo *jobRepository) CreateJob(_ context.Context, job build.Job) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[job.ID]; ok {
		return errors.Wrap(errJobExists, job.ID)
	}
	job = job.Clone()
	repo.db.table[job.ID] = &job
	return nil
}

func (repo *jobRepository) GetJob(_ context.Context, id string) (build.Job, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if job, ok := repo.db.table[id]; ok {
		return job.Clone(), nil
	}
	return build.Job{}, build.ErrNotFound
}

func (repo *jobRepository) UpdateJob(_ context.Context, job build.Job) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[job.ID]; !ok {
		return build.ErrNotFound
	}
	job = job.Clone()
	repo.db.table[job.ID] = &job
	return nil
}

func (repo *jobRepository) ListJobs(_ context.Context, filter build.Filter) ([]build.Job, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	jobs := make([]build.Job, 0)
	for _, job := range repo.db.table {
		if filter.Match(*job) {
			jobs = append(jobs, job.Clone())
		}
	}
	// newest first, id breaks ties
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}
