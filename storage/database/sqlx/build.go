package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/build"
)

const jobColumns = "id, platform, app_kind, config_snapshot, status, progress, log, download_url, created_at, completed_at"

type jobRow struct {
	ID             string      `db:"id"`
	Platform       string      `db:"platform"`
	AppKind        string      `db:"app_kind"`
	ConfigSnapshot []byte      `db:"config_snapshot"`
	Status         string      `db:"status"`
	Progress       int         `db:"progress"`
	Log            []byte      `db:"log"`
	DownloadURL    null.String `db:"download_url"`
	CreatedAt      time.Time   `db:"created_at"`
	CompletedAt    null.Time   `db:"completed_at"`
}

type jobRepository struct {
	exec core.DBExecutor
}

var _ build.Repository = (*jobRepository)(nil) // interface compliance check

func NewJobRepository(exec core.DBExecutor) *jobRepository {
	return &jobRepository{exec: exec}
}

func (repo jobRepository) toRow(job build.Job) (jobRow, error) {
	cfg, err := json.Marshal(job.ConfigSnapshot)
	if err != nil {
		return jobRow{}, errors.Wrap(err, "encoding config snapshot")
	}
	logs := job.Log
	if logs == nil {
		logs = []build.LogEntry{}
	}
	logJSON, err := json.Marshal(logs)
	if err != nil {
		return jobRow{}, errors.Wrap(err, "encoding job log")
	}
	return jobRow{
		ID:             job.ID,
		Platform:       string(job.Platform),
		AppKind:        string(job.AppKind),
		ConfigSnapshot: cfg,
		Status:         string(job.Status),
		Progress:       job.Progress,
		Log:            logJSON,
		DownloadURL:    null.StringFromPtr(job.DownloadURL),
		CreatedAt:      job.CreatedAt.UTC(),
		CompletedAt:    null.TimeFromPtr(job.CompletedAt),
	}, nil
}

func (repo jobRepository) fromRow(row jobRow) (build.Job, error) {
	job := build.Job{
		ID:          row.ID,
		Platform:    appconfig.Platform(row.Platform),
		AppKind:     appconfig.AppKind(row.AppKind),
		Status:      build.Status(row.Status),
		Progress:    row.Progress,
		DownloadURL: row.DownloadURL.Ptr(),
		CreatedAt:   row.CreatedAt.UTC(),
		CompletedAt: row.CompletedAt.Ptr(),
	}
	if err := json.Unmarshal(row.ConfigSnapshot, &job.ConfigSnapshot); err != nil {
		return build.Job{}, errors.Wrapf(err, "decoding config snapshot of job %s", row.ID)
	}
	if err := json.Unmarshal(row.Log, &job.Log); err != nil {
		return build.Job{}, errors.Wrapf(err, "decoding log of job %s", row.ID)
	}
	return job, nil
}

// trapNoRowsErr maps psql "no rows" err to build.ErrNotFound
func (repo jobRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return build.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo jobRepository) CreateJob(ctx context.Context, job build.Job) error {
	row, err := repo.toRow(job)
	if err != nil {
		return err
	}
	q := `INSERT INTO build_jobs (` + jobColumns + `)
		VALUES (:id, :platform, :app_kind, :config_snapshot, :status, :progress, :log, :download_url, :created_at, :completed_at)`
	if _, err = repo.exec.NamedExecContext(ctx, q, row); err != nil {
		return errors.Wrap(err, "inserting build job")
	}
	return nil
}

func (repo jobRepository) GetJob(ctx context.Context, id string) (build.Job, error) {
	var row jobRow
	q := `SELECT ` + jobColumns + ` FROM build_jobs WHERE id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return build.Job{}, repo.trapNoRowsErr(err, "selecting build job")
	}
	return repo.fromRow(row)
}

func (repo jobRepository) UpdateJob(ctx context.Context, job build.Job) error {
	row, err := repo.toRow(job)
	if err != nil {
		return err
	}
	q := `UPDATE build_jobs SET
		status = :status, progress = :progress, log = :log, download_url = :download_url, completed_at = :completed_at
		WHERE id = :id`
	res, err := repo.exec.NamedExecContext(ctx, q, row)
	if err != nil {
		return errors.Wrap(err, "updating build job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating build job")
	}
	if n == 0 {
		return build.ErrNotFound
	}
	return nil
}

func (repo jobRepository) ListJobs(ctx context.Context, filter build.Filter) ([]build.Job, error) {
	var (
		conds []string
		args  []interface{}
	)
	where := func(col string, val string) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if filter.AppKind != "" {
		where("app_kind", string(filter.AppKind))
	}
	if filter.Platform != "" {
		where("platform", string(filter.Platform))
	}
	if filter.Status != "" {
		where("status", string(filter.Status))
	}

	q := `SELECT ` + jobColumns + ` FROM build_jobs`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []jobRow
	if err := repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting build jobs")
	}
	jobs := make([]build.Job, 0, len(rows))
	for _, row := range rows {
		job, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
