package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/siwaht/bookx/pkg/models"
)

// UpsertRenderJob inserts or updates a render job record by ID. The QC
// report is stored as JSON alongside the job row.
func (db *Database) UpsertRenderJob(job *models.RenderJob) error {
	var report interface{}
	if job.QCReport != nil {
		data, err := json.Marshal(job.QCReport)
		if err != nil {
			return fmt.Errorf("failed to encode qc report: %w", err)
		}
		report = string(data)
	}

	_, err := db.conn.Exec(`
		INSERT INTO render_jobs (id, book_id, status, progress, qc_report, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			progress=excluded.progress,
			qc_report=excluded.qc_report,
			error=excluded.error,
			completed_at=excluded.completed_at
	`, job.ID, job.BookID, string(job.Status), job.Progress, report, job.ErrorMessage, job.CreatedAt, job.CompletedAt)
	if err != nil {
		db.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to upsert render job")
	}
	return err
}

// GetRenderJob returns a persisted render job by ID.
func (db *Database) GetRenderJob(id string) (*models.RenderJob, error) {
	job, err := scanRenderJob(db.conn.QueryRow(`
		SELECT id, book_id, status, progress, qc_report, error, created_at, completed_at
		FROM render_jobs WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("render job %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return job, nil
}

// ListRenderJobs returns all persisted render jobs ordered by creation time.
func (db *Database) ListRenderJobs() ([]models.RenderJob, error) {
	rows, err := db.conn.Query(`
		SELECT id, book_id, status, progress, qc_report, error, created_at, completed_at
		FROM render_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.RenderJob
	for rows.Next() {
		job, err := scanRenderJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanRenderJob(row rowScanner) (*models.RenderJob, error) {
	var job models.RenderJob
	var status string
	var report, errMsg sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.BookID, &status, &job.Progress, &report, &errMsg, &job.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	job.Status = models.RenderStatus(status)
	if errMsg.Valid {
		job.ErrorMessage = errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if report.Valid && report.String != "" {
		var qc models.QCReport
		if err := json.Unmarshal([]byte(report.String), &qc); err == nil {
			job.QCReport = &qc
		}
	}
	return &job, nil
}
