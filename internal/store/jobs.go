package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reelforge/internal/pricing"
	"reelforge/internal/production"
)

const jobColumns = "id, strategy_id, status, mode, min_successful_segments, estimated_cost, narration_asset, narration_provider, narration_duration, assembled_asset, final_asset, remote_ref, final_duration, final_width, final_height, final_size_bytes, music_track, music_volume, cost_narration, cost_segments, cost_total, error_message, created_at, updated_at"

var _ production.JobStore = (*Store)(nil)

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job *production.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("create job: id is required")
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO production_jobs (
            id, strategy_id, status, mode, min_successful_segments, estimated_cost,
            music_track, music_volume, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.StrategyID,
		job.Status,
		job.Mode,
		job.MinSuccessful,
		toMicros(job.EstimatedCost),
		nullableString(job.MusicTrack),
		nullableFloat(job.MusicVolume),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// SaveJob writes the mutable job columns. strategy_id is never updated.
func (s *Store) SaveJob(ctx context.Context, job *production.Job) error {
	if _, err := s.execWithRetry(ctx, updateJobSQL, updateJobArgs(job)...); err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

// RecordTransition persists the job row together with one status event.
func (s *Store) RecordTransition(ctx context.Context, job *production.Job, ev production.Event) error {
	ctx = ensureContext(ctx)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, updateJobSQL, updateJobArgs(job)...); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_events (job_id, seq, from_status, to_status, message, at) VALUES (?, ?, ?, ?, ?, ?)`,
			job.ID, ev.Seq, ev.From, ev.To, nullableString(ev.Message), formatTime(ev.At),
		); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record transition %s -> %s for job %s: %w", ev.From, ev.To, job.ID, err)
	}
	return nil
}

const updateJobSQL = `UPDATE production_jobs SET
    status = ?, min_successful_segments = ?, estimated_cost = ?,
    narration_asset = ?, narration_provider = ?, narration_duration = ?,
    assembled_asset = ?, final_asset = ?, remote_ref = ?,
    final_duration = ?, final_width = ?, final_height = ?, final_size_bytes = ?,
    music_track = ?, music_volume = ?,
    cost_narration = ?, cost_segments = ?, cost_total = ?,
    error_message = ?, updated_at = ?
    WHERE id = ?`

func updateJobArgs(job *production.Job) []any {
	return []any{
		job.Status,
		job.MinSuccessful,
		toMicros(job.EstimatedCost),
		nullableString(job.NarrationAsset),
		nullableString(job.NarrationProvider),
		nullableFloat(job.NarrationDuration),
		nullableString(job.AssembledAsset),
		nullableString(job.FinalAsset),
		nullableString(job.RemoteRef),
		nullableFloat(job.FinalDuration),
		nullableInt(int64(job.FinalWidth)),
		nullableInt(int64(job.FinalHeight)),
		nullableInt(job.FinalSizeBytes),
		nullableString(job.MusicTrack),
		nullableFloat(job.MusicVolume),
		toMicros(job.CostNarration),
		toMicros(job.CostSegments),
		toMicros(job.CostTotal),
		nullableString(job.ErrorMessage),
		formatTime(job.UpdatedAt),
		job.ID,
	}
}

// SaveSegments replaces the segment outcomes stored for jobID.
func (s *Store) SaveSegments(ctx context.Context, jobID string, segments []production.SegmentRecord) error {
	ctx = ensureContext(ctx)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_segments WHERE job_id = ?`, jobID); err != nil {
			return err
		}
		for _, seg := range segments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO job_segments (job_id, idx, prompt, result_asset, failed, reason, cost) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				jobID, seg.Index, seg.Prompt, nullableString(seg.Asset), boolInt(seg.Failed), nullableString(seg.Reason), toMicros(seg.Cost),
			); err != nil {
				return fmt.Errorf("insert segment %d: %w", seg.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save segments for job %s: %w", jobID, err)
	}
	return nil
}

// GetJob loads a job with its segments and events.
func (s *Store) GetJob(ctx context.Context, id string) (*production.Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM production_jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get job", fmt.Sprintf("job %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if job.Segments, err = s.jobSegments(ctx, id); err != nil {
		return nil, err
	}
	if job.Events, err = s.jobEvents(ctx, id); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns up to limit jobs, newest first, without segments or events.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*production.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+jobColumns+" FROM production_jobs ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []*production.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CountJobs returns the number of job rows.
func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM production_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

func (s *Store) jobSegments(ctx context.Context, id string) ([]production.SegmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, prompt, result_asset, failed, reason, cost FROM job_segments WHERE job_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("read segments for job %s: %w", id, err)
	}
	defer rows.Close()
	var out []production.SegmentRecord
	for rows.Next() {
		var (
			seg    production.SegmentRecord
			asset  sql.NullString
			failed int64
			reason sql.NullString
			cost   int64
		)
		if err := rows.Scan(&seg.Index, &seg.Prompt, &asset, &failed, &reason, &cost); err != nil {
			return nil, err
		}
		seg.Asset = asset.String
		seg.Failed = failed != 0
		seg.Reason = reason.String
		seg.Cost = fromMicros(cost)
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (s *Store) jobEvents(ctx context.Context, id string) ([]production.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, from_status, to_status, message, at FROM job_events WHERE job_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("read events for job %s: %w", id, err)
	}
	defer rows.Close()
	var out []production.Event
	for rows.Next() {
		var (
			ev      production.Event
			from    string
			to      string
			message sql.NullString
			atRaw   string
		)
		if err := rows.Scan(&ev.Seq, &from, &to, &message, &atRaw); err != nil {
			return nil, err
		}
		ev.From = production.Status(from)
		ev.To = production.Status(to)
		ev.Message = message.String
		if at, err := parseTimeString(atRaw); err == nil {
			ev.At = at
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*production.Job, error) {
	var (
		id                string
		strategyID        int64
		status            string
		mode              string
		minSuccessful     int64
		estimatedCost     int64
		narrationAsset    sql.NullString
		narrationProvider sql.NullString
		narrationDuration sql.NullFloat64
		assembledAsset    sql.NullString
		finalAsset        sql.NullString
		remoteRef         sql.NullString
		finalDuration     sql.NullFloat64
		finalWidth        sql.NullInt64
		finalHeight       sql.NullInt64
		finalSize         sql.NullInt64
		musicTrack        sql.NullString
		musicVolume       sql.NullFloat64
		costNarration     int64
		costSegments      int64
		costTotal         int64
		errorMessage      sql.NullString
		createdRaw        sql.NullString
		updatedRaw        sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&strategyID,
		&status,
		&mode,
		&minSuccessful,
		&estimatedCost,
		&narrationAsset,
		&narrationProvider,
		&narrationDuration,
		&assembledAsset,
		&finalAsset,
		&remoteRef,
		&finalDuration,
		&finalWidth,
		&finalHeight,
		&finalSize,
		&musicTrack,
		&musicVolume,
		&costNarration,
		&costSegments,
		&costTotal,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	jobStatus, ok := production.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("job %s has unknown status %q", id, status)
	}
	job := &production.Job{
		ID:                id,
		StrategyID:        strategyID,
		Status:            jobStatus,
		Mode:              pricing.Mode(mode),
		MinSuccessful:     int(minSuccessful),
		EstimatedCost:     fromMicros(estimatedCost),
		NarrationAsset:    narrationAsset.String,
		NarrationProvider: narrationProvider.String,
		NarrationDuration: narrationDuration.Float64,
		AssembledAsset:    assembledAsset.String,
		FinalAsset:        finalAsset.String,
		RemoteRef:         remoteRef.String,
		FinalDuration:     finalDuration.Float64,
		FinalWidth:        int(finalWidth.Int64),
		FinalHeight:       int(finalHeight.Int64),
		FinalSizeBytes:    finalSize.Int64,
		MusicTrack:        musicTrack.String,
		MusicVolume:       musicVolume.Float64,
		CostNarration:     fromMicros(costNarration),
		CostSegments:      fromMicros(costSegments),
		CostTotal:         fromMicros(costTotal),
		ErrorMessage:      errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
