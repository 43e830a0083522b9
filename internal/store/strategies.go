package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reelforge/internal/production"
	"reelforge/internal/services"
)

const strategyColumns = "id, title, script, scene_prompts, music_track, music_volume, status, created_at, updated_at"

var _ production.StrategySource = (*Store)(nil)

// CreateStrategy inserts a draft strategy and returns it with its ID.
func (s *Store) CreateStrategy(ctx context.Context, st production.Strategy) (*production.Strategy, error) {
	st.Title = strings.TrimSpace(st.Title)
	st.Script = strings.TrimSpace(st.Script)
	prompts := make([]string, 0, len(st.ScenePrompts))
	for _, p := range st.ScenePrompts {
		if p = strings.TrimSpace(p); p != "" {
			prompts = append(prompts, p)
		}
	}
	switch {
	case st.Title == "":
		return nil, services.Wrap(services.ErrValidation, "store", "create strategy", "title is required", nil)
	case st.Script == "":
		return nil, services.Wrap(services.ErrValidation, "store", "create strategy", "script is required", nil)
	case len(prompts) == 0:
		return nil, services.Wrap(services.ErrValidation, "store", "create strategy", "at least one scene prompt is required", nil)
	}
	encoded, err := json.Marshal(prompts)
	if err != nil {
		return nil, fmt.Errorf("encode scene prompts: %w", err)
	}

	now := time.Now().UTC()
	ts := formatTime(now)
	res, err := s.execWithRetry(ctx,
		`INSERT INTO strategies (title, script, scene_prompts, music_track, music_volume, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Title, st.Script, string(encoded), nullableString(st.MusicTrack), st.MusicVolume,
		production.StrategyDraft, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert strategy: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("strategy id: %w", err)
	}
	st.ID = id
	st.ScenePrompts = prompts
	st.Status = production.StrategyDraft
	st.CreatedAt = now
	st.UpdatedAt = now
	return &st, nil
}

// GetStrategy loads a strategy by ID regardless of status.
func (s *Store) GetStrategy(ctx context.Context, id int64) (*production.Strategy, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+strategyColumns+" FROM strategies WHERE id = ?", id)
	st, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get strategy", fmt.Sprintf("strategy %d", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy %d: %w", id, err)
	}
	return st, nil
}

// ListStrategies returns strategies oldest first, filtered by status when given.
func (s *Store) ListStrategies(ctx context.Context, statuses ...production.StrategyStatus) ([]*production.Strategy, error) {
	query := "SELECT " + strategyColumns + " FROM strategies"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()
	var out []*production.Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ApproveStrategy moves a draft strategy to approved.
func (s *Store) ApproveStrategy(ctx context.Context, id int64) error {
	return s.moveStrategy(ctx, id, production.StrategyApproved, production.StrategyDraft)
}

// GetApprovedStrategy loads id and requires it to be approved.
func (s *Store) GetApprovedStrategy(ctx context.Context, id int64) (*production.Strategy, error) {
	st, err := s.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Status != production.StrategyApproved {
		return nil, services.Wrap(services.ErrValidation, "store", "get approved strategy",
			fmt.Sprintf("strategy %d is %s, not approved", id, st.Status), nil)
	}
	return st, nil
}

// NextApprovedStrategy returns the oldest approved strategy, or nil when none is waiting.
func (s *Store) NextApprovedStrategy(ctx context.Context) (*production.Strategy, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+strategyColumns+" FROM strategies WHERE status = ? ORDER BY created_at, id LIMIT 1",
		production.StrategyApproved)
	st, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next approved strategy: %w", err)
	}
	return st, nil
}

// MarkInProduction claims an approved strategy for a job.
func (s *Store) MarkInProduction(ctx context.Context, id int64) error {
	return s.moveStrategy(ctx, id, production.StrategyInProduction, production.StrategyApproved)
}

// MarkProduced records that a strategy's job completed.
func (s *Store) MarkProduced(ctx context.Context, id int64) error {
	return s.moveStrategy(ctx, id, production.StrategyProduced, production.StrategyInProduction)
}

// RevertToDraft returns a strategy whose job failed to draft.
func (s *Store) RevertToDraft(ctx context.Context, id int64) error {
	return s.moveStrategy(ctx, id, production.StrategyDraft, production.StrategyInProduction, production.StrategyApproved)
}

func (s *Store) moveStrategy(ctx context.Context, id int64, to production.StrategyStatus, from ...production.StrategyStatus) error {
	placeholders := make([]string, len(from))
	args := []any{to, formatTime(time.Now()), id}
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, st)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE strategies SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("set strategy %d %s: %w", id, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	current, err := s.GetStrategy(ctx, id)
	if err != nil {
		return err
	}
	return services.Wrap(services.ErrValidation, "store", "set strategy status",
		fmt.Sprintf("strategy %d is %s, cannot become %s", id, current.Status, to), nil)
}

func scanStrategy(scanner interface{ Scan(dest ...any) error }) (*production.Strategy, error) {
	var (
		id          int64
		title       string
		script      string
		prompts     sql.NullString
		musicTrack  sql.NullString
		musicVolume sql.NullFloat64
		status      string
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &title, &script, &prompts, &musicTrack, &musicVolume, &status, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	st := &production.Strategy{
		ID:         id,
		Title:      title,
		Script:     script,
		MusicTrack: musicTrack.String,
		Status:     production.StrategyStatus(status),
	}
	if musicVolume.Valid {
		st.MusicVolume = &musicVolume.Float64
	}
	if prompts.Valid && prompts.String != "" {
		if err := json.Unmarshal([]byte(prompts.String), &st.ScenePrompts); err != nil {
			return nil, fmt.Errorf("decode scene prompts for strategy %d: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		st.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		st.UpdatedAt = updated
	}
	return st, nil
}
