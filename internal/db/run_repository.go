package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fenrik/clickseq/internal/models"
)

// Run repository errors.
var (
	ErrRunNotFound = errors.New("run not found")
	ErrInvalidRun  = errors.New("invalid run record")
)

// RunRepository handles run history persistence.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run record. Missing IDs and start times are filled
// in; the status defaults to running.
func (r *RunRepository) Create(ctx context.Context, record *models.RunRecord) error {
	if record.SequenceName == "" {
		return ErrInvalidRun
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}
	if record.Status == "" {
		record.Status = models.RunStatusRunning
	}

	var metadataJSON *string
	if record.Metadata != nil {
		data, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		s := string(data)
		metadataJSON = &s
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, sequence_name, status, started_at, ended_at,
			cycles_completed, clicks, items_clicked, keys_pressed,
			trigger_timeouts, restarts, error, metadata_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.SequenceName,
		string(record.Status),
		record.StartedAt.UTC().Format(time.RFC3339),
		nullTime(record.EndedAt),
		record.CyclesCompleted,
		record.Clicks,
		record.ItemsClicked,
		record.KeysPressed,
		record.TriggerTimeouts,
		record.Restarts,
		nullString(record.Error),
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Update rewrites a run's mutable fields: status, end time, counters, and
// error.
func (r *RunRepository) Update(ctx context.Context, record *models.RunRecord) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, ended_at = ?,
			cycles_completed = ?, clicks = ?, items_clicked = ?,
			keys_pressed = ?, trigger_timeouts = ?, restarts = ?,
			error = ?
		WHERE id = ?
	`,
		string(record.Status),
		nullTime(record.EndedAt),
		record.CyclesCompleted,
		record.Clicks,
		record.ItemsClicked,
		record.KeysPressed,
		record.TriggerTimeouts,
		record.Restarts,
		nullString(record.Error),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, sequence_name, status, started_at, ended_at,
			cycles_completed, clicks, items_clicked, keys_pressed,
			trigger_timeouts, restarts, error, metadata_json
		FROM runs WHERE id = ?
	`, id)

	return r.scanRun(row)
}

// Query retrieves runs matching the given filters, newest first.
func (r *RunRepository) Query(ctx context.Context, q models.RunQuery) ([]*models.RunRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, sequence_name, status, started_at, ended_at,
		cycles_completed, clicks, items_clicked, keys_pressed,
		trigger_timeouts, restarts, error, metadata_json
		FROM runs WHERE 1=1`
	args := []any{}

	if q.SequenceName != nil {
		query += ` AND sequence_name = ?`
		args = append(args, *q.SequenceName)
	}
	if q.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*q.Status))
	}
	if q.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}
	if q.Until != nil {
		query += ` AND started_at < ?`
		args = append(args, q.Until.UTC().Format(time.RFC3339))
	}

	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []*models.RunRecord
	for rows.Next() {
		record, err := r.scanRunFromRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return records, nil
}

// Delete removes a run by ID.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// DeleteOlderThan removes runs started before the given time.
func (r *RunRepository) DeleteOlderThan(ctx context.Context, before time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id IN (
			SELECT id FROM runs WHERE started_at < ? ORDER BY started_at LIMIT ?
		)
	`, before.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return count, nil
}

// Summarize returns aggregated counters across runs, optionally filtered to
// one sequence and a time window.
func (r *RunRepository) Summarize(ctx context.Context, sequenceName *string, since, until *time.Time) (*models.RunSummary, error) {
	query := `SELECT
		COUNT(*) as runs,
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) as completed,
		COALESCE(SUM(cycles_completed), 0) as cycles_completed,
		COALESCE(SUM(clicks), 0) as clicks,
		COALESCE(SUM(items_clicked), 0) as items_clicked,
		COALESCE(SUM(keys_pressed), 0) as keys_pressed,
		COALESCE(SUM(trigger_timeouts), 0) as trigger_timeouts,
		COALESCE(SUM(restarts), 0) as restarts
		FROM runs WHERE 1=1`
	args := []any{}

	if sequenceName != nil {
		query += ` AND sequence_name = ?`
		args = append(args, *sequenceName)
	}
	if since != nil {
		query += ` AND started_at >= ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	if until != nil {
		query += ` AND started_at < ?`
		args = append(args, until.UTC().Format(time.RFC3339))
	}

	var summary models.RunSummary
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.Runs,
		&summary.Completed,
		&summary.CyclesCompleted,
		&summary.Clicks,
		&summary.ItemsClicked,
		&summary.KeysPressed,
		&summary.TriggerTimeouts,
		&summary.Restarts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}

	if sequenceName != nil {
		summary.SequenceName = *sequenceName
	}
	if since != nil {
		summary.PeriodStart = *since
	}
	if until != nil {
		summary.PeriodEnd = *until
	}

	return &summary, nil
}

func (r *RunRepository) scanRun(row *sql.Row) (*models.RunRecord, error) {
	var record models.RunRecord
	var status, startedAt string
	var endedAt, errMsg, metadataJSON sql.NullString

	err := row.Scan(
		&record.ID,
		&record.SequenceName,
		&status,
		&startedAt,
		&endedAt,
		&record.CyclesCompleted,
		&record.Clicks,
		&record.ItemsClicked,
		&record.KeysPressed,
		&record.TriggerTimeouts,
		&record.Restarts,
		&errMsg,
		&metadataJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	r.fillRun(&record, status, startedAt, endedAt, errMsg, metadataJSON)
	return &record, nil
}

func (r *RunRepository) scanRunFromRows(rows *sql.Rows) (*models.RunRecord, error) {
	var record models.RunRecord
	var status, startedAt string
	var endedAt, errMsg, metadataJSON sql.NullString

	if err := rows.Scan(
		&record.ID,
		&record.SequenceName,
		&status,
		&startedAt,
		&endedAt,
		&record.CyclesCompleted,
		&record.Clicks,
		&record.ItemsClicked,
		&record.KeysPressed,
		&record.TriggerTimeouts,
		&record.Restarts,
		&errMsg,
		&metadataJSON,
	); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	r.fillRun(&record, status, startedAt, endedAt, errMsg, metadataJSON)
	return &record, nil
}

func (r *RunRepository) fillRun(record *models.RunRecord, status, startedAt string, endedAt, errMsg, metadataJSON sql.NullString) {
	record.Status = models.RunStatus(status)
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		record.StartedAt = t
	}
	if endedAt.Valid {
		if t, err := time.Parse(time.RFC3339, endedAt.String); err == nil {
			record.EndedAt = t
		}
	}
	if errMsg.Valid {
		record.Error = errMsg.String
	}
	if metadataJSON.Valid {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			r.db.logger.Warn().Err(err).Str("run_id", record.ID).Msg("failed to parse run metadata")
		}
	}
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
