package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhofer/postflow-api/internal/domain"
	"github.com/dhofer/postflow-api/internal/platform/logger"
	"github.com/dhofer/postflow-api/internal/store"
)

// stallErrorMessage is recorded on tasks that exhausted their stall
// retry budget. Clients match on this text to surface a distinct
// "worker crashed" message instead of a generic failure.
const stallErrorMessage = "task stalled: worker did not finish after repeated attempts"

// PostgresTaskStore implements the store.TaskStore interface using
// PostgreSQL. Claim and terminal writes are conditional updates keyed on
// the current status; rows affected decides who won.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore
var _ store.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = `id, user_id, task_type, status, payload, result,
	error_message, metadata, attempts, created_at, updated_at, completed_at`

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	metadata, err := json.Marshal(task.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal task metadata: %w", err)
	}
	payload := task.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	query := `
		INSERT INTO tasks
			(id, user_id, task_type, status, payload, metadata,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.UserID,
		task.Type,
		task.Status,
		[]byte(payload),
		metadata,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("task_type", string(task.Type)))
		return MapError(err)
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(
	ctx context.Context,
	id uuid.UUID,
	userID uuid.UUID,
) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`

	rows, err := s.db.QueryContext(ctx, query, id, userID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, store.ErrTaskNotFound
	}
	return tasks[0], nil
}

// ListByOwner implements store.TaskStore.ListByOwner
func (s *PostgresTaskStore) ListByOwner(
	ctx context.Context,
	userID uuid.UUID,
	pendingOnly bool,
) ([]*domain.Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if pendingOnly {
		query := `SELECT ` + taskColumns + `
			FROM tasks
			WHERE user_id = $1 AND status IN ('pending', 'running')
			ORDER BY created_at DESC`
		rows, err = s.db.QueryContext(ctx, query, userID)
	} else {
		query := `SELECT ` + taskColumns + `
			FROM tasks
			WHERE user_id = $1
			ORDER BY created_at DESC`
		rows, err = s.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// Claim implements store.TaskStore.Claim. The status guard makes this a
// single-winner gate: only one worker ever sees the updated row.
func (s *PostgresTaskStore) Claim(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		UPDATE tasks
		SET status = 'running', updated_at = $1
		WHERE id = $2 AND status = 'pending'
		RETURNING ` + taskColumns

	rows, err := s.db.QueryContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	claimed, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, store.ErrClaimLost
	}

	return claimed[0], nil
}

// Complete implements store.TaskStore.Complete
func (s *PostgresTaskStore) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := time.Now().UTC()

	query := `
		UPDATE tasks
		SET status = 'completed', result = $1, completed_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'running'
	`

	res, err := s.db.ExecContext(ctx, query, []byte(result), now, id)
	if err != nil {
		log.Error("failed to complete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return MapError(err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrClaimLost
	}

	return nil
}

// Fail implements store.TaskStore.Fail
func (s *PostgresTaskStore) Fail(ctx context.Context, id uuid.UUID, errorMsg string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := time.Now().UTC()

	query := `
		UPDATE tasks
		SET status = 'failed', error_message = $1, completed_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'running'
	`

	res, err := s.db.ExecContext(ctx, query, errorMsg, now, id)
	if err != nil {
		log.Error("failed to mark task failed",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return MapError(err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrClaimLost
	}

	return nil
}

// Heartbeat implements store.TaskStore.Heartbeat
func (s *PostgresTaskStore) Heartbeat(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tasks
		SET updated_at = $1
		WHERE id = $2 AND status = 'running'
	`

	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// ListPending implements store.TaskStore.ListPending
func (s *PostgresTaskStore) ListPending(ctx context.Context, limit int) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// RecoverStalled implements store.TaskStore.RecoverStalled. Tasks within
// the attempt budget are reset to pending and returned for requeueing;
// tasks past the budget are force-failed so clients stop polling.
func (s *PostgresTaskStore) RecoverStalled(
	ctx context.Context,
	olderThan time.Duration,
	maxAttempts int,
) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	resetQuery := `
		UPDATE tasks
		SET status = 'pending', attempts = attempts + 1, updated_at = $1
		WHERE status = 'running' AND updated_at < $2 AND attempts < $3
		RETURNING ` + taskColumns

	rows, err := s.db.QueryContext(ctx, resetQuery, now, cutoff, maxAttempts)
	if err != nil {
		return nil, MapError(err)
	}
	reset, err := collectTasks(rows)
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	failQuery := `
		UPDATE tasks
		SET status = 'failed', error_message = $1, completed_at = $2, updated_at = $2
		WHERE status = 'running' AND updated_at < $3 AND attempts >= $4
	`

	result, err := s.db.ExecContext(ctx, failQuery, stallErrorMessage, now, cutoff, maxAttempts)
	if err != nil {
		return reset, MapError(err)
	}
	failed, err := result.RowsAffected()
	if err != nil {
		return reset, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if len(reset) > 0 || failed > 0 {
		log.Info("recovered stalled tasks",
			slog.Int("reset", len(reset)),
			slog.Int64("failed", failed))
	}

	return reset, nil
}

// ListCompletedSince implements store.TaskStore.ListCompletedSince
func (s *PostgresTaskStore) ListCompletedSince(
	ctx context.Context,
	userID uuid.UUID,
	since time.Time,
) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1
			AND status IN ('completed', 'failed')
			AND completed_at > $2
		ORDER BY completed_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectTasks(rows)
}

// DeleteOlderThan implements store.TaskStore.DeleteOlderThan
func (s *PostgresTaskStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM tasks
		WHERE status IN ('completed', 'failed') AND completed_at < $1
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// collectTasks reads all task rows from a *sql.Rows.
func collectTasks(rows *sql.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task

	for rows.Next() {
		var (
			task         domain.Task
			payload      []byte
			result       []byte
			metadata     []byte
			errorMessage sql.NullString
			completedAt  sql.NullTime
		)

		err := rows.Scan(
			&task.ID, &task.UserID, &task.Type, &task.Status,
			&payload, &result, &errorMessage, &metadata,
			&task.Attempts, &task.CreatedAt, &task.UpdatedAt, &completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		task.Payload = json.RawMessage(payload)
		if result != nil {
			task.Result = json.RawMessage(result)
		}
		task.ErrorMessage = errorMessage.String
		if completedAt.Valid {
			t := completedAt.Time
			task.CompletedAt = &t
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &task.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal task metadata: %w", err)
			}
		}

		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}
