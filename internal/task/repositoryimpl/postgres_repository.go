package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/pkg/cerr"
)

// PostgresRepository stores tasks in postgres. It mirrors the sqlite
// implementation statement for statement; task numbers come straight from the
// task_number_seq default instead of a sequence table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, t *task.Task) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO tasks (
		id, title, description, tags, status, priority, archived,
		due_date, estimated_hours, actual_hours, creator_id, assignee_id, parent_id,
		tracking_active, tracking_start_time, tracking_time_seconds, saved_as_template,
		due_reminder_sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING task_number`,
		t.ID, t.Title, t.Description, tagsOrEmpty(t.Tags), t.Status, t.Priority, t.Archived,
		utcOrNil(t.DueDate), t.EstimatedHours, t.ActualHours, t.CreatorID,
		nullString(t.AssigneeID), nullString(t.ParentID),
		t.TrackingActive, utcOrNil(t.TrackingStartTime), t.TrackingTimeSeconds, t.SavedAsTemplate,
		utcOrNil(t.DueReminderSentAt), t.CreatedAt.UTC(), t.UpdatedAt.UTC()).Scan(&t.TaskNumber)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert task: %w", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanPostgresTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read task: %w", err))
	}
	return t, nil
}

func (r *PostgresRepository) List(ctx context.Context, f task.Filter) ([]*task.Task, int, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Assignee != "" {
		args = append(args, f.Assignee)
		where = append(where, fmt.Sprintf("assignee_id = $%d", len(args)))
	}
	if f.ParentID != "" {
		args = append(args, f.ParentID)
		where = append(where, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`+clause, args...).Scan(&total); err != nil {
		return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count tasks: %w", err))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + clause + ` ORDER BY task_number DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, f.Limit, f.Offset)
	}
	tasks, err := r.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status task.Status, requester string) ([]*task.Task, error) {
	// BACKLOG is a shared pool visible to everyone; every other status lists
	// only tasks the requester created or is assigned to.
	if status == task.StatusBacklog {
		return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
			WHERE status = $1 ORDER BY task_number DESC`, status)
	}
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE status = $1 AND (creator_id = $2 OR assignee_id = $2)
		ORDER BY task_number DESC`, status, requester)
}

func (r *PostgresRepository) ListSubtasks(ctx context.Context, parentID string) ([]*task.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE parent_id = $1 ORDER BY task_number ASC`, parentID)
}

func (r *PostgresRepository) ListDue(ctx context.Context, until time.Time) ([]*task.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE due_date IS NOT NULL AND due_date <= $1
		AND due_reminder_sent_at IS NULL
		AND status NOT IN ($2, $3)
		ORDER BY due_date ASC`, until.UTC(), task.StatusDone, task.StatusArchived)
}

func (r *PostgresRepository) Search(ctx context.Context, query string) ([]*task.Task, error) {
	number := int64(-1)
	if n, err := strconv.ParseInt(query, 10, 64); err == nil {
		number = n
	}
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE strpos(lower(title), lower($1)) > 0
		OR strpos(lower(description), lower($1)) > 0
		OR $1 = ANY(tags)
		OR task_number = $2
		ORDER BY task_number ASC`, query, number)
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count tasks: %w", err))
	}
	return n, nil
}

func (r *PostgresRepository) Counts(ctx context.Context, id string) (task.Counts, error) {
	var c task.Counts
	err := r.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM tasks WHERE parent_id = t.id),
		(SELECT COUNT(*) FROM comments WHERE task_id = t.id),
		(SELECT COUNT(*) FROM attachments WHERE task_id = t.id)
		FROM tasks t WHERE t.id = $1`, id).Scan(&c.Subtasks, &c.Comments, &c.Attachments)
	if errors.Is(err, pgx.ErrNoRows) {
		return task.Counts{}, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	if err != nil {
		return task.Counts{}, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count task children: %w", err))
	}
	return c, nil
}

func (r *PostgresRepository) Update(ctx context.Context, t *task.Task) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET
		title = $1, description = $2, tags = $3, status = $4, priority = $5, archived = $6,
		due_date = $7, estimated_hours = $8, actual_hours = $9, assignee_id = $10,
		saved_as_template = $11, due_reminder_sent_at = $12, updated_at = $13
		WHERE id = $14`,
		t.Title, t.Description, tagsOrEmpty(t.Tags), t.Status, t.Priority, t.Archived,
		utcOrNil(t.DueDate), t.EstimatedHours, t.ActualHours, nullString(t.AssigneeID),
		t.SavedAsTemplate, utcOrNil(t.DueReminderSentAt), t.UpdatedAt.UTC(), t.ID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update task: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete task: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *PostgresRepository) BeginTracking(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET
		tracking_active = TRUE, tracking_start_time = $1, updated_at = $2
		WHERE id = $3 AND tracking_active = FALSE`, at.UTC(), at.UTC(), id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to begin tracking: %w", err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.TrackingActive {
		return cerr.NewError(cerr.FailedPrecondition, "time tracking is already running", task.ErrAlreadyTracking)
	}
	return cerr.NewError(cerr.Aborted, "task was modified concurrently", task.ErrConcurrentUpdate)
}

func (r *PostgresRepository) FinishTracking(ctx context.Context, id string, startedAt time.Time, addSeconds int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET
		tracking_active = FALSE, tracking_start_time = NULL,
		tracking_time_seconds = tracking_time_seconds + $1, updated_at = $2
		WHERE id = $3 AND tracking_active = TRUE AND tracking_start_time = $4`,
		addSeconds, at.UTC(), id, startedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to finish tracking: %w", err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.TrackingActive {
		return cerr.NewError(cerr.FailedPrecondition, "time tracking is not running", task.ErrNotTracking)
	}
	return cerr.NewError(cerr.Aborted, "task was modified concurrently", task.ErrConcurrentUpdate)
}

func (r *PostgresRepository) SetParent(ctx context.Context, childID, parentID string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Under READ COMMITTED the guarded UPDATE alone is not enough: two
	// reciprocal attaches each lock only their own child row, the cycle
	// subquery runs against each statement's snapshot, and both can commit a
	// two-node loop. Lock the child and every ancestor of the new parent
	// first; the loser blocks here and its re-checked UPDATE below then sees
	// the winner's committed link.
	if _, err := tx.Exec(ctx, `WITH RECURSIVE chain(id) AS (
			SELECT $1::text
			UNION
			SELECT t.parent_id FROM tasks t JOIN chain c ON t.id = c.id
			WHERE t.parent_id IS NOT NULL
		)
		SELECT id FROM tasks WHERE id = $2 OR id IN (SELECT id FROM chain)
		ORDER BY id
		FOR UPDATE`, parentID, childID); err != nil {
		if isDeadlock(err) {
			return cerr.NewError(cerr.Aborted, "task was modified concurrently", task.ErrConcurrentUpdate)
		}
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to lock ancestor chain: %w", err))
	}

	tag, err := tx.Exec(ctx, `UPDATE tasks SET parent_id = $1, updated_at = $2
		WHERE id = $3
		AND EXISTS (SELECT 1 FROM tasks WHERE id = $1)
		AND NOT EXISTS (
			WITH RECURSIVE chain(id) AS (
				SELECT $1::text
				UNION
				SELECT t.parent_id FROM tasks t JOIN chain c ON t.id = c.id
				WHERE t.parent_id IS NOT NULL
			)
			SELECT 1 FROM chain WHERE id = $3
		)`, parentID, at.UTC(), childID)
	if err != nil {
		if isDeadlock(err) {
			return cerr.NewError(cerr.Aborted, "task was modified concurrently", task.ErrConcurrentUpdate)
		}
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to set parent: %w", err))
	}
	if tag.RowsAffected() > 0 {
		if err := tx.Commit(ctx); err != nil {
			return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to commit: %w", err))
		}
		return nil
	}
	if _, err := r.Get(ctx, childID); err != nil {
		return err
	}
	if _, err := r.Get(ctx, parentID); err != nil {
		return err
	}
	return cerr.NewError(cerr.FailedPrecondition, "attaching would create a cycle", task.ErrHierarchyCycle)
}

func (r *PostgresRepository) ClearParent(ctx context.Context, childID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET parent_id = NULL, updated_at = $1 WHERE id = $2`, at.UTC(), childID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to clear parent: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *PostgresRepository) MarkDueReminded(ctx context.Context, id string, due time.Time, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET due_reminder_sent_at = $1, updated_at = $2
		WHERE id = $3 AND due_date = $4 AND due_reminder_sent_at IS NULL`,
		at.UTC(), at.UTC(), id, due.UTC())
	if err != nil {
		return false, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to mark due reminded: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to query tasks: %w", err))
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanPostgresTask(rows)
		if err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to scan task: %w", err))
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to iterate tasks: %w", err))
	}
	return tasks, nil
}

func scanPostgresTask(row rowScanner) (*task.Task, error) {
	var (
		t          task.Task
		tags       []string
		assigneeID *string
		parentID   *string
	)
	err := row.Scan(&t.ID, &t.TaskNumber, &t.Title, &t.Description, &tags, &t.Status, &t.Priority, &t.Archived,
		&t.DueDate, &t.EstimatedHours, &t.ActualHours, &t.CreatorID, &assigneeID, &parentID,
		&t.TrackingActive, &t.TrackingStartTime, &t.TrackingTimeSeconds, &t.SavedAsTemplate,
		&t.DueReminderSentAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Tags = tagsOrEmpty(tags)
	if assigneeID != nil {
		t.AssigneeID = *assigneeID
	}
	if parentID != nil {
		t.ParentID = *parentID
	}
	t.DueDate = utcPtr(t.DueDate)
	t.TrackingStartTime = utcPtr(t.TrackingStartTime)
	t.DueReminderSentAt = utcPtr(t.DueReminderSentAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// isDeadlock reports whether postgres aborted the statement as the loser of a
// deadlock (class 40P01), which surfaces when two attaches lock overlapping
// ancestor chains in opposite order.
func isDeadlock(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40P01"
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
