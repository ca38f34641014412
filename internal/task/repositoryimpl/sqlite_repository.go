package repositoryimpl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taskloom/taskloom/internal/task"
	"github.com/taskloom/taskloom/pkg/cerr"
)

const taskColumns = `id, task_number, title, description, tags, status, priority, archived,
	due_date, estimated_hours, actual_hours, creator_id, assignee_id, parent_id,
	tracking_active, tracking_start_time, tracking_time_seconds, saved_as_template,
	due_reminder_sent_at, created_at, updated_at`

// SQLiteRepository stores tasks in sqlite. Conditional writes re-read the row
// after a zero-row update to tell domain failures apart from lost races.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, t *task.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to encode tags: %w", err))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	// The task number comes from the AUTOINCREMENT rowid of task_numbers,
	// which sqlite never hands out twice, so numbers survive task deletion.
	res, err := tx.ExecContext(ctx, `INSERT INTO task_numbers DEFAULT VALUES`)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to allocate task number: %w", err))
	}
	number, err := res.LastInsertId()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read task number: %w", err))
	}
	t.TaskNumber = number

	_, err = tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TaskNumber, t.Title, t.Description, tags, t.Status, t.Priority, t.Archived,
		utcOrNil(t.DueDate), t.EstimatedHours, t.ActualHours, t.CreatorID,
		nullString(t.AssigneeID), nullString(t.ParentID),
		t.TrackingActive, utcOrNil(t.TrackingStartTime), t.TrackingTimeSeconds, t.SavedAsTemplate,
		utcOrNil(t.DueReminderSentAt), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to insert task: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanSQLiteTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read task: %w", err))
	}
	return t, nil
}

func (r *SQLiteRepository) List(ctx context.Context, f task.Filter) ([]*task.Task, int, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Assignee != "" {
		where = append(where, "assignee_id = ?")
		args = append(args, f.Assignee)
	}
	if f.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, f.ParentID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+clause, args...).Scan(&total); err != nil {
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

func (r *SQLiteRepository) ListByStatus(ctx context.Context, status task.Status, requester string) ([]*task.Task, error) {
	// BACKLOG is a shared pool visible to everyone; every other status lists
	// only tasks the requester created or is assigned to.
	if status == task.StatusBacklog {
		return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
			WHERE status = ? ORDER BY task_number DESC`, status)
	}
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE status = ? AND (creator_id = ? OR assignee_id = ?)
		ORDER BY task_number DESC`, status, requester, requester)
}

func (r *SQLiteRepository) ListSubtasks(ctx context.Context, parentID string) ([]*task.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE parent_id = ? ORDER BY task_number ASC`, parentID)
}

func (r *SQLiteRepository) ListDue(ctx context.Context, until time.Time) ([]*task.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE due_date IS NOT NULL AND due_date <= ?
		AND due_reminder_sent_at IS NULL
		AND status NOT IN (?, ?)
		ORDER BY due_date ASC`, until.UTC(), task.StatusDone, task.StatusArchived)
}

func (r *SQLiteRepository) Search(ctx context.Context, query string) ([]*task.Task, error) {
	number := int64(-1)
	if n, err := strconv.ParseInt(query, 10, 64); err == nil {
		number = n
	}
	// A single statement with OR-ed match arms returns each task at most once,
	// which is the deduplication the search contract asks for.
	return r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE instr(lower(title), lower(?)) > 0
		OR instr(lower(description), lower(?)) > 0
		OR EXISTS (SELECT 1 FROM json_each(tasks.tags) WHERE json_each.value = ?)
		OR task_number = ?
		ORDER BY task_number ASC`, query, query, query, number)
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count tasks: %w", err))
	}
	return n, nil
}

func (r *SQLiteRepository) Counts(ctx context.Context, id string) (task.Counts, error) {
	var c task.Counts
	err := r.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM tasks WHERE parent_id = t.id),
		(SELECT COUNT(*) FROM comments WHERE task_id = t.id),
		(SELECT COUNT(*) FROM attachments WHERE task_id = t.id)
		FROM tasks t WHERE t.id = ?`, id).Scan(&c.Subtasks, &c.Comments, &c.Attachments)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Counts{}, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	if err != nil {
		return task.Counts{}, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to count task children: %w", err))
	}
	return c, nil
}

// Update writes the descriptive fields only. Tracking and parent fields never
// move through here; they change only via their conditional statements below.
func (r *SQLiteRepository) Update(ctx context.Context, t *task.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to encode tags: %w", err))
	}
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET
		title = ?, description = ?, tags = ?, status = ?, priority = ?, archived = ?,
		due_date = ?, estimated_hours = ?, actual_hours = ?, assignee_id = ?,
		saved_as_template = ?, due_reminder_sent_at = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, tags, t.Status, t.Priority, t.Archived,
		utcOrNil(t.DueDate), t.EstimatedHours, t.ActualHours, nullString(t.AssigneeID),
		t.SavedAsTemplate, utcOrNil(t.DueReminderSentAt), t.UpdatedAt.UTC(), t.ID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to update task: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete task: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) BeginTracking(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET
		tracking_active = 1, tracking_start_time = ?, updated_at = ?
		WHERE id = ? AND tracking_active = 0`, at.UTC(), at.UTC(), id)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to begin tracking: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n > 0 {
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

func (r *SQLiteRepository) FinishTracking(ctx context.Context, id string, startedAt time.Time, addSeconds int64, at time.Time) error {
	// Matching on tracking_start_time pins the update to the interval the
	// caller observed, so a concurrent stop+start pair cannot double count.
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET
		tracking_active = 0, tracking_start_time = NULL,
		tracking_time_seconds = tracking_time_seconds + ?, updated_at = ?
		WHERE id = ? AND tracking_active = 1 AND tracking_start_time = ?`,
		addSeconds, at.UTC(), id, startedAt.UTC())
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to finish tracking: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n > 0 {
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

func (r *SQLiteRepository) SetParent(ctx context.Context, childID, parentID string, at time.Time) error {
	// The recursive chain walks upward from the new parent. Writing only when
	// the child is absent from that chain keeps the forest acyclic even when
	// two restructures race. UNION (not UNION ALL) terminates the recursion
	// should the stored chain ever contain a loop.
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET parent_id = ?, updated_at = ?
		WHERE id = ?
		AND EXISTS (SELECT 1 FROM tasks WHERE id = ?)
		AND NOT EXISTS (
			WITH RECURSIVE chain(id) AS (
				SELECT ?
				UNION
				SELECT t.parent_id FROM tasks t JOIN chain c ON t.id = c.id
				WHERE t.parent_id IS NOT NULL
			)
			SELECT 1 FROM chain WHERE id = ?
		)`, parentID, at.UTC(), childID, parentID, parentID, childID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to set parent: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n > 0 {
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

func (r *SQLiteRepository) ClearParent(ctx context.Context, childID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET parent_id = NULL, updated_at = ? WHERE id = ?`, at.UTC(), childID)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to clear parent: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	if n == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) MarkDueReminded(ctx context.Context, id string, due time.Time, at time.Time) (bool, error) {
	// Matching on due_date keeps the stamp from landing on a task whose due
	// date moved after it was listed; the moved date re-arms the reminder.
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET due_reminder_sent_at = ?, updated_at = ?
		WHERE id = ? AND due_date = ? AND due_reminder_sent_at IS NULL`,
		at.UTC(), at.UTC(), id, due.UTC())
	if err != nil {
		return false, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to mark due reminded: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read rows affected: %w", err))
	}
	return n > 0, nil
}

func (r *SQLiteRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to query tasks: %w", err))
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (*task.Task, error) {
	var (
		t          task.Task
		tags       string
		dueDate    sql.NullTime
		estimated  sql.NullFloat64
		actual     sql.NullFloat64
		assigneeID sql.NullString
		parentID   sql.NullString
		startedAt  sql.NullTime
		remindedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.TaskNumber, &t.Title, &t.Description, &tags, &t.Status, &t.Priority, &t.Archived,
		&dueDate, &estimated, &actual, &t.CreatorID, &assigneeID, &parentID,
		&t.TrackingActive, &startedAt, &t.TrackingTimeSeconds, &t.SavedAsTemplate,
		&remindedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	t.DueDate = timeOrNil(dueDate)
	t.EstimatedHours = floatOrNil(estimated)
	t.ActualHours = floatOrNil(actual)
	t.AssigneeID = assigneeID.String
	t.ParentID = parentID.String
	t.TrackingStartTime = timeOrNil(startedAt)
	t.DueReminderSentAt = timeOrNil(remindedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timeOrNil(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	u := nt.Time.UTC()
	return &u
}

func floatOrNil(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
