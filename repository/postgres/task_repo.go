package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/repository"
)

const taskColumns = `id, title, description, amount, deadline, posted_by, posted_by_name, posted_by_department,
	college, status, accepted_by, payment_completed, payment_completed_at, created_at, updated_at`

const listTasksQuery = `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE ($1 = '' OR college = $1)
	  AND ($2 = '' OR posted_by = $2)
	  AND ($3 = '' OR accepted_by = $3)
	  AND ($4 = '' OR status = $4)
	ORDER BY created_at DESC, id DESC
	LIMIT $5::bigint OFFSET $6
	`

// transitionQuery is a compare-and-swap: the WHERE clause carries the
// precondition, so of two concurrent writers only one matches the row.
const transitionQuery = `
	UPDATE tasks
	SET status = $3,
		accepted_by = CASE WHEN $4 <> '' THEN $4 ELSE accepted_by END,
		payment_completed = payment_completed OR $5::timestamptz IS NOT NULL,
		payment_completed_at = COALESCE($5::timestamptz, payment_completed_at),
		updated_at = NOW()
	WHERE id = $1
	  AND status = ANY($2::text[])
	  AND (NOT $6 OR payment_completed = FALSE)
	RETURNING ` + taskColumns

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository returns a Postgres-backed implementation of TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) repository.TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// List returns every matching task when filter.Limit is zero.
func (r *taskRepository) List(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, listTasksQuery, listArgs(filter)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	if task.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		task.ID = id.String()
	}

	const query = `
	INSERT INTO tasks (id, title, description, amount, deadline, posted_by, posted_by_name,
		posted_by_department, college, status, accepted_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING created_at, updated_at
	`

	if err := r.pool.QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Amount,
		nullTime(task.Deadline),
		task.PostedBy,
		task.PostedByName,
		task.PostedByDepartment,
		task.College,
		string(task.Status),
		task.AcceptedBy,
	).Scan(&task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}

	return task, nil
}

// Transition is a compare-and-swap on status and the payment flag. A row that
// no longer matches the precondition surfaces as INVALID_TRANSITION.
func (r *taskRepository) Transition(ctx context.Context, id string, t repository.Transition) (*domain.Task, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, transitionQuery, transitionArgs(id, t)...))
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, domain.ErrTaskNotFound) {
		return nil, err
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, domain.NewError(domain.ErrCodeInvalidTransition,
		"task "+string(current.Status)+" no longer allows this change")
}

func listArgs(filter repository.TaskFilter) []any {
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	return []any{
		filter.College,
		filter.PostedBy,
		filter.AcceptedBy,
		string(filter.Status),
		pageLimit(filter.Limit),
		offset,
	}
}

func transitionArgs(id string, t repository.Transition) []any {
	return []any{
		id,
		statusStrings(t.From),
		string(t.To),
		t.AcceptedBy,
		nullTime(t.PaidAt),
		t.RequireUnpaid,
	}
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task   domain.Task
		status string
	)

	if err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Amount,
		&task.Deadline,
		&task.PostedBy,
		&task.PostedByName,
		&task.PostedByDepartment,
		&task.College,
		&status,
		&task.AcceptedBy,
		&task.PaymentCompleted,
		&task.PaymentCompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	task.Status = domain.Status(status)
	return &task, nil
}
