package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
)

type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id int64) (models.Task, error)
	ListOpen(ctx context.Context) ([]models.Task, error)

	// UpdateRisk writes the cached risk level and reports whether it changed.
	UpdateRisk(ctx context.Context, id int64, level models.RiskLevel) (bool, error)
	// TransitionStatus moves a task from one status to another. It returns
	// ErrConflict when the task is no longer in the expected status.
	TransitionStatus(ctx context.Context, id int64, from, to models.TaskStatus) error
	Assign(ctx context.Context, id, userID int64) (models.Task, error)
	// Complete marks a task completed and reports whether this call did it.
	Complete(ctx context.Context, id int64) (bool, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

// taskColumns resolves the owning event once, here: a direct event wins
// over the committee's event.
const taskColumns = `
	t.id, t.title, t.due_date, t.status, t.risk_level, t.assigned_to, t.event_id, t.committee_id,
	COALESCE(t.event_id, c.event_id), t.created_at, t.updated_at
`

const taskFrom = `
	FROM tasks t
	LEFT JOIN committees c ON c.id = t.committee_id
`

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.RiskLevel == "" {
		task.RiskLevel = models.RiskLow
	}
	const query = `
		INSERT INTO tasks (title, due_date, status, risk_level, assigned_to, event_id, committee_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		task.Title,
		nullableDateArg(task.DueDate),
		task.Status,
		task.RiskLevel,
		nullableInt64(task.AssignedTo),
		nullableInt64(task.EventID),
		nullableInt64(task.CommitteeID),
	).Scan(&task.ID)
	if err != nil {
		return errors.Wrap(err, "insert task")
	}

	stored, err := r.Get(ctx, task.ID)
	if err != nil {
		return err
	}
	*task = stored
	return nil
}

func (r *taskRepository) Get(ctx context.Context, id int64) (models.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, errors.Wrapf(err, "get task %d", id)
	}
	return task, nil
}

func (r *taskRepository) ListOpen(ctx context.Context) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + taskFrom + ` WHERE t.status <> 'completed' ORDER BY t.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list open tasks")
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) UpdateRisk(ctx context.Context, id int64, level models.RiskLevel) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET risk_level = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND risk_level <> $1
	`, level, id)
	if err != nil {
		return false, errors.Wrapf(err, "update risk of task %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *taskRepository) TransitionStatus(ctx context.Context, id int64, from, to models.TaskStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return errors.Wrapf(err, "transition task %d %s->%s", id, from, to)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *taskRepository) Assign(ctx context.Context, id, userID int64) (models.Task, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET assigned_to = $1,
		    status = CASE WHEN status = 'pending' THEN 'in_progress' ELSE status END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status <> 'completed'
	`, userID, id)
	if err != nil {
		return models.Task{}, errors.Wrapf(err, "assign task %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Task{}, err
	}
	if n == 0 {
		return models.Task{}, r.missOrConflict(ctx, id)
	}
	return r.Get(ctx, id)
}

func (r *taskRepository) Complete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'completed', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status <> 'completed'
	`, id)
	if err != nil {
		return false, errors.Wrapf(err, "complete task %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// missOrConflict tells a missing row apart from a failed compare-and-swap.
func (r *taskRepository) missOrConflict(ctx context.Context, id int64) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

func scanTask(scanner rowScanner) (models.Task, error) {
	var (
		task                             models.Task
		dueDate                          lenientDate
		createdAt, updatedAt             dbTime
		assignedTo, eventID, committeeID sql.NullInt64
		owningEventID                    sql.NullInt64
	)
	if err := scanner.Scan(
		&task.ID,
		&task.Title,
		&dueDate,
		&task.Status,
		&task.RiskLevel,
		&assignedTo,
		&eventID,
		&committeeID,
		&owningEventID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return models.Task{}, err
	}
	task.DueDate = dueDate.DatePtr()
	task.AssignedTo = int64Ptr(assignedTo)
	task.EventID = int64Ptr(eventID)
	task.CommitteeID = int64Ptr(committeeID)
	task.OwningEventID = int64Ptr(owningEventID)
	task.CreatedAt = createdAt.Time
	task.UpdatedAt = updatedAt.Time
	return task, nil
}
