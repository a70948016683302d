// Package hustle drives a task from open through accepted to completed and settles payment.
package hustle

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/internal/feed"
	appLogger "github.com/fastygo/hustle/pkg/logger"
	"github.com/fastygo/hustle/repository"
	"github.com/fastygo/hustle/usecase"
)

// Completion policies: who may mark an accepted task completed.
const (
	CompletionSelfReport    = "self-report"
	CompletionPosterConfirm = "poster-confirm"
)

const (
	SortLatest = "latest"
	SortPrice  = "price"
)

// Earnings credits a worker once a task is paid.
type Earnings interface {
	CreditEarnings(ctx context.Context, userID, taskID string, amount int64) error
}

type Options struct {
	CompletionPolicy string
	Now              func() time.Time
}

type CreateInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Amount      int64      `json:"amount"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

type ListOptions struct {
	Search string
	Sort   string
}

// TaskView is a task as one viewer sees it.
type TaskView struct {
	domain.Task
	Roles domain.Roles `json:"roles"`
}

type UseCase struct {
	tasks    repository.TaskRepository
	users    repository.UserRepository
	earnings Earnings
	buffer   usecase.OperationBuffer
	notifier usecase.ChangeNotifier
	colleges *feed.Feed[[]domain.Task]
	policy   string
	now      func() time.Time
	logger   *zap.Logger
}

func New(
	tasks repository.TaskRepository,
	users repository.UserRepository,
	earnings Earnings,
	buffer usecase.OperationBuffer,
	notifier usecase.ChangeNotifier,
	logger *zap.Logger,
	opts Options,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CompletionPolicy == "" {
		opts.CompletionPolicy = CompletionSelfReport
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	uc := &UseCase{
		tasks:    tasks,
		users:    users,
		earnings: earnings,
		buffer:   buffer,
		notifier: usecase.NotifierOrNop(notifier),
		policy:   opts.CompletionPolicy,
		now:      opts.Now,
		logger:   logger,
	}
	uc.colleges = feed.New[[]domain.Task]("college-tasks", uc.Query, logger)
	return uc
}

// Feed is the per-college task feed, notified through the change bus.
func (uc *UseCase) Feed() feed.Notifier {
	return uc.colleges
}

// Close ends every live subscription.
func (uc *UseCase) Close() {
	uc.colleges.Close()
}

func (uc *UseCase) Create(ctx context.Context, posterID string, in CreateInput) (*domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Title == "":
		return nil, domain.Validation("title is required")
	case in.Description == "":
		return nil, domain.Validation("description is required")
	case in.Amount <= 0:
		return nil, domain.Validation("amount must be positive")
	}

	poster, err := uc.users.GetByID(ctx, posterID)
	if err != nil {
		return nil, uc.gateway(ctx, "load poster", err)
	}
	if !poster.ProfileComplete() {
		return nil, domain.ErrProfileIncomplete
	}

	task := &domain.Task{
		Title:              in.Title,
		Description:        in.Description,
		Amount:             in.Amount,
		Deadline:           in.Deadline,
		PostedBy:           poster.ID,
		PostedByName:       poster.Name,
		PostedByDepartment: poster.Department,
		College:            poster.College,
		Status:             domain.StatusOpen,
	}

	created, err := uc.tasks.Create(ctx, task)
	if err != nil {
		return nil, uc.gateway(ctx, "create task", err)
	}

	uc.log(ctx).Info("hustle posted",
		zap.String("task_id", created.ID),
		zap.String("college", created.College),
		zap.Int64("amount", created.Amount))
	uc.notifier.CollegeChanged(ctx, created.College)
	return created, nil
}

func (uc *UseCase) Accept(ctx context.Context, taskID, accepterID string) (*domain.Task, error) {
	if accepterID == "" {
		return nil, domain.Validation("accepter is required")
	}
	task, err := uc.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.PostedBy == accepterID {
		return nil, domain.Validation("you cannot accept your own hustle")
	}

	updated, err := uc.transition(ctx, task, domain.EventAccept, repository.Transition{AcceptedBy: accepterID})
	if err != nil {
		return nil, err
	}
	uc.log(ctx).Info("hustle accepted", zap.String("task_id", taskID), zap.String("accepted_by", accepterID))
	return updated, nil
}

func (uc *UseCase) Complete(ctx context.Context, taskID, actorID string) (*domain.Task, error) {
	task, err := uc.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !uc.mayComplete(task, actorID) {
		return nil, domain.NewError(domain.ErrCodeForbidden, "you cannot complete this hustle")
	}

	updated, err := uc.transition(ctx, task, domain.EventComplete, repository.Transition{})
	if err != nil {
		return nil, err
	}
	uc.log(ctx).Info("hustle completed", zap.String("task_id", taskID), zap.String("actor", actorID))
	return updated, nil
}

func (uc *UseCase) mayComplete(task *domain.Task, actorID string) bool {
	if actorID == "" {
		return false
	}
	if actorID == task.PostedBy {
		return true
	}
	return uc.policy == CompletionSelfReport && actorID == task.AcceptedBy
}

// MarkPaymentCompleted settles the task and credits amount to the worker. The
// settle is conditional on payment still being outstanding, and the store
// records the credit per task, so a task is credited at most once even when a
// parked credit is replayed.
//
// workerID is not taken on trust: once the task has an accepted worker, any
// other workerID is rejected as invalid. This is a deliberate tightening over
// accepting the caller's value as given, so a poster cannot route the payout
// to a third account.
func (uc *UseCase) MarkPaymentCompleted(ctx context.Context, taskID, workerID string, amount int64) (*domain.Task, error) {
	if amount <= 0 {
		return nil, domain.Validation("amount must be positive")
	}
	task, err := uc.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.PaymentCompleted {
		return nil, domain.NewError(domain.ErrCodeInvalidTransition, "payment already completed")
	}
	if task.AcceptedBy != "" && workerID != task.AcceptedBy {
		return nil, domain.Validation("payment must go to the worker who accepted the hustle")
	}

	paidAt := uc.now()
	updated, err := uc.transition(ctx, task, domain.EventSettle, repository.Transition{
		RequireUnpaid: true,
		PaidAt:        &paidAt,
	})
	if err != nil {
		return nil, err
	}

	if err := uc.earnings.CreditEarnings(ctx, workerID, taskID, amount); err != nil {
		if uc.shouldBuffer(ctx, workerID, taskID, amount) {
			return updated, nil
		}
		uc.log(ctx).Error("task settled but earnings were not credited",
			zap.String("task_id", taskID),
			zap.String("worker_id", workerID),
			zap.Int64("amount", amount),
			zap.Error(err))
		return nil, domain.Gateway("credit earnings", err)
	}

	uc.log(ctx).Info("hustle paid",
		zap.String("task_id", taskID),
		zap.String("worker_id", workerID),
		zap.Int64("amount", amount))
	return updated, nil
}

// ConfirmPayment is the poster acknowledging they paid the worker. An empty
// workerID means the accepted worker and a zero amount means the task amount.
func (uc *UseCase) ConfirmPayment(ctx context.Context, taskID, posterID, workerID string, amount int64) (*domain.Task, error) {
	task, err := uc.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if posterID == "" || task.PostedBy != posterID {
		return nil, domain.NewError(domain.ErrCodeForbidden, "only the poster can confirm payment")
	}
	if workerID == "" {
		workerID = task.AcceptedBy
	}
	if amount == 0 {
		amount = task.Amount
	}
	return uc.MarkPaymentCompleted(ctx, taskID, workerID, amount)
}

func (uc *UseCase) shouldBuffer(ctx context.Context, workerID, taskID string, amount int64) bool {
	if uc.buffer == nil {
		return false
	}
	if err := uc.buffer.BufferCredit(ctx, workerID, taskID, amount); err != nil {
		uc.log(ctx).Error("failed to buffer earnings credit", zap.String("task_id", taskID), zap.Error(err))
		return false
	}
	uc.log(ctx).Warn("earnings credit buffered", zap.String("task_id", taskID), zap.String("worker_id", workerID))
	return true
}

// transition validates the event against the FSM, then writes it conditionally
// so a concurrent writer that got there first turns this call into INVALID_TRANSITION.
func (uc *UseCase) transition(ctx context.Context, task *domain.Task, event domain.TaskEvent, t repository.Transition) (*domain.Task, error) {
	next, err := domain.NextStatus(task.ID, task.Status, event)
	if err != nil {
		return nil, err
	}
	t.From = domain.SourcesFor(event)
	t.To = next

	updated, err := uc.tasks.Transition(ctx, task.ID, t)
	if err != nil {
		return nil, uc.gateway(ctx, string(event)+" task", err)
	}
	uc.notifier.CollegeChanged(ctx, updated.College)
	return updated, nil
}

func (uc *UseCase) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	if taskID == "" {
		return nil, domain.ErrTaskNotFound
	}
	task, err := uc.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, uc.gateway(ctx, "get task", err)
	}
	return task, nil
}

// Query returns every task of the college, newest first.
func (uc *UseCase) Query(ctx context.Context, college string) ([]domain.Task, error) {
	if college == "" {
		return nil, domain.Validation("college is required")
	}
	tasks, err := uc.tasks.List(ctx, repository.TaskFilter{College: college})
	if err != nil {
		return nil, uc.gateway(ctx, "query tasks", err)
	}
	return tasks, nil
}

// Subscribe delivers the college's tasks now and after every change. Call the
// returned func to stop.
func (uc *UseCase) Subscribe(ctx context.Context, college string, onUpdate func([]domain.Task)) (func(), error) {
	if college == "" {
		return nil, domain.Validation("college is required")
	}
	return uc.colleges.Subscribe(ctx, college, onUpdate)
}

func (uc *UseCase) QueryByIdentity(ctx context.Context, userID string) (*domain.Owned, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	posted, err := uc.tasks.List(ctx, repository.TaskFilter{PostedBy: userID})
	if err != nil {
		return nil, uc.gateway(ctx, "query posted tasks", err)
	}
	accepted, err := uc.tasks.List(ctx, repository.TaskFilter{AcceptedBy: userID})
	if err != nil {
		return nil, uc.gateway(ctx, "query accepted tasks", err)
	}
	return &domain.Owned{Posted: posted, Accepted: accepted}, nil
}

// ListForViewer is the dashboard listing: the viewer's college, searched and sorted.
func (uc *UseCase) ListForViewer(ctx context.Context, viewerID string, opts ListOptions) ([]TaskView, error) {
	viewer, err := uc.users.GetByID(ctx, viewerID)
	if err != nil {
		return nil, uc.gateway(ctx, "load viewer", err)
	}
	if !viewer.ProfileComplete() {
		return nil, domain.ErrProfileIncomplete
	}

	tasks, err := uc.Query(ctx, viewer.College)
	if err != nil {
		return nil, err
	}
	return Views(tasks, viewerID, opts), nil
}

// Views filters, sorts and annotates tasks for one viewer.
func Views(tasks []domain.Task, viewerID string, opts ListOptions) []TaskView {
	views := make([]TaskView, 0, len(tasks))
	for i := range tasks {
		if !tasks[i].Matches(opts.Search) {
			continue
		}
		views = append(views, TaskView{Task: tasks[i], Roles: tasks[i].RolesFor(viewerID)})
	}

	newer := func(a, b domain.Task) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	}
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].Task, views[j].Task
		if opts.Sort == SortPrice && a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return newer(a, b)
	})
	return views
}

// ContactFor returns the poster's contact card to the worker, and only to them.
func (uc *UseCase) ContactFor(ctx context.Context, taskID, viewerID string) (*domain.Contact, error) {
	task, err := uc.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.RolesFor(viewerID).CanSeeContactDetails {
		return nil, domain.NewError(domain.ErrCodeForbidden, "contact details are shared with the worker only")
	}
	poster, err := uc.users.GetByID(ctx, task.PostedBy)
	if err != nil {
		return nil, uc.gateway(ctx, "load poster", err)
	}
	contact := poster.Contact()
	return &contact, nil
}

// gateway classifies store failures and logs the ones that are not domain errors.
func (uc *UseCase) gateway(ctx context.Context, op string, err error) error {
	wrapped := domain.Gateway(op, err)
	if domain.IsDomainError(wrapped, domain.ErrCodeGateway) {
		uc.log(ctx).Error("store call failed", zap.String("op", op), zap.Error(err))
	}
	return wrapped
}

func (uc *UseCase) log(ctx context.Context) *zap.Logger {
	return appLogger.FromContext(ctx, uc.logger)
}
