// Package memory is an in-process implementation of the repository interfaces.
// It backs the use case tests and STORAGE_DRIVER=memory single-node runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/repository"
)

// Store holds every record behind one lock so multi-record writes stay atomic.
type Store struct {
	mu          sync.RWMutex
	tasks       map[string]domain.Task
	users       map[string]domain.User
	emails      map[string]string
	reviews     []domain.Review
	credentials map[string]domain.Credential
	sessions    map[string]domain.Session
	credited    map[string]struct{}
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		tasks:       make(map[string]domain.Task),
		users:       make(map[string]domain.User),
		emails:      make(map[string]string),
		credentials: make(map[string]domain.Credential),
		sessions:    make(map[string]domain.Session),
		credited:    make(map[string]struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Tasks() repository.TaskRepository             { return taskRepo{s} }
func (s *Store) Users() repository.UserRepository             { return userRepo{s} }
func (s *Store) Reviews() repository.ReviewRepository         { return reviewRepo{s} }
func (s *Store) Credentials() repository.CredentialRepository { return credentialRepo{s} }
func (s *Store) Sessions() repository.SessionRepository       { return sessionRepo{s} }

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type taskRepo struct{ s *Store }

func (r taskRepo) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	task, ok := r.s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return &task, nil
}

func (r taskRepo) List(_ context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	r.s.mu.RLock()
	tasks := make([]domain.Task, 0, len(r.s.tasks))
	for _, task := range r.s.tasks {
		if filter.College != "" && task.College != filter.College {
			continue
		}
		if filter.PostedBy != "" && task.PostedBy != filter.PostedBy {
			continue
		}
		if filter.AcceptedBy != "" && task.AcceptedBy != filter.AcceptedBy {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		tasks = append(tasks, task)
	}
	r.s.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(tasks) {
			return []domain.Task{}, nil
		}
		tasks = tasks[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(tasks) {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

func (r taskRepo) Create(_ context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if task.ID == "" {
		task.ID = newID()
	}
	now := r.s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	r.s.tasks[task.ID] = *task
	return task, nil
}

func (r taskRepo) Transition(_ context.Context, id string, t repository.Transition) (*domain.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	task, ok := r.s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	if !statusIn(task.Status, t.From) || (t.RequireUnpaid && task.PaymentCompleted) {
		return nil, domain.NewError(domain.ErrCodeInvalidTransition,
			"task "+string(task.Status)+" no longer allows this change")
	}

	task.Status = t.To
	if t.AcceptedBy != "" {
		task.AcceptedBy = t.AcceptedBy
	}
	if t.PaidAt != nil {
		paidAt := *t.PaidAt
		task.PaymentCompleted = true
		task.PaymentCompletedAt = &paidAt
	}
	task.UpdatedAt = r.s.now()
	r.s.tasks[id] = task
	return &task, nil
}

func statusIn(status domain.Status, set []domain.Status) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if email != "" {
		if _, taken := r.s.emails[email]; taken {
			return domain.ErrEmailTaken
		}
	}
	if user.ID == "" {
		user.ID = newID()
	}
	if _, exists := r.s.users[user.ID]; exists {
		return domain.ErrEmailTaken
	}
	now := r.s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	if email != "" {
		r.s.emails[email] = user.ID
	}
	return nil
}

func (r userRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil
	}
	delete(r.s.users, id)
	if email := strings.ToLower(user.Email); email != "" && r.s.emails[email] == id {
		delete(r.s.emails, email)
	}
	return nil
}

func (r userRepo) UpdateProfile(_ context.Context, id string, patch domain.ProfilePatch) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	patch.Apply(&user)
	user.UpdatedAt = r.s.now()
	r.s.users[id] = user
	return &user, nil
}

func (r userRepo) CreditEarnings(_ context.Context, id, taskID string, amount int64) error {
	if taskID == "" {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, done := r.s.credited[taskID]; done {
		return nil
	}
	user, ok := r.s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	r.s.credited[taskID] = struct{}{}
	user.TotalEarned += amount
	user.CompletedHustles++
	user.UpdatedAt = r.s.now()
	r.s.users[id] = user
	return nil
}

func (r userRepo) ApplyRating(_ context.Context, review domain.Review) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[review.RateeID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if review.TaskID != "" {
		for _, existing := range r.s.reviews {
			if existing.TaskID == review.TaskID && existing.RaterID == review.RaterID && existing.RateeID == review.RateeID {
				return nil, domain.ErrAlreadyRated
			}
		}
	}

	if review.ID == "" {
		review.ID = newID()
	}
	review.CreatedAt = r.s.now()
	r.s.reviews = append(r.s.reviews, review)

	user.Rating, user.TotalRatings = domain.RunningMean(user.Rating, user.TotalRatings, review.Stars)
	user.UpdatedAt = review.CreatedAt
	r.s.users[user.ID] = user
	return &user, nil
}

type reviewRepo struct{ s *Store }

func (r reviewRepo) ListByRatee(_ context.Context, rateeID string, limit int) ([]domain.Review, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Review
	for i := len(r.s.reviews) - 1; i >= 0; i-- {
		if r.s.reviews[i].RateeID != rateeID {
			continue
		}
		out = append(out, r.s.reviews[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type credentialRepo struct{ s *Store }

func credentialKey(provider, subject string) string {
	return provider + "|" + strings.ToLower(subject)
}

func (r credentialRepo) Get(_ context.Context, provider, subject string) (*domain.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cred, ok := r.s.credentials[credentialKey(provider, subject)]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return &cred, nil
}

func (r credentialRepo) Create(_ context.Context, cred *domain.Credential) error {
	if cred == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := credentialKey(cred.Provider, cred.Subject)
	if _, exists := r.s.credentials[key]; exists {
		return domain.ErrEmailTaken
	}
	cred.CreatedAt = r.s.now()
	r.s.credentials[key] = *cred
	return nil
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) Get(_ context.Context, id string) (*domain.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	session, ok := r.s.sessions[id]
	if !ok || session.IsExpired(r.s.now()) {
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

func (r sessionRepo) Save(_ context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = r.s.now()
	}
	r.s.sessions[session.ID] = *session
	return nil
}

func (r sessionRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

func (r sessionRepo) Renew(_ context.Context, session *domain.Session) error {
	if session == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	r.s.sessions[session.ID] = *session
	return nil
}
