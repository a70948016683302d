package hustle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/internal/feed"
	"github.com/fastygo/hustle/repository/memory"
	"github.com/fastygo/hustle/usecase"
	"github.com/fastygo/hustle/usecase/profile"
)

type testEnv struct {
	store    *memory.Store
	profiles *profile.UseCase
	hustles  *UseCase
}

func newTestEnv(t *testing.T, policy string) *testEnv {
	t.Helper()
	store := memory.NewStore()
	bus := feed.NewLocalBus()
	publisher := feed.NewPublisher(bus, nil)

	profiles := profile.New(store.Users(), store.Reviews(), nil, publisher, nil)
	hustles := New(store.Tasks(), store.Users(), profiles, nil, publisher, nil, Options{CompletionPolicy: policy})

	stop, err := bus.Listen(feed.Dispatch(map[string]feed.Notifier{
		feed.KindCollege: hustles.Feed(),
		feed.KindUser:    profiles.Feed(),
	}))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		_ = stop()
		hustles.Close()
		profiles.Close()
	})
	return &testEnv{store: store, profiles: profiles, hustles: hustles}
}

func (e *testEnv) user(t *testing.T, id, college string) {
	t.Helper()
	u := &domain.User{ID: id, Name: "name-" + id, Email: id + "@campus.edu", College: college, Phone: "555-" + id}
	if err := e.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

func (e *testEnv) post(t *testing.T, posterID, title string, amount int64) *domain.Task {
	t.Helper()
	task, err := e.hustles.Create(context.Background(), posterID, CreateInput{
		Title:       title,
		Description: "help with " + title,
		Amount:      amount,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	ctx := context.Background()
	env.user(t, "poster", "X")
	env.user(t, "worker", "X")

	task := env.post(t, "poster", "Fix bike", 100)
	if task.Status != domain.StatusOpen || task.AcceptedBy != "" || task.College != "X" {
		t.Fatalf("unexpected new task %+v", task)
	}

	accepted, err := env.hustles.Accept(ctx, task.ID, "worker")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.StatusAccepted || accepted.AcceptedBy != "worker" {
		t.Fatalf("unexpected accepted task %+v", accepted)
	}

	paid, err := env.hustles.MarkPaymentCompleted(ctx, task.ID, "worker", 100)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.StatusCompleted || !paid.PaymentCompleted || paid.PaymentCompletedAt == nil {
		t.Fatalf("unexpected paid task %+v", paid)
	}

	worker, _ := env.profiles.GetProfile(ctx, "worker")
	if worker.TotalEarned != 100 || worker.CompletedHustles != 1 {
		t.Fatalf("earnings = %d, hustles = %d", worker.TotalEarned, worker.CompletedHustles)
	}

	if _, err := env.hustles.MarkPaymentCompleted(ctx, task.ID, "worker", 100); !domain.IsDomainError(err, domain.ErrCodeInvalidTransition) {
		t.Fatalf("second mark-paid should fail, got %v", err)
	}
	worker, _ = env.profiles.GetProfile(ctx, "worker")
	if worker.TotalEarned != 100 {
		t.Fatalf("worker credited twice: %d", worker.TotalEarned)
	}
}

func TestCompleteThenConfirmPayment(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	ctx := context.Background()
	env.user(t, "poster", "X")
	env.user(t, "worker", "X")
	task := env.post(t, "poster", "Notes", 40)

	if _, err := env.hustles.Accept(ctx, task.ID, "worker"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.hustles.Complete(ctx, task.ID, "worker"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := env.hustles.Complete(ctx, task.ID, "worker"); !domain.IsDomainError(err, domain.ErrCodeInvalidTransition) {
		t.Fatalf("completing twice should fail, got %v", err)
	}
	if _, err := env.hustles.ConfirmPayment(ctx, task.ID, "worker", "", 0); !domain.IsDomainError(err, domain.ErrCodeForbidden) {
		t.Fatalf("only the poster confirms payment, got %v", err)
	}

	paid, err := env.hustles.ConfirmPayment(ctx, task.ID, "poster", "", 0)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !paid.PaymentCompleted || paid.Status != domain.StatusCompleted {
		t.Fatalf("unexpected task %+v", paid)
	}
	worker, _ := env.profiles.GetProfile(ctx, "worker")
	if worker.TotalEarned != 40 {
		t.Fatalf("earnings = %d", worker.TotalEarned)
	}
}

func TestAcceptTwiceFails(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	ctx := context.Background()
	env.user(t, "p", "X")
	env.user(t, "w1", "X")
	env.user(t, "w2", "X")
	task := env.post(t, "p", "Laundry", 20)

	if _, err := env.hustles.Accept(ctx, task.ID, "w1"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := env.hustles.Accept(ctx, task.ID, "w2"); !domain.IsDomainError(err, domain.ErrCodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	got, _ := env.hustles.Get(ctx, task.ID)
	if got.AcceptedBy != "w1" {
		t.Fatalf("accepter changed to %q", got.AcceptedBy)
	}
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	env.user(t, "owner", "X")
	task := env.post(t, "owner", "Groceries", 30)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		invalid int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.hustles.Accept(context.Background(), task.ID, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case domain.IsDomainError(err, domain.ErrCodeInvalidTransition):
				invalid++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}(fmt.Sprintf("worker-%d", i))
	}
	wg.Wait()

	if wins != 1 || invalid != workers-1 {
		t.Fatalf("wins=%d invalid=%d", wins, invalid)
	}
}

func TestAcceptOwnTaskRejected(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	env.user(t, "p", "X")
	task := env.post(t, "p", "Essay", 10)

	if _, err := env.hustles.Accept(context.Background(), task.ID, "p"); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := env.hustles.Accept(context.Background(), "missing", "q"); !domain.IsDomainError(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	env.user(t, "p", "X")
	env.user(t, "stub", "")
	ctx := context.Background()

	cases := map[string]CreateInput{
		"zero amount":     {Title: "a", Description: "b", Amount: 0},
		"negative amount": {Title: "a", Description: "b", Amount: -5},
		"blank title":     {Title: "  ", Description: "b", Amount: 5},
		"no description":  {Title: "a", Amount: 5},
	}
	for name, in := range cases {
		if _, err := env.hustles.Create(ctx, "p", in); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}

	_, err := env.hustles.Create(ctx, "stub", CreateInput{Title: "a", Description: "b", Amount: 5})
	if !errors.Is(err, domain.ErrProfileIncomplete) {
		t.Fatalf("expected incomplete profile, got %v", err)
	}
}

func TestCompletionPolicy(t *testing.T) {
	cases := []struct {
		policy string
		actor  string
		ok     bool
	}{
		{CompletionSelfReport, "w", true},
		{CompletionSelfReport, "p", true},
		{CompletionSelfReport, "stranger", false},
		{CompletionPosterConfirm, "w", false},
		{CompletionPosterConfirm, "p", true},
	}
	for _, tc := range cases {
		env := newTestEnv(t, tc.policy)
		env.user(t, "p", "X")
		env.user(t, "w", "X")
		task := env.post(t, "p", "Print", 15)
		if _, err := env.hustles.Accept(context.Background(), task.ID, "w"); err != nil {
			t.Fatalf("accept: %v", err)
		}

		_, err := env.hustles.Complete(context.Background(), task.ID, tc.actor)
		if tc.ok && err != nil {
			t.Errorf("%s/%s: unexpected error %v", tc.policy, tc.actor, err)
		}
		if !tc.ok && !domain.IsDomainError(err, domain.ErrCodeForbidden) {
			t.Errorf("%s/%s: expected forbidden, got %v", tc.policy, tc.actor, err)
		}
	}
}

func TestCompleteOpenTaskIsInvalid(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	env.user(t, "p", "X")
	task := env.post(t, "p", "Cook", 15)

	if _, err := env.hustles.Complete(context.Background(), task.ID, "p"); !domain.IsDomainError(err, domain.ErrCodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestMarkPaymentPreconditions(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	ctx := context.Background()
	env.user(t, "p", "X")
	env.user(t, "w", "X")
	task := env.post(t, "p", "Move desk", 50)

	if _, err := env.hustles.MarkPaymentCompleted(ctx, task.ID, "w", 50); !domain.IsDomainError(err, domain.ErrCodeInvalidTransition) {
		t.Fatalf("open task cannot be paid, got %v", err)
	}

	_, _ = env.hustles.Accept(ctx, task.ID, "w")
	if _, err := env.hustles.MarkPaymentCompleted(ctx, task.ID, "someone-else", 50); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("wrong worker should be rejected, got %v", err)
	}
	if _, err := env.hustles.MarkPaymentCompleted(ctx, task.ID, "w", 0); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("zero amount should be rejected, got %v", err)
	}
}

type failingEarnings struct{ err error }

func (f failingEarnings) CreditEarnings(context.Context, string, string, int64) error { return f.err }

// lostReply applies the credit and then reports the deadline as hit, the way
// a commit whose acknowledgement never arrived looks to the caller.
type lostReply struct{ next Earnings }

func (l lostReply) CreditEarnings(ctx context.Context, userID, taskID string, amount int64) error {
	if err := l.next.CreditEarnings(ctx, userID, taskID, amount); err != nil {
		return err
	}
	return context.DeadlineExceeded
}

type recordingBuffer struct {
	credits []int64
	tasks   []string
	err     error
}

func (b *recordingBuffer) BufferCredit(_ context.Context, _, taskID string, amount int64) error {
	if b.err != nil {
		return b.err
	}
	b.credits = append(b.credits, amount)
	b.tasks = append(b.tasks, taskID)
	return nil
}

func (b *recordingBuffer) BufferProfile(context.Context, string, domain.ProfilePatch) error {
	return b.err
}

var _ usecase.OperationBuffer = (*recordingBuffer)(nil)

func TestCreditFailureFallsBackToOutbox(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for _, id := range []string{"p", "w"} {
		_ = store.Users().Create(ctx, &domain.User{ID: id, Name: id, College: "X"})
	}
	down := failingEarnings{err: errors.New("connection reset")}

	buf := &recordingBuffer{}
	uc := New(store.Tasks(), store.Users(), down, buf, nil, nil, Options{})
	task, _ := uc.Create(ctx, "p", CreateInput{Title: "a", Description: "b", Amount: 70})
	_, _ = uc.Accept(ctx, task.ID, "w")

	if _, err := uc.MarkPaymentCompleted(ctx, task.ID, "w", 70); err != nil {
		t.Fatalf("buffered credit should succeed, got %v", err)
	}
	if len(buf.credits) != 1 || buf.credits[0] != 70 {
		t.Fatalf("expected buffered credit, got %v", buf.credits)
	}

	noBuffer := New(store.Tasks(), store.Users(), down, nil, nil, nil, Options{})
	task2, _ := noBuffer.Create(ctx, "p", CreateInput{Title: "a", Description: "b", Amount: 10})
	_, _ = noBuffer.Accept(ctx, task2.ID, "w")
	if _, err := noBuffer.MarkPaymentCompleted(ctx, task2.ID, "w", 10); !domain.IsDomainError(err, domain.ErrCodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	settled, _ := noBuffer.Get(ctx, task2.ID)
	if !settled.PaymentCompleted {
		t.Fatalf("task stays settled even when the credit fails")
	}
}

func TestAmbiguousCreditIsNotPaidTwice(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for _, id := range []string{"p", "w"} {
		_ = store.Users().Create(ctx, &domain.User{ID: id, Name: id, College: "X"})
	}
	buf := &recordingBuffer{}
	uc := New(store.Tasks(), store.Users(), lostReply{next: store.Users()}, buf, nil, nil, Options{})
	task, _ := uc.Create(ctx, "p", CreateInput{Title: "a", Description: "b", Amount: 100})
	_, _ = uc.Accept(ctx, task.ID, "w")

	if _, err := uc.MarkPaymentCompleted(ctx, task.ID, "w", 100); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if len(buf.tasks) != 1 || buf.tasks[0] != task.ID {
		t.Fatalf("credit should be parked under its task, got %v", buf.tasks)
	}

	// Replay the parked credit the way the outbox drain does.
	if err := store.Users().CreditEarnings(ctx, "w", buf.tasks[0], buf.credits[0]); err != nil {
		t.Fatalf("replay: %v", err)
	}
	w, _ := store.Users().GetByID(ctx, "w")
	if w.TotalEarned != 100 || w.CompletedHustles != 1 {
		t.Fatalf("worker credited twice: %+v", w)
	}
}

func TestQueryIsCollegeScoped(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	env.user(t, "px", "X")
	env.user(t, "py", "Y")
	env.post(t, "px", "one", 1)
	env.post(t, "py", "two", 2)
	env.post(t, "px", "three", 3)

	tasks, err := env.hustles.Query(context.Background(), "X")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.College != "X" {
			t.Fatalf("task %s from %s leaked into X", task.ID, task.College)
		}
	}
	if tasks[0].Title != "three" {
		t.Fatalf("expected newest first, got %q", tasks[0].Title)
	}
}

func waitForTasks(t *testing.T, ch <-chan []domain.Task, match func([]domain.Task) bool) []domain.Task {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case tasks := <-ch:
			if match(tasks) {
				return tasks
			}
		case <-deadline:
			t.Fatalf("timed out waiting for feed update")
			return nil
		}
	}
}

func TestSubscribeDeliversCollegeChanges(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	env.user(t, "p", "X")
	env.user(t, "w", "X")
	env.user(t, "q", "Y")

	updates := make(chan []domain.Task, 16)
	unsubscribe, err := env.hustles.Subscribe(context.Background(), "X", func(tasks []domain.Task) { updates <- tasks })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	waitForTasks(t, updates, func(tasks []domain.Task) bool { return len(tasks) == 0 })

	task := env.post(t, "p", "Tutor", 25)
	waitForTasks(t, updates, func(tasks []domain.Task) bool { return len(tasks) == 1 })

	env.post(t, "q", "Elsewhere", 5)
	_, _ = env.hustles.Accept(context.Background(), task.ID, "w")
	got := waitForTasks(t, updates, func(tasks []domain.Task) bool {
		return len(tasks) == 1 && tasks[0].Status == domain.StatusAccepted
	})
	if got[0].College != "X" {
		t.Fatalf("feed for X delivered %s", got[0].College)
	}
}

func TestQueryByIdentity(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	ctx := context.Background()
	env.user(t, "a", "X")
	env.user(t, "b", "X")

	mine := env.post(t, "a", "mine", 5)
	theirs := env.post(t, "b", "theirs", 5)
	env.post(t, "b", "other", 5)
	_, _ = env.hustles.Accept(ctx, theirs.ID, "a")

	owned, err := env.hustles.QueryByIdentity(ctx, "a")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(owned.Posted) != 1 || owned.Posted[0].ID != mine.ID {
		t.Fatalf("posted = %+v", owned.Posted)
	}
	if len(owned.Accepted) != 1 || owned.Accepted[0].ID != theirs.ID {
		t.Fatalf("accepted = %+v", owned.Accepted)
	}
}

func TestListForViewer(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	ctx := context.Background()
	env.user(t, "p", "X")
	env.user(t, "v", "X")
	env.post(t, "p", "Cheap errand", 10)
	env.post(t, "p", "Big move", 500)
	env.post(t, "p", "Errand run", 50)

	views, err := env.hustles.ListForViewer(ctx, "v", ListOptions{Search: "ERRAND", Sort: SortPrice})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 || views[0].Amount != 50 || views[1].Amount != 10 {
		t.Fatalf("unexpected views %+v", views)
	}
	if !views[0].Roles.CanAccept || views[0].Roles.IsOwner {
		t.Fatalf("unexpected roles %+v", views[0].Roles)
	}

	own, _ := env.hustles.ListForViewer(ctx, "p", ListOptions{})
	if len(own) != 3 || own[0].Title != "Errand run" || !own[0].Roles.IsOwner || own[0].Roles.CanAccept {
		t.Fatalf("unexpected owner view %+v", own)
	}
}

func TestContactFor(t *testing.T) {
	env := newTestEnv(t, CompletionSelfReport)
	ctx := context.Background()
	env.user(t, "p", "X")
	env.user(t, "w", "X")
	env.user(t, "s", "X")
	task := env.post(t, "p", "Help", 10)

	if _, err := env.hustles.ContactFor(ctx, task.ID, "w"); !domain.IsDomainError(err, domain.ErrCodeForbidden) {
		t.Fatalf("contact hidden before accept, got %v", err)
	}
	_, _ = env.hustles.Accept(ctx, task.ID, "w")

	contact, err := env.hustles.ContactFor(ctx, task.ID, "w")
	if err != nil {
		t.Fatalf("contact: %v", err)
	}
	if contact.UserID != "p" || contact.Phone != "555-p" {
		t.Fatalf("unexpected contact %+v", contact)
	}
	if _, err := env.hustles.ContactFor(ctx, task.ID, "s"); !domain.IsDomainError(err, domain.ErrCodeForbidden) {
		t.Fatalf("stranger must not see contact, got %v", err)
	}
}
