package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v4"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/repository"
	"github.com/fastygo/hustle/repository/memory"
)

type fakeProvider struct {
	identities map[string]domain.FederatedIdentity
}

func (p fakeProvider) Name() string { return domain.ProviderGoogle }

func (p fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

func (p fakeProvider) Identify(_ context.Context, code string) (*domain.FederatedIdentity, error) {
	identity, ok := p.identities[code]
	if !ok {
		return nil, domain.NewError(domain.ErrCodeUnauthorized, "code rejected")
	}
	return &identity, nil
}

func newAuth(t *testing.T, provider FederatedProvider) (*UseCase, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	uc := New(store.Users(), store.Credentials(), store.Sessions(), nil, Options{
		Secret:   "test-secret",
		Issuer:   "hustle",
		Provider: provider,
	})
	return uc, store
}

func signUp(t *testing.T, uc *UseCase, email string) *Result {
	t.Helper()
	res, err := uc.SignUp(context.Background(), SignUpInput{
		Email:    email,
		Password: "secret1",
		Name:     "Asha",
		College:  "X",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	return res
}

// brokenCredentials fails every write until fixed.
type brokenCredentials struct {
	repository.CredentialRepository
	broken bool
}

func (c *brokenCredentials) Create(ctx context.Context, cred *domain.Credential) error {
	if c.broken {
		return errors.New("connection reset")
	}
	return c.CredentialRepository.Create(ctx, cred)
}

func TestFailedSignUpLeavesNoUserBehind(t *testing.T) {
	store := memory.NewStore()
	creds := &brokenCredentials{CredentialRepository: store.Credentials(), broken: true}
	uc := New(store.Users(), creds, store.Sessions(), nil, Options{Secret: "test-secret", Issuer: "hustle"})
	ctx := context.Background()
	in := SignUpInput{Email: "lee@campus.edu", Password: "secret1", Name: "Lee", College: "X"}

	if _, err := uc.SignUp(ctx, in); !domain.IsDomainError(err, domain.ErrCodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	creds.broken = false
	res, err := uc.SignUp(ctx, in)
	if err != nil {
		t.Fatalf("retry after failure should succeed, got %v", err)
	}
	if _, err := uc.SignIn(ctx, "lee@campus.edu", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := store.Users().GetByID(ctx, res.User.ID); err != nil {
		t.Fatalf("registered user missing: %v", err)
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	uc, _ := newAuth(t, nil)
	ctx := context.Background()

	res := signUp(t, uc, "Asha@Campus.edu")
	if res.User == nil || res.User.Email != "asha@campus.edu" || res.NeedsCollegeInfo {
		t.Fatalf("unexpected sign up result %+v", res)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(res.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	}); err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims["user_id"] != res.User.ID || claims["sid"] != res.Session.ID || claims["iss"] != "hustle" {
		t.Fatalf("unexpected claims %v", claims)
	}

	in, err := uc.SignIn(ctx, "asha@campus.edu", "secret1")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if in.User.ID != res.User.ID || in.Session.ID == res.Session.ID {
		t.Fatalf("sign in should open a new session for the same user")
	}

	for _, tc := range []struct{ email, password string }{
		{"asha@campus.edu", "wrong-pass"},
		{"nobody@campus.edu", "secret1"},
		{"", ""},
	} {
		if _, err := uc.SignIn(ctx, tc.email, tc.password); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Errorf("%s: expected invalid credentials, got %v", tc.email, err)
		}
	}
}

func TestSignUpValidation(t *testing.T) {
	uc, _ := newAuth(t, nil)
	ctx := context.Background()

	cases := map[string]SignUpInput{
		"short password": {Email: "a@b.c", Password: "12345", Name: "A", College: "X"},
		"no name":        {Email: "a@b.c", Password: "123456", College: "X"},
		"no college":     {Email: "a@b.c", Password: "123456", Name: "A"},
		"no email":       {Password: "123456", Name: "A", College: "X"},
		"bad email":      {Email: "not-an-email", Password: "123456", Name: "A", College: "X"},
	}
	for name, in := range cases {
		if _, err := uc.SignUp(ctx, in); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}

	signUp(t, uc, "dup@campus.edu")
	if _, err := uc.SignUp(ctx, SignUpInput{Email: "DUP@campus.edu", Password: "123456", Name: "B", College: "X"}); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestFederatedSignInRegistersStubThenCompletes(t *testing.T) {
	provider := fakeProvider{identities: map[string]domain.FederatedIdentity{
		"code-1": {Provider: domain.ProviderGoogle, Subject: "g-1", Email: "ravi@campus.edu", Name: "Ravi"},
	}}
	uc, _ := newAuth(t, provider)
	ctx := context.Background()

	url, err := uc.FederatedURL("xyz")
	if err != nil || url != "https://accounts.example/auth?state=xyz" {
		t.Fatalf("url = %q, %v", url, err)
	}

	first, err := uc.SignInFederated(ctx, "code-1")
	if err != nil {
		t.Fatalf("federated sign in: %v", err)
	}
	if first.User != nil || !first.NeedsCollegeInfo || first.IdentityID == "" {
		t.Fatalf("new principal should need college info, got %+v", first)
	}

	user, err := uc.CompleteFederatedSignIn(ctx, first.IdentityID, "X", "CSE", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if user.College != "X" || user.Department != "CSE" || user.Name != "Ravi" {
		t.Fatalf("unexpected user %+v", user)
	}

	again, err := uc.SignInFederated(ctx, "code-1")
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if again.NeedsCollegeInfo || again.User == nil || again.User.ID != first.IdentityID {
		t.Fatalf("returning principal should sign straight in, got %+v", again)
	}

	if _, err := uc.SignInFederated(ctx, "bogus"); !domain.IsDomainError(err, domain.ErrCodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := uc.CompleteFederatedSignIn(ctx, first.IdentityID, " ", "", ""); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFederatedFlowDisabledWithoutProvider(t *testing.T) {
	uc, _ := newAuth(t, nil)
	if _, err := uc.FederatedURL("s"); !errors.Is(err, ErrFederationDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
	if _, err := uc.SignInFederated(context.Background(), "c"); !errors.Is(err, ErrFederationDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
}

func TestRefreshResolveAndSignOut(t *testing.T) {
	uc, _ := newAuth(t, nil)
	ctx := context.Background()
	res := signUp(t, uc, "s@campus.edu")

	session, err := uc.Resolve(ctx, res.Session.ID)
	if err != nil || session.UserID != res.User.ID {
		t.Fatalf("resolve: %+v, %v", session, err)
	}

	refreshed, err := uc.Refresh(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Session.ID != res.Session.ID || refreshed.Token == "" {
		t.Fatalf("unexpected refresh %+v", refreshed)
	}

	if err := uc.SignOut(ctx, res.Session.ID); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := uc.Resolve(ctx, res.Session.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after sign out, got %v", err)
	}
	if _, err := uc.Refresh(ctx, res.Session.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized refresh, got %v", err)
	}
}

func TestOnSessionChange(t *testing.T) {
	uc, _ := newAuth(t, nil)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []SessionEvent
	)
	unsubscribe := uc.OnSessionChange(func(e SessionEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	res := signUp(t, uc, "e@campus.edu")
	_ = uc.SignOut(ctx, res.Session.ID)
	unsubscribe()
	unsubscribe()
	signUp(t, uc, "f@campus.edu")

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].User == nil || events[0].User.ID != res.User.ID {
		t.Fatalf("sign up event should carry the user, got %+v", events[0])
	}
	if events[1].User != nil || events[1].SessionID != res.Session.ID {
		t.Fatalf("sign out event should carry no user, got %+v", events[1])
	}
}

func TestListenerMayCallBackIntoUseCase(t *testing.T) {
	uc, _ := newAuth(t, nil)
	ctx := context.Background()

	done := make(chan struct{}, 1)
	uc.OnSessionChange(func(e SessionEvent) {
		if e.User == nil {
			return
		}
		if _, err := uc.Resolve(ctx, e.SessionID); err == nil {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	signUp(t, uc, "g@campus.edu")

	select {
	case <-done:
	default:
		t.Fatalf("listener could not resolve the new session")
	}
}
