package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fastygo/hustle/domain"
	appLogger "github.com/fastygo/hustle/pkg/logger"
	"github.com/fastygo/hustle/repository"
)

const MinPasswordLength = 6

// ErrFederationDisabled is returned by the federated flow when no provider is configured.
var ErrFederationDisabled = domain.NewError(domain.ErrCodeInvalid, "federated sign-in is not configured")

// FederatedProvider turns an authorization code into a verified principal.
type FederatedProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Identify(ctx context.Context, code string) (*domain.FederatedIdentity, error)
}

type Options struct {
	Secret     string
	Issuer     string
	TokenTTL   time.Duration
	SessionTTL time.Duration
	Provider   FederatedProvider
	Now        func() time.Time
}

type SignUpInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	College    string `json:"college"`
	Department string `json:"department,omitempty"`
	Year       string `json:"year,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Result is an issued session. For a federated principal without a college
// affiliation User is nil and NeedsCollegeInfo is set.
type Result struct {
	User             *domain.User    `json:"user,omitempty"`
	Session          *domain.Session `json:"session"`
	Token            string          `json:"token"`
	ExpiresAt        time.Time       `json:"expires_at"`
	NeedsCollegeInfo bool            `json:"needs_college_info"`
	IdentityID       string          `json:"identity_id"`
}

// SessionEvent reports a session change. User is nil on sign-out.
type SessionEvent struct {
	SessionID string
	User      *domain.User
}

type UseCase struct {
	users       repository.UserRepository
	credentials repository.CredentialRepository
	sessions    repository.SessionRepository
	opts        Options
	logger      *zap.Logger

	mu        sync.Mutex
	listeners map[int]func(SessionEvent)
	nextID    int
}

func New(
	users repository.UserRepository,
	credentials repository.CredentialRepository,
	sessions repository.SessionRepository,
	logger *zap.Logger,
	opts Options,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 15 * time.Minute
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &UseCase{
		users:       users,
		credentials: credentials,
		sessions:    sessions,
		opts:        opts,
		logger:      logger,
		listeners:   make(map[int]func(SessionEvent)),
	}
}

func (uc *UseCase) SignUp(ctx context.Context, in SignUpInput) (*Result, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.College = strings.TrimSpace(in.College)
	switch {
	case in.Name == "":
		return nil, domain.Validation("name is required")
	case in.College == "":
		return nil, domain.Validation("college is required")
	case in.Email == "":
		return nil, domain.Validation("email is required")
	case len(in.Password) < MinPasswordLength:
		return nil, domain.Validation("password must be at least %d characters", MinPasswordLength)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, domain.Validation("email is not valid")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "hash password", err)
	}

	user := &domain.User{
		Name:       in.Name,
		Email:      in.Email,
		College:    in.College,
		Department: strings.TrimSpace(in.Department),
		Year:       strings.TrimSpace(in.Year),
		Phone:      strings.TrimSpace(in.Phone),
	}
	if err := uc.register(ctx, user, &domain.Credential{
		Provider:     domain.ProviderPassword,
		Subject:      in.Email,
		PasswordHash: string(hash),
	}); err != nil {
		return nil, err
	}

	uc.log(ctx).Info("user signed up", zap.String("user_id", user.ID), zap.String("college", user.College))
	return uc.issue(ctx, user, domain.ProviderPassword)
}

func (uc *UseCase) SignIn(ctx context.Context, email, password string) (*Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	cred, err := uc.credentials.Get(ctx, domain.ProviderPassword, email)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, uc.gateway(ctx, "load credential", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		uc.log(ctx).Warn("password mismatch", zap.String("user_id", cred.UserID))
		return nil, domain.ErrInvalidCredentials
	}

	user, err := uc.users.GetByID(ctx, cred.UserID)
	if err != nil {
		return nil, uc.gateway(ctx, "load user", err)
	}
	return uc.issue(ctx, user, domain.ProviderPassword)
}

func (uc *UseCase) FederatedURL(state string) (string, error) {
	if uc.opts.Provider == nil {
		return "", ErrFederationDisabled
	}
	return uc.opts.Provider.AuthCodeURL(state), nil
}

// SignInFederated signs in the principal behind code, registering a stub
// identity on first sight.
func (uc *UseCase) SignInFederated(ctx context.Context, code string) (*Result, error) {
	provider := uc.opts.Provider
	if provider == nil {
		return nil, ErrFederationDisabled
	}
	if strings.TrimSpace(code) == "" {
		return nil, domain.Validation("authorization code is required")
	}

	identity, err := provider.Identify(ctx, code)
	if err != nil {
		return nil, uc.gateway(ctx, "identify principal", err)
	}

	user, err := uc.federatedUser(ctx, provider.Name(), identity)
	if err != nil {
		return nil, err
	}
	return uc.issue(ctx, user, provider.Name())
}

func (uc *UseCase) federatedUser(ctx context.Context, provider string, identity *domain.FederatedIdentity) (*domain.User, error) {
	cred, err := uc.credentials.Get(ctx, provider, identity.Subject)
	switch {
	case err == nil:
		user, err := uc.users.GetByID(ctx, cred.UserID)
		if err != nil {
			return nil, uc.gateway(ctx, "load user", err)
		}
		return user, nil
	case !errors.Is(err, domain.ErrCredentialNotFound):
		return nil, uc.gateway(ctx, "load credential", err)
	}

	user := &domain.User{
		Name:  identity.Name,
		Email: strings.ToLower(identity.Email),
	}
	if user.Name == "" {
		user.Name = user.Email
	}
	if err := uc.register(ctx, user, &domain.Credential{
		Provider: provider,
		Subject:  identity.Subject,
	}); err != nil {
		return nil, err
	}
	uc.log(ctx).Info("federated identity registered",
		zap.String("user_id", user.ID),
		zap.String("provider", provider))
	return user, nil
}

// register creates user and its credential. A user whose credential could not
// be written is removed again so the email stays free for a retry.
func (uc *UseCase) register(ctx context.Context, user *domain.User, cred *domain.Credential) error {
	if err := uc.users.Create(ctx, user); err != nil {
		return uc.gateway(ctx, "create user", err)
	}
	cred.UserID = user.ID
	if err := uc.credentials.Create(ctx, cred); err != nil {
		if delErr := uc.users.Delete(ctx, user.ID); delErr != nil {
			uc.log(ctx).Error("orphaned user after failed registration",
				zap.String("user_id", user.ID),
				zap.Error(delErr))
		}
		return uc.gateway(ctx, "create credential", err)
	}
	return nil
}

// CompleteFederatedSignIn records the college affiliation of a federated identity.
func (uc *UseCase) CompleteFederatedSignIn(ctx context.Context, identityID, college, department, year string) (*domain.User, error) {
	if identityID == "" {
		return nil, domain.ErrUnauthorized
	}
	college = strings.TrimSpace(college)
	if college == "" {
		return nil, domain.Validation("college is required")
	}
	patch := domain.ProfilePatch{College: &college}
	if d := strings.TrimSpace(department); d != "" {
		patch.Department = &d
	}
	if y := strings.TrimSpace(year); y != "" {
		patch.Year = &y
	}

	user, err := uc.users.UpdateProfile(ctx, identityID, patch)
	if err != nil {
		return nil, uc.gateway(ctx, "complete profile", err)
	}
	uc.emit(SessionEvent{User: user})
	return user, nil
}

func (uc *UseCase) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.ErrUnauthorized
	}
	if err := uc.sessions.Delete(ctx, sessionID); err != nil {
		return uc.gateway(ctx, "delete session", err)
	}
	uc.emit(SessionEvent{SessionID: sessionID})
	return nil
}

// Refresh extends a live session and issues a fresh token for it.
func (uc *UseCase) Refresh(ctx context.Context, sessionID string) (*Result, error) {
	session, err := uc.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Renew(uc.opts.Now(), uc.opts.SessionTTL)
	if err := uc.sessions.Renew(ctx, session); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, uc.gateway(ctx, "renew session", err)
	}

	user, err := uc.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, uc.gateway(ctx, "load user", err)
	}
	return uc.result(ctx, user, session)
}

// Resolve returns the live session behind sessionID; anything else is unauthorized.
func (uc *UseCase) Resolve(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, domain.ErrUnauthorized
	}
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, uc.gateway(ctx, "load session", err)
	}
	if session.IsExpired(uc.opts.Now()) {
		_ = uc.sessions.Delete(ctx, sessionID)
		return nil, domain.ErrUnauthorized
	}
	return session, nil
}

// OnSessionChange registers fn for every sign-in, sign-up, refresh, profile
// completion and sign-out. The returned func unregisters it.
func (uc *UseCase) OnSessionChange(fn func(SessionEvent)) func() {
	uc.mu.Lock()
	id := uc.nextID
	uc.nextID++
	uc.listeners[id] = fn
	uc.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			uc.mu.Lock()
			delete(uc.listeners, id)
			uc.mu.Unlock()
		})
	}
}

func (uc *UseCase) emit(event SessionEvent) {
	uc.mu.Lock()
	fns := make([]func(SessionEvent), 0, len(uc.listeners))
	for _, fn := range uc.listeners {
		fns = append(fns, fn)
	}
	uc.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

func (uc *UseCase) issue(ctx context.Context, user *domain.User, provider string) (*Result, error) {
	session := domain.NewSession(uuid.NewString(), user.ID, provider, uc.opts.Now(), uc.opts.SessionTTL)
	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, uc.gateway(ctx, "save session", err)
	}
	return uc.result(ctx, user, session)
}

func (uc *UseCase) result(ctx context.Context, user *domain.User, session *domain.Session) (*Result, error) {
	expiresAt := uc.opts.Now().Add(uc.opts.TokenTTL)
	if session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}
	token, err := uc.sign(user.ID, session.ID, expiresAt)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "sign token", err)
	}

	res := &Result{
		Session:    session,
		Token:      token,
		ExpiresAt:  expiresAt,
		IdentityID: user.ID,
	}
	if user.ProfileComplete() {
		res.User = user
	} else {
		res.NeedsCollegeInfo = true
	}
	uc.emit(SessionEvent{SessionID: session.ID, User: user})
	uc.log(ctx).Debug("session issued", zap.String("user_id", user.ID), zap.String("session_id", session.ID))
	return res, nil
}

func (uc *UseCase) sign(userID, sessionID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"sid":     sessionID,
		"iat":     uc.opts.Now().Unix(),
		"exp":     expiresAt.Unix(),
	}
	if uc.opts.Issuer != "" {
		claims["iss"] = uc.opts.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(uc.opts.Secret))
}

func (uc *UseCase) gateway(ctx context.Context, op string, err error) error {
	wrapped := domain.Gateway(op, err)
	if domain.IsDomainError(wrapped, domain.ErrCodeGateway) {
		uc.log(ctx).Error("identity gateway call failed", zap.String("op", op), zap.Error(err))
	}
	return wrapped
}

func (uc *UseCase) log(ctx context.Context) *zap.Logger {
	return appLogger.FromContext(ctx, uc.logger)
}
