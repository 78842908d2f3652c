// Package service implements credential and Google sign-in, refresh-token rotation and logout.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"content-with-coffee/backend/internal/audit"
	"content-with-coffee/backend/internal/autherr"
	googleauth "content-with-coffee/backend/internal/oauth/google"
	"content-with-coffee/backend/internal/security"
	"content-with-coffee/backend/internal/server/middleware"
	userdomain "content-with-coffee/backend/internal/user/domain"
	userrepo "content-with-coffee/backend/internal/user/repository"
)

// Sentinel errors; transports map them by autherr.Kind.
var (
	ErrEmailRequired          = autherr.Validation("email is required")
	ErrPasswordRequired       = autherr.Validation("password is required")
	ErrPasswordTooLong        = autherr.Validation("password must be at most 72 bytes")
	ErrInvalidEmail           = autherr.Validation("invalid email format")
	ErrEmailAlreadyRegistered = autherr.Conflict("email already registered")
	ErrUserNotFound           = autherr.NotFound("user not found")
	ErrInvalidCredentials     = autherr.Unauthorized("invalid credentials")

	ErrAccessTokenMissing  = autherr.Unauthorized("token missing")
	ErrInvalidAccessToken  = autherr.Unauthorized("invalid token")
	ErrRefreshTokenMissing = autherr.Unauthorized("refresh token missing")
	ErrInvalidRefreshToken = autherr.Unauthorized("invalid or expired refresh token")
	ErrRefreshTokenReuse   = autherr.Unauthorized("refresh token already used or revoked")
	ErrTokenSecretMissing  = autherr.Configuration("token signing secret is not configured")

	ErrIDTokenRequired     = autherr.Validation("google id token is required")
	ErrGoogleNotConfigured = autherr.Configuration("google sign-in is not configured")
	ErrInvalidGoogleToken  = autherr.Unauthorized("google token verification failed")
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// AuthResult is the outcome of Login, Refresh and GoogleLogin.
type AuthResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	UserID           string
}

// RegisterInput holds credential registration fields. Profile fields are optional.
type RegisterInput struct {
	Email         string
	Password      string
	Name          string
	Bio           string
	FavoriteDrink string
	Location      string
}

// LogoutInput holds the tokens presented at logout. Both are optional.
type LogoutInput struct {
	RefreshToken string
	// OAuthToken is an upstream Google token to revoke best-effort.
	OAuthToken string
}

// UserRepo is the user persistence needed by the session service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	FindOrCreateFederated(ctx context.Context, u *userdomain.User) (*userdomain.User, error)
	AddRefreshToken(ctx context.Context, userID, digest string, keep int) error
	ConsumeRefreshToken(ctx context.Context, userID, digest string) (bool, error)
	HasRefreshToken(ctx context.Context, userID, digest string) (bool, error)
	RemoveRefreshToken(ctx context.Context, userID, digest string) error
}

// TokenRevoker revokes upstream OAuth tokens.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// SessionService implements the auth operations over a UserRepo.
type SessionService struct {
	users       UserRepo
	hasher      *security.Hasher
	tokens      *security.TokenProvider
	google      googleauth.Verifier
	revoker     TokenRevoker
	audit       audit.Recorder
	log         *slog.Logger
	maxSessions int
	now         func() time.Time
}

// NewSessionService returns a SessionService. google and revoker may be nil to disable Google
// sign-in and upstream revocation; recorder and logger may be nil to discard events.
// maxSessions caps stored refresh tokens per user (0 = unlimited).
func NewSessionService(
	users UserRepo,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	google googleauth.Verifier,
	revoker TokenRevoker,
	recorder audit.Recorder,
	logger *slog.Logger,
	maxSessions int,
) *SessionService {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionService{
		users:       users,
		hasher:      hasher,
		tokens:      tokens,
		google:      google,
		revoker:     revoker,
		audit:       recorder,
		log:         logger,
		maxSessions: maxSessions,
		now:         time.Now,
	}
}

// Register creates a non-federated user and returns its id. The store's unique email constraint
// backs the existence pre-check, so a concurrent duplicate also yields ErrEmailAlreadyRegistered.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (string, error) {
	email := userdomain.NormalizeEmail(in.Email)
	if email == "" {
		return "", ErrEmailRequired
	}
	if in.Password == "" {
		return "", ErrPasswordRequired
	}
	if !userdomain.ValidEmail(email) {
		return "", ErrInvalidEmail
	}
	if len(in.Password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", autherr.Internal("lookup user", err)
	}
	if existing != nil {
		s.record(ctx, audit.ActionRegister, audit.OutcomeFailure, "", "email already registered")
		return "", ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return "", autherr.Internal("hash password", err)
	}
	now := s.now().UTC()
	user := &userdomain.User{
		ID:            uuid.New().String(),
		Email:         email,
		Name:          strings.TrimSpace(in.Name),
		PasswordHash:  hashed,
		RefreshTokens: []string{},
		Bio:           strings.TrimSpace(in.Bio),
		FavoriteDrink: strings.TrimSpace(in.FavoriteDrink),
		Location:      strings.TrimSpace(in.Location),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			s.record(ctx, audit.ActionRegister, audit.OutcomeFailure, "", "email already registered")
			return "", ErrEmailAlreadyRegistered
		}
		return "", autherr.Internal("create user", err)
	}
	s.record(ctx, audit.ActionRegister, audit.OutcomeSuccess, user.ID, "")
	return user.ID, nil
}

// Login verifies email and password and starts a session.
func (s *SessionService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = userdomain.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, autherr.Internal("lookup user", err)
	}
	if user == nil {
		s.record(ctx, audit.ActionLogin, audit.OutcomeFailure, "", "user not found")
		return nil, ErrUserNotFound
	}
	if user.PasswordHash == "" {
		s.record(ctx, audit.ActionLogin, audit.OutcomeFailure, user.ID, "no password credential")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.log.ErrorContext(ctx, "auth.login.verify", "user_id", user.ID, "error", err)
		}
		s.record(ctx, audit.ActionLogin, audit.OutcomeFailure, user.ID, "bad password")
		return nil, ErrInvalidCredentials
	}
	res, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionLogin, audit.OutcomeSuccess, user.ID, "")
	return res, nil
}

// Refresh redeems a refresh token exactly once and returns a new pair. The token is consumed by a
// single conditional store update, so a replayed or concurrently redeemed token fails.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	user, digest, err := s.resolveRefresh(ctx, refreshToken)
	if err != nil {
		s.record(ctx, audit.ActionRefresh, audit.OutcomeFailure, "", err.Error())
		return nil, err
	}
	consumed, err := s.users.ConsumeRefreshToken(ctx, user.ID, digest)
	if err != nil {
		return nil, autherr.Internal("consume refresh token", err)
	}
	if !consumed {
		s.log.WarnContext(ctx, "auth.refresh.replay", "user_id", user.ID)
		s.record(ctx, audit.ActionRefreshReplay, audit.OutcomeFailure, user.ID, "token not in collection")
		return nil, ErrRefreshTokenReuse
	}
	res, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionRefresh, audit.OutcomeSuccess, user.ID, "")
	return res, nil
}

// VerifyRefresh checks a refresh token the same way Refresh does and returns its user id,
// without consuming it.
func (s *SessionService) VerifyRefresh(ctx context.Context, refreshToken string) (string, error) {
	user, digest, err := s.resolveRefresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	ok, err := s.users.HasRefreshToken(ctx, user.ID, digest)
	if err != nil {
		return "", autherr.Internal("check refresh token", err)
	}
	if !ok {
		return "", ErrRefreshTokenReuse
	}
	return user.ID, nil
}

// VerifyAccess validates an access token and returns its subject. It never touches the store.
func (s *SessionService) VerifyAccess(_ context.Context, accessToken string) (string, error) {
	if strings.TrimSpace(accessToken) == "" {
		return "", ErrAccessTokenMissing
	}
	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		if errors.Is(err, security.ErrMissingSecret) {
			return "", ErrTokenSecretMissing
		}
		return "", ErrInvalidAccessToken
	}
	return claims.Subject, nil
}

// Logout revokes the presented refresh token and, best-effort, an upstream OAuth token.
// It never fails: the acting user is the refresh token's subject (signature checked, expiry
// ignored) or else the authenticated user in ctx, and store errors are only logged.
func (s *SessionService) Logout(ctx context.Context, in LogoutInput) {
	if in.OAuthToken != "" && s.revoker != nil {
		if err := s.revoker.Revoke(ctx, in.OAuthToken); err != nil {
			s.log.WarnContext(ctx, "auth.logout.revoke_upstream", "error", err)
		}
	}

	userID := ""
	if in.RefreshToken != "" {
		if sub, err := s.tokens.RefreshSubject(in.RefreshToken); err == nil {
			userID = sub
		}
	}
	if userID == "" {
		userID, _ = middleware.GetUserID(ctx)
	}
	if userID != "" && in.RefreshToken != "" {
		digest := security.RefreshTokenDigest(in.RefreshToken)
		if err := s.users.RemoveRefreshToken(ctx, userID, digest); err != nil {
			s.log.ErrorContext(ctx, "auth.logout.remove_token", "user_id", userID, "error", err)
		}
	}
	s.record(ctx, audit.ActionLogout, audit.OutcomeSuccess, userID, "")
}

// GoogleLogin verifies a Google ID token, finds or creates the federated user for its email and
// starts a session.
func (s *SessionService) GoogleLogin(ctx context.Context, idToken string) (*AuthResult, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, ErrIDTokenRequired
	}
	if s.google == nil {
		return nil, ErrGoogleNotConfigured
	}
	ident, err := s.google.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, googleauth.ErrMissingClientID) {
			return nil, ErrGoogleNotConfigured
		}
		s.log.InfoContext(ctx, "auth.google_login.verify", "error", err)
		s.record(ctx, audit.ActionGoogleLogin, audit.OutcomeFailure, "", "id token rejected")
		return nil, ErrInvalidGoogleToken
	}
	email := userdomain.NormalizeEmail(ident.Email)
	now := s.now().UTC()
	user, err := s.users.FindOrCreateFederated(ctx, &userdomain.User{
		ID:            uuid.New().String(),
		Email:         email,
		Name:          strings.TrimSpace(ident.Name),
		Federated:     true,
		RefreshTokens: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, autherr.Internal("find or create federated user", err)
	}
	res, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionGoogleLogin, audit.OutcomeSuccess, user.ID, "")
	return res, nil
}

// Me returns the user with id userID.
func (s *SessionService) Me(ctx context.Context, userID string) (*userdomain.User, error) {
	if userID == "" {
		return nil, ErrAccessTokenMissing
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, autherr.Internal("lookup user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// resolveRefresh runs the checks shared by Refresh and VerifyRefresh: presence, signature and
// expiry, then that the subject still exists.
func (s *SessionService) resolveRefresh(ctx context.Context, refreshToken string) (*userdomain.User, string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, "", ErrRefreshTokenMissing
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, security.ErrMissingSecret) {
			return nil, "", ErrTokenSecretMissing
		}
		return nil, "", ErrInvalidRefreshToken
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, "", autherr.Internal("lookup user", err)
	}
	if user == nil {
		return nil, "", ErrUserNotFound
	}
	return user, security.RefreshTokenDigest(refreshToken), nil
}

// startSession mints a pair and appends the refresh digest to the user's collection.
func (s *SessionService) startSession(ctx context.Context, userID string) (*AuthResult, error) {
	pair, err := s.tokens.IssuePair(userID)
	if err != nil {
		if errors.Is(err, security.ErrMissingSecret) {
			s.log.ErrorContext(ctx, "auth.tokens.misconfigured", "error", err)
			return nil, ErrTokenSecretMissing
		}
		return nil, autherr.Internal("issue tokens", err)
	}
	digest := security.RefreshTokenDigest(pair.Refresh.Token)
	if err := s.users.AddRefreshToken(ctx, userID, digest, s.maxSessions); err != nil {
		if errors.Is(err, userrepo.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, autherr.Internal("store refresh token", err)
	}
	return &AuthResult{
		AccessToken:      pair.Access.Token,
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshToken:     pair.Refresh.Token,
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
		UserID:           userID,
	}, nil
}

func (s *SessionService) record(ctx context.Context, action audit.Action, outcome audit.Outcome, userID, reason string) {
	s.audit.Record(ctx, audit.Event{Action: action, Outcome: outcome, UserID: userID, Reason: reason})
}
