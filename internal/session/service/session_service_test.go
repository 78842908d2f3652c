package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"content-with-coffee/backend/internal/audit"
	"content-with-coffee/backend/internal/autherr"
	googleauth "content-with-coffee/backend/internal/oauth/google"
	"content-with-coffee/backend/internal/security"
	"content-with-coffee/backend/internal/server/middleware"
	userdomain "content-with-coffee/backend/internal/user/domain"
	userrepo "content-with-coffee/backend/internal/user/repository"
)

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]*userdomain.User
	// createErr, when set, is returned by Create after the existence pre-check passed.
	createErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*userdomain.User{}, byEmail: map[string]*userdomain.User{}}
}

func (r *memUserRepo) copyOf(u *userdomain.User) *userdomain.User {
	if u == nil {
		return nil
	}
	u2 := *u
	u2.RefreshTokens = append([]string{}, u.RefreshTokens...)
	return &u2
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOf(r.byID[id]), nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOf(r.byEmail[email]), nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.byEmail[u.Email]; ok {
		return userrepo.ErrDuplicateEmail
	}
	u2 := r.copyOf(u)
	r.byID[u.ID] = u2
	r.byEmail[u.Email] = u2
	return nil
}

func (r *memUserRepo) FindOrCreateFederated(ctx context.Context, u *userdomain.User) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byEmail[u.Email]; ok {
		return r.copyOf(existing), nil
	}
	u2 := r.copyOf(u)
	r.byID[u.ID] = u2
	r.byEmail[u.Email] = u2
	return r.copyOf(u2), nil
}

func (r *memUserRepo) AddRefreshToken(ctx context.Context, userID, digest string, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return userrepo.ErrUserNotFound
	}
	u.RefreshTokens = append(u.RefreshTokens, digest)
	if keep > 0 && len(u.RefreshTokens) > keep {
		u.RefreshTokens = append([]string{}, u.RefreshTokens[len(u.RefreshTokens)-keep:]...)
	}
	return nil
}

func (r *memUserRepo) ConsumeRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return false, nil
	}
	for i, d := range u.RefreshTokens {
		if d == digest {
			u.RefreshTokens = append(u.RefreshTokens[:i:i], u.RefreshTokens[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *memUserRepo) HasRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	return ok && u.HasRefreshToken(digest), nil
}

func (r *memUserRepo) RemoveRefreshToken(ctx context.Context, userID, digest string) error {
	_, err := r.ConsumeRefreshToken(ctx, userID, digest)
	return err
}

func (r *memUserRepo) tokenCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[userID]; ok {
		return len(u.RefreshTokens)
	}
	return -1
}

func (r *memUserRepo) delete(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[userID]; ok {
		delete(r.byEmail, u.Email)
		delete(r.byID, userID)
	}
}

type fakeVerifier struct {
	ident *googleauth.Identity
	err   error
}

func (f *fakeVerifier) Verify(ctx context.Context, idToken string) (*googleauth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ident, nil
}

type fakeRevoker struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (f *fakeRevoker) Revoke(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return f.err
}

type memRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memRecorder) Record(ctx context.Context, e audit.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *memRecorder) has(action audit.Action, outcome audit.Outcome) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Action == action && e.Outcome == outcome {
			return true
		}
	}
	return false
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc      *SessionService
	repo     *memUserRepo
	clock    *testClock
	verifier *fakeVerifier
	revoker  *fakeRevoker
	recorder *memRecorder
}

func newTestEnv(t *testing.T, maxSessions int) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     newMemUserRepo(),
		clock:    &testClock{t: time.Now()},
		verifier: &fakeVerifier{},
		revoker:  &fakeRevoker{},
		recorder: &memRecorder{},
	}
	tokens := security.NewTestTokenProvider(security.WithClock(env.clock.Now))
	env.svc = NewSessionService(env.repo, security.NewHasher(security.MinPasswordCost), tokens,
		env.verifier, env.revoker, env.recorder, nil, maxSessions)
	return env
}

func (e *testEnv) register(t *testing.T, email, password string) string {
	t.Helper()
	id, err := e.svc.Register(context.Background(), RegisterInput{Email: email, Password: password})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return id
}

func assertKind(t *testing.T, err error, want autherr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := autherr.KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, want, err)
	}
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	id, err := env.svc.Register(ctx, RegisterInput{
		Email: "  A@B.com ", Password: "secret123", Name: " Ada ", FavoriteDrink: "cortado",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == "" {
		t.Fatal("Register should return user id")
	}
	u, _ := env.repo.GetByEmail(ctx, "a@b.com")
	if u == nil {
		t.Fatal("user should be stored under normalized email")
	}
	if u.ID != id || u.Name != "Ada" || u.FavoriteDrink != "cortado" {
		t.Errorf("stored user = %+v", u)
	}
	if u.PasswordHash == "" || u.PasswordHash == "secret123" {
		t.Error("password must be stored hashed")
	}
	if len(u.RefreshTokens) != 0 {
		t.Error("new user should have no refresh tokens")
	}
	if !env.recorder.has(audit.ActionRegister, audit.OutcomeSuccess) {
		t.Error("register success should be audited")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t, 0)
	env.register(t, "a@b.com", "secret123")

	_, err := env.svc.Register(context.Background(), RegisterInput{Email: "A@b.com", Password: "other-pass"})
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("second Register: want ErrEmailAlreadyRegistered, got %v", err)
	}
	assertKind(t, err, autherr.KindConflict)
}

func TestRegister_StoreUniqueViolationIsConflict(t *testing.T) {
	env := newTestEnv(t, 0)
	env.repo.createErr = userrepo.ErrDuplicateEmail

	_, err := env.svc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "secret123"})
	assertKind(t, err, autherr.KindConflict)
}

func TestRegister_StoreFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, 0)
	env.repo.createErr = errors.New("connection reset")

	_, err := env.svc.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "secret123"})
	assertKind(t, err, autherr.KindInternal)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, 0)
	long := make([]byte, 73)
	for i := range long {
		long[i] = 'x'
	}
	testCases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"missing email", RegisterInput{Password: "secret123"}, ErrEmailRequired},
		{"blank email", RegisterInput{Email: "   ", Password: "secret123"}, ErrEmailRequired},
		{"missing password", RegisterInput{Email: "a@b.com"}, ErrPasswordRequired},
		{"malformed email", RegisterInput{Email: "not-an-email", Password: "secret123"}, ErrInvalidEmail},
		{"password too long", RegisterInput{Email: "a@b.com", Password: string(long)}, ErrPasswordTooLong},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Register(context.Background(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Register: want %v, got %v", tc.want, err)
			}
			assertKind(t, err, autherr.KindValidation)
		})
	}
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.register(t, "a@b.com", "secret123")

	res, err := env.svc.Login(context.Background(), "A@B.COM", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.UserID != id || res.AccessToken == "" || res.RefreshToken == "" {
		t.Errorf("Login result = %+v", res)
	}
	if !res.RefreshExpiresAt.After(res.AccessExpiresAt) {
		t.Error("refresh expiry should be after access expiry")
	}
	if env.repo.tokenCount(id) != 1 {
		t.Errorf("stored refresh tokens = %d, want 1", env.repo.tokenCount(id))
	}
	u, _ := env.repo.GetByID(context.Background(), id)
	if u.RefreshTokens[0] == res.RefreshToken {
		t.Error("raw refresh token must not be stored")
	}
	if u.RefreshTokens[0] != security.RefreshTokenDigest(res.RefreshToken) {
		t.Error("stored value should be the refresh token digest")
	}
}

func TestLogin_ConsecutiveLoginsYieldDistinctTokens(t *testing.T) {
	env := newTestEnv(t, 0)
	env.register(t, "a@b.com", "secret123")
	ctx := context.Background()

	first, err := env.svc.Login(ctx, "a@b.com", "secret123")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	second, err := env.svc.Login(ctx, "a@b.com", "secret123")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if first.AccessToken == second.AccessToken {
		t.Error("access tokens should differ")
	}
	if first.RefreshToken == second.RefreshToken {
		t.Error("refresh tokens should differ")
	}
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t, 0)
	env.register(t, "a@b.com", "secret123")
	ctx := context.Background()

	_, err := env.svc.Login(ctx, "a@b.com", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", err)
	}
	assertKind(t, err, autherr.KindUnauthorized)
	if !env.recorder.has(audit.ActionLogin, audit.OutcomeFailure) {
		t.Error("failed login should be audited")
	}

	_, err = env.svc.Login(ctx, "nobody@b.com", "secret123")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown email: want ErrUserNotFound, got %v", err)
	}
	assertKind(t, err, autherr.KindNotFound)

	_, err = env.svc.Login(ctx, "", "secret123")
	assertKind(t, err, autherr.KindValidation)
	_, err = env.svc.Login(ctx, "a@b.com", "")
	assertKind(t, err, autherr.KindValidation)
}

func TestLogin_FederatedUserHasNoPassword(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.verifier.ident = &googleauth.Identity{Email: "g@b.com", Name: "Grace"}
	if _, err := env.svc.GoogleLogin(ctx, "id-token"); err != nil {
		t.Fatalf("GoogleLogin: %v", err)
	}

	_, err := env.svc.Login(ctx, "g@b.com", "anything")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("password login for federated user: want ErrInvalidCredentials, got %v", err)
	}
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.register(t, "a@b.com", "secret123")
	ctx := context.Background()

	login, err := env.svc.Login(ctx, "a@b.com", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rotated, err := env.svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh R1: %v", err)
	}
	if rotated.UserID != id {
		t.Errorf("Refresh UserID = %q, want %q", rotated.UserID, id)
	}
	if rotated.RefreshToken == login.RefreshToken || rotated.AccessToken == login.AccessToken {
		t.Error("rotation should mint new tokens")
	}
	if env.repo.tokenCount(id) != 1 {
		t.Errorf("stored refresh tokens = %d, want 1 after rotation", env.repo.tokenCount(id))
	}

	_, err = env.svc.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrRefreshTokenReuse) {
		t.Fatalf("replay R1: want ErrRefreshTokenReuse, got %v", err)
	}
	assertKind(t, err, autherr.KindUnauthorized)
	if !env.recorder.has(audit.ActionRefreshReplay, audit.OutcomeFailure) {
		t.Error("replay should be audited")
	}

	if _, err := env.svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Errorf("R2 should still be redeemable: %v", err)
	}
}

func TestRefresh_ConcurrentRedemptionHasOneWinner(t *testing.T) {
	env := newTestEnv(t, 0)
	env.register(t, "a@b.com", "secret123")
	ctx := context.Background()
	login, err := env.svc.Login(ctx, "a@b.com", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		replays int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.svc.Refresh(ctx, login.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrRefreshTokenReuse):
				replays++
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || replays != n-1 {
		t.Errorf("wins = %d, replays = %d; want 1 and %d", wins, replays, n-1)
	}
}

func TestRefresh_Failures(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.register(t, "a@b.com", "secret123")
	ctx := context.Background()

	_, err := env.svc.Refresh(ctx, "")
	if !errors.Is(err, ErrRefreshTokenMissing) {
		t.Fatalf("empty token: want ErrRefreshTokenMissing, got %v", err)
	}

	_, err = env.svc.Refresh(ctx, "not-a-jwt")
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("garbage token: want ErrInvalidRefreshToken, got %v", err)
	}

	login, _ := env.svc.Login(ctx, "a@b.com", "secret123")
	_, err = env.svc.Refresh(ctx, login.AccessToken)
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("access token as refresh: want ErrInvalidRefreshToken, got %v", err)
	}

	env.clock.Advance(8 * 24 * time.Hour)
	_, err = env.svc.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expired token: want ErrInvalidRefreshToken, got %v", err)
	}
	env.clock.Advance(-8 * 24 * time.Hour)

	env.repo.delete(id)
	_, err = env.svc.Refresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("deleted user: want ErrUserNotFound, got %v", err)
	}
}

func TestVerifyRefresh_HasNoSideEffects(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.register(t, "a@b.com", "secret123")
	ctx := context.Background()
	login, _ := env.svc.Login(ctx, "a@b.com", "secret123")

	for i := 0; i < 3; i++ {
		got, err := env.svc.VerifyRefresh(ctx, login.RefreshToken)
		if err != nil {
			t.Fatalf("VerifyRefresh #%d: %v", i, err)
		}
		if got != id {
			t.Errorf("VerifyRefresh = %q, want %q", got, id)
		}
	}
	if env.repo.tokenCount(id) != 1 {
		t.Error("VerifyRefresh must not modify the stored collection")
	}

	if _, err := env.svc.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("Refresh after verify: %v", err)
	}
	_, err := env.svc.VerifyRefresh(ctx, login.RefreshToken)
	if !errors.Is(err, ErrRefreshTokenReuse) {
		t.Errorf("VerifyRefresh of redeemed token: want ErrRefreshTokenReuse, got %v", err)
	}
}

func TestVerifyAccess(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.register(t, "a@b.com", "secret123")
	ctx := context.Background()
	login, _ := env.svc.Login(ctx, "a@b.com", "secret123")

	got, err := env.svc.VerifyAccess(ctx, login.AccessToken)
	if err != nil || got != id {
		t.Fatalf("VerifyAccess = %q, %v; want %q", got, err, id)
	}

	_, err = env.svc.VerifyAccess(ctx, "")
	if !errors.Is(err, ErrAccessTokenMissing) {
		t.Errorf("empty: want ErrAccessTokenMissing, got %v", err)
	}
	_, err = env.svc.VerifyAccess(ctx, login.RefreshToken)
	if !errors.Is(err, ErrInvalidAccessToken) {
		t.Errorf("refresh as access: want ErrInvalidAccessToken, got %v", err)
	}

	env.clock.Advance(16 * time.Minute)
	_, err = env.svc.VerifyAccess(ctx, login.AccessToken)
	if !errors.Is(err, ErrInvalidAccessToken) {
		t.Errorf("expired: want ErrInvalidAccessToken, got %v", err)
	}
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.register(t, "a@b.com", "secret123")
	ctx := context.Background()
	login, _ := env.svc.Login(ctx, "a@b.com", "secret123")
	rotated, err := env.svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	env.svc.Logout(ctx, LogoutInput{RefreshToken: rotated.RefreshToken})

	if env.repo.tokenCount(id) != 0 {
		t.Errorf("stored refresh tokens = %d, want 0 after logout", env.repo.tokenCount(id))
	}
	_, err = env.svc.Refresh(ctx, rotated.RefreshToken)
	assertKind(t, err, autherr.KindUnauthorized)
	if !env.recorder.has(audit.ActionLogout, audit.OutcomeSuccess) {
		t.Error("logout should be audited")
	}
}

func TestLogout_ExpiredRefreshTokenIsStillPurged(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.register(t, "a@b.com", "secret123")
	ctx := context.Background()
	login, _ := env.svc.Login(ctx, "a@b.com", "secret123")

	env.clock.Advance(30 * 24 * time.Hour)
	env.svc.Logout(ctx, LogoutInput{RefreshToken: login.RefreshToken})

	if env.repo.tokenCount(id) != 0 {
		t.Error("expired refresh token should be removed at logout")
	}
}

func TestLogout_UsesContextUserWhenTokenUnverifiable(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.register(t, "a@b.com", "secret123")
	ctx := context.Background()

	// A token that verifies under no secret is still removed from the authenticated user's collection.
	if err := env.repo.AddRefreshToken(ctx, id, security.RefreshTokenDigest("opaque"), 0); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	env.svc.Logout(middleware.WithUserID(ctx, id), LogoutInput{RefreshToken: "opaque"})

	if env.repo.tokenCount(id) != 0 {
		t.Error("token should be removed for context user")
	}
}

func TestLogout_NeverFails(t *testing.T) {
	env := newTestEnv(t, 0)
	env.revoker.err = errors.New("google unavailable")
	ctx := context.Background()

	// No token, no user, failing upstream revoke: all tolerated.
	env.svc.Logout(ctx, LogoutInput{})
	env.svc.Logout(ctx, LogoutInput{RefreshToken: "garbage", OAuthToken: "ya29.x"})

	if len(env.revoker.tokens) != 1 || env.revoker.tokens[0] != "ya29.x" {
		t.Errorf("revoked tokens = %v, want [ya29.x]", env.revoker.tokens)
	}
}

func TestGoogleLogin_CreatesFederatedUserOnce(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	env.verifier.ident = &googleauth.Identity{Subject: "g-1", Email: "G@B.com", Name: "Grace"}

	first, err := env.svc.GoogleLogin(ctx, "id-token")
	if err != nil {
		t.Fatalf("GoogleLogin: %v", err)
	}
	u, _ := env.repo.GetByEmail(ctx, "g@b.com")
	if u == nil || !u.Federated || u.PasswordHash != "" || u.Name != "Grace" {
		t.Fatalf("federated user = %+v", u)
	}

	second, err := env.svc.GoogleLogin(ctx, "id-token")
	if err != nil {
		t.Fatalf("second GoogleLogin: %v", err)
	}
	if first.UserID != second.UserID {
		t.Error("second sign-in should reuse the same user")
	}
	if first.RefreshToken == second.RefreshToken {
		t.Error("each sign-in should mint a distinct refresh token")
	}
	if env.repo.tokenCount(first.UserID) != 2 {
		t.Errorf("stored refresh tokens = %d, want 2", env.repo.tokenCount(first.UserID))
	}
}

func TestGoogleLogin_Failures(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	_, err := env.svc.GoogleLogin(ctx, " ")
	if !errors.Is(err, ErrIDTokenRequired) {
		t.Fatalf("missing token: want ErrIDTokenRequired, got %v", err)
	}
	assertKind(t, err, autherr.KindValidation)

	env.verifier.err = googleauth.ErrMissingClientID
	_, err = env.svc.GoogleLogin(ctx, "id-token")
	assertKind(t, err, autherr.KindConfiguration)

	for _, cause := range []error{googleauth.ErrInvalidIDToken, googleauth.ErrEmailMissing, googleauth.ErrEmailUnverified} {
		env.verifier.err = cause
		_, err = env.svc.GoogleLogin(ctx, "id-token")
		if !errors.Is(err, ErrInvalidGoogleToken) {
			t.Errorf("%v: want ErrInvalidGoogleToken, got %v", cause, err)
		}
	}

	noGoogle := NewSessionService(newMemUserRepo(), security.NewHasher(10), security.NewTestTokenProvider(), nil, nil, nil, nil, 0)
	_, err = noGoogle.GoogleLogin(ctx, "id-token")
	assertKind(t, err, autherr.KindConfiguration)
}

func TestSessionCap_EvictsOldestRefreshToken(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.register(t, "a@b.com", "secret123")
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		res, err := env.svc.Login(ctx, "a@b.com", "secret123")
		if err != nil {
			t.Fatalf("Login #%d: %v", i, err)
		}
		tokens = append(tokens, res.RefreshToken)
	}
	if env.repo.tokenCount(id) != 2 {
		t.Fatalf("stored refresh tokens = %d, want 2", env.repo.tokenCount(id))
	}
	if _, err := env.svc.Refresh(ctx, tokens[0]); !errors.Is(err, ErrRefreshTokenReuse) {
		t.Errorf("evicted token: want ErrRefreshTokenReuse, got %v", err)
	}
	if _, err := env.svc.Refresh(ctx, tokens[2]); err != nil {
		t.Errorf("newest token: %v", err)
	}
}

func TestMissingSecretsIsConfigurationError(t *testing.T) {
	repo := newMemUserRepo()
	tokens := security.NewTokenProvider("", "", "iss", "aud", time.Minute, time.Hour)
	svc := NewSessionService(repo, security.NewHasher(10), tokens, nil, nil, nil, nil, 0)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret123"}); err != nil {
		t.Fatalf("Register should not need token secrets: %v", err)
	}
	_, err := svc.Login(ctx, "a@b.com", "secret123")
	if !errors.Is(err, ErrTokenSecretMissing) {
		t.Fatalf("Login: want ErrTokenSecretMissing, got %v", err)
	}
	assertKind(t, err, autherr.KindConfiguration)

	_, err = svc.Refresh(ctx, "a.b.c")
	assertKind(t, err, autherr.KindConfiguration)
	_, err = svc.VerifyAccess(ctx, "a.b.c")
	assertKind(t, err, autherr.KindConfiguration)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.register(t, "a@b.com", "secret123")
	ctx := context.Background()

	u, err := env.svc.Me(ctx, id)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if u.Email != "a@b.com" {
		t.Errorf("Me email = %q", u.Email)
	}

	env.repo.delete(id)
	_, err = env.svc.Me(ctx, id)
	assertKind(t, err, autherr.KindNotFound)
}
