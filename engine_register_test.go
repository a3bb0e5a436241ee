package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/authcore-io/authcore/password"
)

type mockUserStore struct {
	mu      sync.Mutex
	byID    map[string]User
	byEmail map[string]string
	nextID  int

	createErr error
	saveErr   error
	deleteErr error

	createCalls int
	saveCalls   int
	deleteCalls int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (m *mockUserStore) FindByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *mockUserStore) FindByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStore) Create(_ context.Context, input CreateUserInput) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if m.createErr != nil {
		return User{}, m.createErr
	}
	if _, exists := m.byEmail[input.Email]; exists {
		return User{}, ErrDuplicateEmail
	}

	m.nextID++
	user := User{
		ID:           fmt.Sprintf("u%d", m.nextID),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: input.PasswordHash,
		CreatedAt:    input.CreatedAt,
		UpdatedAt:    input.CreatedAt,
	}
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user.ID
	return user, nil
}

func (m *mockUserStore) Save(_ context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveCalls++
	if m.saveErr != nil {
		return User{}, m.saveErr
	}
	if _, ok := m.byID[user.ID]; !ok {
		return User{}, ErrUserNotFound
	}
	m.byID[user.ID] = user
	return user, nil
}

func (m *mockUserStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	user, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(m.byID, id)
	delete(m.byEmail, user.Email)
	return nil
}

// put seeds a record directly, bypassing Create.
func (m *mockUserStore) put(user User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user.ID
}

func (m *mockUserStore) get(email string) (User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return User{}, false
	}
	return m.byID[id], true
}

func (m *mockUserStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type captureMailer struct {
	mu      sync.Mutex
	links   map[string]string
	codes   map[string]string
	linkErr error
	codeErr error
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{
		links: make(map[string]string),
		codes: make(map[string]string),
	}
}

func (c *captureMailer) SendVerificationLink(_ context.Context, to, _, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.linkErr != nil {
		return c.linkErr
	}
	c.links[to] = link
	return nil
}

func (c *captureMailer) SendLoginCode(_ context.Context, to, _, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codeErr != nil {
		return c.codeErr
	}
	c.codes[to] = code
	return nil
}

func (c *captureMailer) lastLink(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.links[to]
}

func (c *captureMailer) lastCode(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[to]
}

type manualClock struct {
	mu      sync.Mutex
	current time.Time
}

func newManualClock(at time.Time) *manualClock {
	return &manualClock{current: at}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// testEngineConfig trades hashing strength for speed and disables the
// throttles; individual tests re-enable what they exercise.
func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Registration.Throttle.Enabled = false
	cfg.TwoFactor.IssueThrottle.Enabled = false
	cfg.TwoFactor.VerifyThrottle.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, users UserStore, clock Clock, mailer *captureMailer, cfg Config) *Engine {
	t.Helper()

	b := NewBuilder().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users)
	if clock != nil {
		b = b.WithClock(clock)
	}
	if mailer != nil {
		b = b.WithMailer(mailer)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// registerVerified runs the full register plus email-verification flow
// and returns the new user's ID.
func registerVerified(t *testing.T, engine *Engine, mailer *captureMailer, email, pass string) string {
	t.Helper()

	ctx := context.Background()
	result, err := engine.Register(ctx, email, "Test User", pass)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := engine.VerifyRegistration(ctx, mailer.lastLink(email)); err != nil {
		t.Fatalf("VerifyRegistration failed: %v", err)
	}
	return result.UserID
}

func TestRegisterCreatesUnverifiedUserAndMailsToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	users := newMockUserStore()
	mailer := newCaptureMailer()
	engine := newTestEngine(t, rdb, users, nil, mailer, testEngineConfig())

	result, err := engine.Register(context.Background(), "alice@example.com", "Alice", "correct-horse")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.UserID == "" {
		t.Fatal("expected non-empty user ID")
	}

	user, ok := users.get("alice@example.com")
	if !ok {
		t.Fatal("expected user record to exist")
	}
	if user.EmailVerified {
		t.Fatal("expected new user to be unverified")
	}
	if user.PasswordHash == "" || user.PasswordHash == "correct-horse" {
		t.Fatalf("expected hashed password, got %q", user.PasswordHash)
	}

	token := mailer.lastLink("alice@example.com")
	if token == "" {
		t.Fatal("expected verification token to be mailed")
	}

	found := false
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "art:") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a registration token key in redis")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	users := newMockUserStore()
	mailer := newCaptureMailer()
	engine := newTestEngine(t, rdb, users, nil, mailer, testEngineConfig())

	ctx := context.Background()
	if _, err := engine.Register(ctx, "alice@example.com", "Alice", "correct-horse"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	_, err := engine.Register(ctx, "alice@example.com", "Mallory", "other-password")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if users.count() != 1 {
		t.Fatalf("expected exactly one user, got %d", users.count())
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, nil, newCaptureMailer(), testEngineConfig())

	ctx := context.Background()
	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "correct-horse"},
		{"no at sign", "alice.example.com", "correct-horse"},
		{"empty password", "alice@example.com", ""},
	}
	for _, tc := range cases {
		if _, err := engine.Register(ctx, tc.email, "Alice", tc.password); !errors.Is(err, ErrRegistrationInvalid) {
			t.Fatalf("%s: expected ErrRegistrationInvalid, got %v", tc.name, err)
		}
	}
	if users.count() != 0 {
		t.Fatalf("expected no users after rejected input, got %d", users.count())
	}
}

func TestRegisterShortPassword(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, nil, newCaptureMailer(), testEngineConfig())

	_, err := engine.Register(context.Background(), "alice@example.com", "Alice", "short")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if users.count() != 0 {
		t.Fatal("expected no user after password policy rejection")
	}
}

func TestRegisterRollsBackUserWhenTokenSaveFails(t *testing.T) {
	mr, rdb := newTestRedis(t)

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, nil, newCaptureMailer(), testEngineConfig())

	mr.Close()

	_, err := engine.Register(context.Background(), "alice@example.com", "Alice", "correct-horse")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if users.count() != 0 {
		t.Fatalf("expected user rollback after token persistence failure, got %d users", users.count())
	}
	if users.deleteCalls != 1 {
		t.Fatalf("expected one rollback delete, got %d", users.deleteCalls)
	}
}

func TestRegisterBuildsVerificationLinkFromBaseURL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := testEngineConfig()
	cfg.Mail.VerificationBaseURL = "https://accounts.example.com/verify"

	mailer := newCaptureMailer()
	engine := newTestEngine(t, rdb, newMockUserStore(), nil, mailer, cfg)

	if _, err := engine.Register(context.Background(), "alice@example.com", "Alice", "correct-horse"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	link := mailer.lastLink("alice@example.com")
	if !strings.HasPrefix(link, "https://accounts.example.com/verify?token=") {
		t.Fatalf("expected link built from base URL, got %q", link)
	}
}

func TestRegisterSucceedsWhenMailDeliveryFails(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	mailer := newCaptureMailer()
	mailer.linkErr = errors.New("smtp down")

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, nil, mailer, testEngineConfig())

	if _, err := engine.Register(context.Background(), "alice@example.com", "Alice", "correct-horse"); err != nil {
		t.Fatalf("expected Register to succeed despite delivery failure, got %v", err)
	}
	if users.count() != 1 {
		t.Fatal("expected user to exist after delivery failure")
	}
	if got := engine.metrics.Value(MetricMailDeliveryFailure); got != 1 {
		t.Fatalf("expected mail delivery failure metric 1, got %d", got)
	}
}

func TestRegisterThrottle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := testEngineConfig()
	cfg.Registration.Throttle = ThrottleConfig{
		Enabled:     true,
		MaxAttempts: 2,
		Window:      time.Hour,
	}

	engine := newTestEngine(t, rdb, newMockUserStore(), nil, newCaptureMailer(), cfg)

	ctx := context.Background()
	if _, err := engine.Register(ctx, "hot@example.com", "User", "correct-horse"); err != nil {
		t.Fatalf("first attempt failed: %v", err)
	}
	if _, err := engine.Register(ctx, "hot@example.com", "User", "correct-horse"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("second attempt: expected ErrEmailTaken, got %v", err)
	}

	_, err := engine.Register(ctx, "hot@example.com", "User", "correct-horse")
	if !errors.Is(err, ErrRegistrationRateLimited) {
		t.Fatalf("expected ErrRegistrationRateLimited, got %v", err)
	}
}
