package integration

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gamelog-backend/internal/config"
	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/http/handler"
	"gamelog-backend/internal/http/router"
	"gamelog-backend/internal/repository"
	"gamelog-backend/internal/security"
	"gamelog-backend/internal/service"
)

const (
	testJWTSecret   = "0123456789abcdef0123456789abcdef"
	testStateSecret = "fedcba9876543210fedcba9876543210"
	testPassword    = "correct horse battery"
)

type authTestServer struct {
	URL    string
	Client *http.Client

	Cfg       *config.Config
	DB        *gorm.DB
	Users     repository.UserRepository
	Codec     *security.TokenCodec
	Auth      *service.AuthService
	Lockout   *service.LockoutService
	Blacklist *service.BlacklistService
}

type authTestServerOptions struct {
	cfgOverride   func(cfg *config.Config)
	oauthProvider service.OAuthProvider
}

func newAuthTestServer(t *testing.T) *authTestServer {
	return newAuthTestServerWithOptions(t, authTestServerOptions{})
}

func newAuthTestServerWithOptions(t *testing.T, opts authTestServerOptions) *authTestServer {
	t.Helper()

	cfg := &config.Config{
		Env:               "test",
		JWTSecret:         testJWTSecret,
		JWTIssuer:         "gamelog-backend",
		JWTAudience:       "gamelog-api",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		MaxFailedAttempts: 5,
		LockoutDuration:   30 * time.Minute,

		RevocationFailOpen: true,
		OAuthStateSecret:   testStateSecret,
		APIRateLimitRPM:    10000,
		AuthRateLimitRPM:   10000,
	}
	if opts.cfgOverride != nil {
		opts.cfgOverride(cfg)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.RevokedToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepository(db)
	revoked := repository.NewRevokedTokenRepository(db)
	codec := security.NewTokenCodec(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	blacklist := service.NewBlacklistService(revoked, users, codec, nil, cfg.RevocationFailOpen)
	lockout := service.NewLockoutService(users, service.LockoutPolicy{
		MaxFailedAttempts: cfg.MaxFailedAttempts,
		LockoutDuration:   cfg.LockoutDuration,
	})
	auth := service.NewAuthService(users, codec, blacklist, lockout)

	var oauth *service.OAuthService
	if opts.oauthProvider != nil {
		oauth = service.NewOAuthService(opts.oauthProvider, users)
	}

	cookies := security.NewCookieWriter(false)
	srv := httptest.NewServer(router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, oauth, cookies, cfg),
		UserHandler:      handler.NewUserHandler(),
		AdminHandler:     handler.NewAdminHandler(auth, lockout, blacklist),
		TokenCodec:       codec,
		Revocations:      blacklist,
		Users:            users,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
	}))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &authTestServer{
		URL:       srv.URL,
		Client:    &http.Client{Jar: jar},
		Cfg:       cfg,
		DB:        db,
		Users:     users,
		Codec:     codec,
		Auth:      auth,
		Lockout:   lockout,
		Blacklist: blacklist,
	}
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	buf, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(buf)
}

func decodeInto(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, testEnvelope) {
	t.Helper()
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, url, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env testEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope from %s %s (status %d): %v\nbody: %s", method, url, resp.StatusCode, err, raw)
		}
	}
	return resp, env
}

// loginResponse decodes the data payload of login/register/refresh responses.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID       uint   `json:"id"`
		Email    string `json:"email"`
		Username string `json:"username"`
		IsAdmin  bool   `json:"is_admin"`
	} `json:"user"`
}

func decodeLogin(t *testing.T, env testEnvelope) loginResponse {
	t.Helper()
	var out loginResponse
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode login payload: %v", err)
	}
	if out.AccessToken == "" {
		t.Fatal("login payload has no access token")
	}
	return out
}

func register(t *testing.T, ts *authTestServer, email string) loginResponse {
	t.Helper()
	resp, env := doJSON(t, ts.Client, http.MethodPost, ts.URL+"/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": testPassword,
	}, nil)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("register failed: status=%d error=%+v", resp.StatusCode, env.Error)
	}
	return decodeLogin(t, env)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// refreshCookieValue digs the path-scoped refresh cookie out of the jar by
// replaying what the server set on the refresh endpoint path.
func refreshCookieValue(t *testing.T, ts *authTestServer) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+security.RefreshCookiePath, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for _, c := range ts.Client.Jar.Cookies(req.URL) {
		if c.Name == security.RefreshCookieName {
			return c.Value
		}
	}
	return ""
}

func assertCookieProps(t *testing.T, resp *http.Response, name, path string, httpOnly bool) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name != name {
			continue
		}
		if c.Path != path {
			t.Fatalf("cookie %s path = %q, want %q", name, c.Path, path)
		}
		if c.HttpOnly != httpOnly {
			t.Fatalf("cookie %s httpOnly = %v, want %v", name, c.HttpOnly, httpOnly)
		}
		return c
	}
	t.Fatalf("cookie %s not set on response", name)
	return nil
}

type auditEvent struct {
	Msg       string `json:"msg"`
	EventName string `json:"event_name"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason"`
	Severity  string `json:"severity"`
	Email     string `json:"email"`
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureAuditEvents swaps the default logger while fn runs and returns the
// audit events it emitted.
func captureAuditEvents(t *testing.T, fn func()) []auditEvent {
	t.Helper()
	buf := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(buf, nil)))
	defer slog.SetDefault(prev)

	fn()

	var events []auditEvent
	scanner := bufio.NewScanner(strings.NewReader(buf.String()))
	for scanner.Scan() {
		var ev auditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.Msg == "audit.event" {
			events = append(events, ev)
		}
	}
	return events
}

func requireAuditEvent(t *testing.T, events []auditEvent, name, outcome, reason string) {
	t.Helper()
	for _, ev := range events {
		if ev.EventName == name && ev.Outcome == outcome && (reason == "" || ev.Reason == reason) {
			return
		}
	}
	t.Fatalf("audit event %s/%s/%s not found in %+v", name, outcome, reason, events)
}
