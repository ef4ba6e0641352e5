package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/peerdesk/peerdesk/internal/auth"
	"github.com/peerdesk/peerdesk/internal/config"
	"github.com/peerdesk/peerdesk/internal/observability"
	"github.com/peerdesk/peerdesk/internal/provider"
	"github.com/peerdesk/peerdesk/internal/session"
	"github.com/peerdesk/peerdesk/internal/user"
)

const testJWTSecret = "httpapi-test-secret"

var metricsSeq atomic.Int64

type testTokenSource struct {
	tokens *provider.Tokens
}

func (ts testTokenSource) UserToken(userID string) (string, error) {
	return ts.tokens.UserToken(userID, time.Now(), 0)
}

type testEnv struct {
	t      *testing.T
	server *httptest.Server
	mock   *provider.Mock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := user.NewInMemoryStore()
	sessions := session.NewInMemoryStore()
	mock := provider.NewMock()
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", metricsSeq.Add(1)))

	guard, err := auth.NewGuard(testJWTSecret, users)
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	coordinator := session.NewCoordinator(sessions, mock, metrics, time.Second)

	cfg := config.Config{ProviderMode: "mock", AuthJWTSecret: testJWTSecret}
	api := New(cfg, coordinator, guard, users, mock, testTokenSource{tokens: provider.NewTokens(testJWTSecret)}, metrics)

	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, server: srv, mock: mock}
}

func (e *testEnv) token(externalID string) string {
	e.t.Helper()
	claims := jwt.MapClaims{
		"sub": externalID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		e.t.Fatalf("sign token: %v", err)
	}
	return raw
}

// do issues a request and decodes the JSON response into out (if non-nil).
func (e *testEnv) do(method, path, token string, body any, out any) int {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		e.t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			e.t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return res.StatusCode
}

// sync registers the external identity as a local user and returns its token.
func (e *testEnv) sync(externalID, name string) string {
	e.t.Helper()
	token := e.token(externalID)
	var resp userSyncResponse
	status := e.do(http.MethodPost, "/v1/users/sync", token, userSyncRequest{Name: name}, &resp)
	if status != http.StatusOK {
		e.t.Fatalf("users/sync status = %d, want 200", status)
	}
	return token
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	host := env.sync("ext-u1", "Host")
	joiner := env.sync("ext-u2", "Joiner")
	third := env.sync("ext-u3", "Latecomer")

	// Host creates a session.
	var created sessionResponse
	status := env.do(http.MethodPost, "/v1/sessions", host,
		createSessionRequest{Problem: "Merge two sorted lists", Difficulty: "easy"}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", status)
	}
	sess := created.Session
	if sess.Status != session.StatusActive || sess.ParticipantID != nil {
		t.Fatalf("created session = %+v, want active with open slot", sess)
	}

	// It shows up in the active list.
	var active sessionListResponse
	if status := env.do(http.MethodGet, "/v1/sessions/active", joiner, nil, &active); status != http.StatusOK {
		t.Fatalf("active list status = %d, want 200", status)
	}
	if len(active.Sessions) != 1 || active.Sessions[0].ID != sess.ID {
		t.Fatalf("active list = %+v, want the created session", active.Sessions)
	}

	// First joiner wins the slot.
	var joined sessionResponse
	if status := env.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/join", joiner, nil, &joined); status != http.StatusOK {
		t.Fatalf("join status = %d, want 200", status)
	}
	if joined.Session.ParticipantID == nil {
		t.Fatalf("joined session has no participant")
	}

	// Second joiner conflicts.
	var conflict errorResponse
	if status := env.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/join", third, nil, &conflict); status != http.StatusConflict {
		t.Fatalf("late join status = %d, want 409", status)
	}
	if conflict.Code != "session_unavailable" {
		t.Fatalf("late join code = %q, want session_unavailable", conflict.Code)
	}

	// Only the host can end it.
	var forbidden errorResponse
	if status := env.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/end", joiner, nil, &forbidden); status != http.StatusForbidden {
		t.Fatalf("non-host end status = %d, want 403", status)
	}
	if forbidden.Code != "not_host" {
		t.Fatalf("non-host end code = %q, want not_host", forbidden.Code)
	}

	var ended sessionResponse
	if status := env.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/end", host, nil, &ended); status != http.StatusOK {
		t.Fatalf("host end status = %d, want 200", status)
	}
	if ended.Session.Status != session.StatusCompleted || ended.Session.EndedAt == nil {
		t.Fatalf("ended session = %+v, want completed with ended_at", ended.Session)
	}

	// Ending twice reports the session as already completed.
	var repeat errorResponse
	if status := env.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/end", host, nil, &repeat); status != http.StatusBadRequest {
		t.Fatalf("repeat end status = %d, want 400", status)
	}
	if repeat.Code != "already_completed" {
		t.Fatalf("repeat end code = %q, want already_completed", repeat.Code)
	}

	// Both players see it under recent sessions.
	for _, token := range []string{host, joiner} {
		var recent sessionListResponse
		if status := env.do(http.MethodGet, "/v1/sessions/recent", token, nil, &recent); status != http.StatusOK {
			t.Fatalf("recent status = %d, want 200", status)
		}
		if len(recent.Sessions) != 1 || recent.Sessions[0].ID != sess.ID {
			t.Fatalf("recent list = %+v, want the completed session", recent.Sessions)
		}
	}
}

func TestCreateSessionValidationOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	host := env.sync("ext-u1", "Host")

	cases := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"empty body", nil, "invalid_request"},
		{"short problem", createSessionRequest{Problem: "abc", Difficulty: "easy"}, "invalid_problem"},
		{"bad difficulty", createSessionRequest{Problem: "A real problem statement", Difficulty: "extreme"}, "invalid_difficulty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var errResp errorResponse
			status := env.do(http.MethodPost, "/v1/sessions", host, tc.body, &errResp)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}
			if errResp.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", errResp.Code, tc.wantCode)
			}
		})
	}
}

func TestDuplicateActiveSessionConflictsOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	host := env.sync("ext-u1", "Host")

	if status := env.do(http.MethodPost, "/v1/sessions", host,
		createSessionRequest{Problem: "Valid problem one", Difficulty: "easy"}, nil); status != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", status)
	}
	var errResp errorResponse
	status := env.do(http.MethodPost, "/v1/sessions", host,
		createSessionRequest{Problem: "Valid problem two", Difficulty: "hard"}, &errResp)
	if status != http.StatusConflict || errResp.Code != "active_session_exists" {
		t.Fatalf("second create = %d %q, want 409 active_session_exists", status, errResp.Code)
	}
}

func TestSelfJoinRejectedOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	host := env.sync("ext-u1", "Host")

	var created sessionResponse
	if status := env.do(http.MethodPost, "/v1/sessions", host,
		createSessionRequest{Problem: "Valid problem one", Difficulty: "medium"}, &created); status != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", status)
	}

	var errResp errorResponse
	status := env.do(http.MethodPost, "/v1/sessions/"+created.Session.ID+"/join", host, nil, &errResp)
	if status != http.StatusBadRequest || errResp.Code != "self_join" {
		t.Fatalf("self join = %d %q, want 400 self_join", status, errResp.Code)
	}
}

func TestGetSessionOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	host := env.sync("ext-u1", "Host")

	var created sessionResponse
	if status := env.do(http.MethodPost, "/v1/sessions", host,
		createSessionRequest{Problem: "Valid problem one", Difficulty: "medium"}, &created); status != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", status)
	}

	var got sessionResponse
	if status := env.do(http.MethodGet, "/v1/sessions/"+created.Session.ID, host, nil, &got); status != http.StatusOK {
		t.Fatalf("get status = %d, want 200", status)
	}
	if got.Session.ID != created.Session.ID {
		t.Fatalf("get returned %q, want %q", got.Session.ID, created.Session.ID)
	}

	var errResp errorResponse
	if status := env.do(http.MethodGet, "/v1/sessions/no-such-id", host, nil, &errResp); status != http.StatusNotFound {
		t.Fatalf("get missing status = %d, want 404", status)
	}
	if errResp.Code != "session_not_found" {
		t.Fatalf("get missing code = %q, want session_not_found", errResp.Code)
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/sessions"},
		{http.MethodGet, "/v1/sessions/active"},
		{http.MethodGet, "/v1/sessions/recent"},
		{http.MethodGet, "/v1/chat/token"},
	}
	for _, p := range paths {
		var errResp errorResponse
		if status := env.do(p.method, p.path, "", nil, &errResp); status != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d, want 401", p.method, p.path, status)
		}
	}

	// A verified token without a local record is rejected too.
	var errResp errorResponse
	status := env.do(http.MethodGet, "/v1/sessions/active", env.token("ext-stranger"), nil, &errResp)
	if status != http.StatusUnauthorized || errResp.Code != "user_not_found" {
		t.Fatalf("unsynced user = %d %q, want 401 user_not_found", status, errResp.Code)
	}
}

func TestChatTokenIdentifiesCaller(t *testing.T) {
	env := newTestEnv(t)
	host := env.sync("ext-u1", "Ada")

	var resp chatTokenResponse
	if status := env.do(http.MethodGet, "/v1/chat/token", host, nil, &resp); status != http.StatusOK {
		t.Fatalf("chat token status = %d, want 200", status)
	}
	if resp.UserID != "ext-u1" || resp.UserName != "Ada" {
		t.Fatalf("chat token identity = %q/%q, want ext-u1/Ada", resp.UserID, resp.UserName)
	}

	tok, err := jwt.Parse(resp.Token, func(tok *jwt.Token) (any, error) {
		return []byte(testJWTSecret), nil
	})
	if err != nil || !tok.Valid {
		t.Fatalf("chat token does not verify: %v", err)
	}
	claims := tok.Claims.(jwt.MapClaims)
	if claims["user_id"] != "ext-u1" {
		t.Fatalf("user_id claim = %v, want ext-u1", claims["user_id"])
	}
}

func TestUserSyncOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.token("ext-u1")

	var errResp errorResponse
	status := env.do(http.MethodPost, "/v1/users/sync", token, userSyncRequest{Name: "  "}, &errResp)
	if status != http.StatusBadRequest || errResp.Code != "invalid_name" {
		t.Fatalf("blank name sync = %d %q, want 400 invalid_name", status, errResp.Code)
	}

	var resp userSyncResponse
	status = env.do(http.MethodPost, "/v1/users/sync", token,
		userSyncRequest{Name: "Ada", Email: "ada@example.com", AvatarURL: "https://img.example/a.png"}, &resp)
	if status != http.StatusOK {
		t.Fatalf("sync status = %d, want 200", status)
	}
	if resp.User.ExternalID != "ext-u1" || resp.User.ID == "" {
		t.Fatalf("synced user = %+v, want local record for ext-u1", resp.User)
	}
	// The profile is mirrored to the provider for member rendering.
	if !env.mock.HasUser("ext-u1") {
		t.Fatalf("provider profile for ext-u1 was not upserted")
	}

	// Re-sync updates the profile and keeps the same local id.
	var again userSyncResponse
	if status := env.do(http.MethodPost, "/v1/users/sync", token, userSyncRequest{Name: "Ada L."}, &again); status != http.StatusOK {
		t.Fatalf("re-sync status = %d, want 200", status)
	}
	if again.User.ID != resp.User.ID || again.User.Name != "Ada L." {
		t.Fatalf("re-synced user = %+v, want same id with new name", again.User)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var resp map[string]any
	if status := env.do(http.MethodGet, "/healthz", "", nil, &resp); status != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", status)
	}
	if resp["status"] != "ok" || resp["provider_mode"] != "mock" {
		t.Fatalf("healthz body = %v, want ok/mock", resp)
	}
}
