package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"slackconnect/internal/client"
	"slackconnect/internal/model"
	"slackconnect/internal/repo"
	"slackconnect/internal/scheduler"
	"slackconnect/internal/service"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSlackAPI struct {
	exchangeResp *client.OAuthResponse
	exchangeErr  error
	gotCode      string

	channels    []client.Channel
	channelsErr error
	gotToken    string

	sendErr     error
	gotSendArgs []string
}

func (f *fakeSlackAPI) ExchangeCode(ctx context.Context, code, redirectURI string) (*client.OAuthResponse, error) {
	f.gotCode = code
	return f.exchangeResp, f.exchangeErr
}

func (f *fakeSlackAPI) ListChannels(ctx context.Context, accessToken string) ([]client.Channel, error) {
	f.gotToken = accessToken
	return f.channels, f.channelsErr
}

func (f *fakeSlackAPI) SendMessage(ctx context.Context, accessToken, channelID, text string) error {
	f.gotToken = accessToken
	f.gotSendArgs = []string{channelID, text}
	return f.sendErr
}

type fakeResolver struct {
	tokens map[string]string
	err    error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	tok, ok := f.tokens[userID]
	if !ok {
		return "", service.ErrNoToken
	}
	return tok, nil
}

type fakeMessages struct {
	insertID  int64
	insertErr error
	inserted  []model.ScheduledMessage

	cancelOK  bool
	cancelErr error
	gotCancel struct {
		id     int64
		userID string
	}

	items   []model.ScheduledMessage
	listErr error
}

var _ repo.MessageRepository = (*fakeMessages)(nil)

func (f *fakeMessages) InsertPending(ctx context.Context, msg model.ScheduledMessage) (int64, error) {
	f.inserted = append(f.inserted, msg)
	return f.insertID, f.insertErr
}

func (f *fakeMessages) ListDue(ctx context.Context, now time.Time) ([]model.ScheduledMessage, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMessages) Claim(ctx context.Context, id int64) (bool, error) {
	return false, errors.New("not implemented")
}

func (f *fakeMessages) MarkSent(ctx context.Context, id int64) error {
	return errors.New("not implemented")
}

func (f *fakeMessages) MarkFailed(ctx context.Context, id int64) error {
	return errors.New("not implemented")
}

func (f *fakeMessages) Cancel(ctx context.Context, id int64, userID string) (bool, error) {
	f.gotCancel.id = id
	f.gotCancel.userID = userID
	return f.cancelOK, f.cancelErr
}

func (f *fakeMessages) ListByUser(ctx context.Context, userID string) ([]model.ScheduledMessage, error) {
	return f.items, f.listErr
}

type fakeTokens struct {
	upserted  []model.SlackToken
	upsertErr error
}

var _ repo.TokenRepository = (*fakeTokens)(nil)

func (f *fakeTokens) Get(ctx context.Context, userID string) (*model.SlackToken, error) {
	return nil, nil
}

func (f *fakeTokens) Upsert(ctx context.Context, tok model.SlackToken) error {
	f.upserted = append(f.upserted, tok)
	return f.upsertErr
}

func (f *fakeTokens) UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt *time.Time) error {
	return nil
}

type testDeps struct {
	slack    *fakeSlackAPI
	tokens   *fakeTokens
	messages *fakeMessages
	resolver *fakeResolver
}

func newTestServer(t *testing.T) (*testDeps, http.Handler) {
	t.Helper()

	s, err := scheduler.New(time.Hour, func(context.Context) {})
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	t.Cleanup(func() { s.Stop() })

	deps := &testDeps{
		slack:    &fakeSlackAPI{},
		tokens:   &fakeTokens{},
		messages: &fakeMessages{},
		resolver: &fakeResolver{tokens: map[string]string{"U1": "tok-1"}},
	}

	h := NewHandler(s, deps.slack, deps.tokens, deps.messages, deps.resolver, SlackAuthConfig{
		ClientID:     "cid",
		RedirectURI:  "https://example.com/cb",
		AuthorizeURL: "https://slack.example/authorize",
	}).WithClock(func() time.Time { return testNow })

	return deps, Router(h)
}

func doJSON(t *testing.T, mux http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set("user-id", userID)
	}

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	_, mux := newTestServer(t)

	rr := doJSON(t, mux, http.MethodGet, "/v1/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	if v, ok := body["ok"].(bool); !ok || !v {
		t.Fatalf("expected {ok:true}, got %v", body)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	_, mux := newTestServer(t)

	rr := doJSON(t, mux, http.MethodGet, "/v1/scheduler/status", "", "")
	if running := decodeJSON(t, rr)["running"].(bool); running {
		t.Fatalf("expected running=false initially")
	}

	rr = doJSON(t, mux, http.MethodPost, "/v1/scheduler/start", "", "")
	if running := decodeJSON(t, rr)["running"].(bool); !running {
		t.Fatalf("expected running=true after start")
	}

	rr = doJSON(t, mux, http.MethodPost, "/v1/scheduler/stop", "", "")
	if running := decodeJSON(t, rr)["running"].(bool); running {
		t.Fatalf("expected running=false after stop")
	}
}

func TestSlackConnect_BuildsAuthURL(t *testing.T) {
	_, mux := newTestServer(t)

	rr := doJSON(t, mux, http.MethodGet, "/api/auth/slack/connect", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	authURL, ok := decodeJSON(t, rr)["authUrl"].(string)
	if !ok {
		t.Fatalf("expected authUrl string, got %q", rr.Body.String())
	}
	if !strings.HasPrefix(authURL, "https://slack.example/authorize?") {
		t.Fatalf("unexpected authorize base: %q", authURL)
	}
	for _, want := range []string{"client_id=cid", "scope=", "redirect_uri=", "state="} {
		if !strings.Contains(authURL, want) {
			t.Fatalf("expected authUrl to contain %q, got %q", want, authURL)
		}
	}
}

func TestSlackCallbackPost_StoresToken(t *testing.T) {
	deps, mux := newTestServer(t)
	deps.slack.exchangeResp = &client.OAuthResponse{
		OK:           true,
		AccessToken:  "xoxe-1",
		RefreshToken: "xoxe-refresh-1",
		ExpiresIn:    3600,
	}
	deps.slack.exchangeResp.Team.ID = "T1"
	deps.slack.exchangeResp.Team.Name = "Acme"

	rr := doJSON(t, mux, http.MethodPost, "/api/auth/slack/callback", "", `{"code":"abc","userId":"U1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	body := decodeJSON(t, rr)
	if body["teamName"] != "Acme" {
		t.Fatalf("expected teamName Acme, got %v", body)
	}
	if deps.slack.gotCode != "abc" {
		t.Fatalf("expected code forwarded to exchange, got %q", deps.slack.gotCode)
	}

	if len(deps.tokens.upserted) != 1 {
		t.Fatalf("expected 1 upserted token, got %d", len(deps.tokens.upserted))
	}
	tok := deps.tokens.upserted[0]
	if tok.UserID != "U1" || tok.AccessToken != "xoxe-1" || tok.RefreshToken != "xoxe-refresh-1" {
		t.Fatalf("unexpected stored token: %+v", tok)
	}
	if tok.TeamID != "T1" || tok.TeamName != "Acme" {
		t.Fatalf("unexpected team: %+v", tok)
	}
	if tok.ExpiresAt == nil || !tok.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("unexpected ExpiresAt: %v", tok.ExpiresAt)
	}
}

func TestSlackCallbackPost_MissingFields(t *testing.T) {
	_, mux := newTestServer(t)

	for _, body := range []string{`{}`, `{"code":"abc"}`, `{"userId":"U1"}`, `not json`} {
		rr := doJSON(t, mux, http.MethodPost, "/api/auth/slack/callback", "", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestSlackCallbackPost_ExchangeRejected(t *testing.T) {
	deps, mux := newTestServer(t)
	deps.slack.exchangeResp = &client.OAuthResponse{OK: false, Error: "invalid_code"}

	rr := doJSON(t, mux, http.MethodPost, "/api/auth/slack/callback", "", `{"code":"bad","userId":"U1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%q", rr.Code, rr.Body.String())
	}
	if len(deps.tokens.upserted) != 0 {
		t.Fatalf("expected no token stored, got %+v", deps.tokens.upserted)
	}
}

func TestSlackCallbackGet_PopupPage(t *testing.T) {
	_, mux := newTestServer(t)

	rr := doJSON(t, mux, http.MethodGet, "/api/auth/slack/callback?code=abc123", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	page := rr.Body.String()
	if !strings.Contains(page, "slack-auth-success") || !strings.Contains(page, "abc123") {
		t.Fatalf("expected popup page with code, got %q", page)
	}

	rr = doJSON(t, mux, http.MethodGet, "/api/auth/slack/callback", "", "")
	if !strings.Contains(rr.Body.String(), "window.close()") {
		t.Fatalf("expected close page without code, got %q", rr.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing user-id header", func(t *testing.T) {
		_, mux := newTestServer(t)
		rr := doJSON(t, mux, http.MethodGet, "/api/messages/scheduled", "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("no slack connection", func(t *testing.T) {
		_, mux := newTestServer(t)
		rr := doJSON(t, mux, http.MethodGet, "/api/messages/scheduled", "U-unknown", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "No Slack connection found") {
			t.Fatalf("unexpected body: %q", rr.Body.String())
		}
	})

	t.Run("refresh failed", func(t *testing.T) {
		deps, mux := newTestServer(t)
		deps.resolver.err = service.ErrRefreshFailed
		rr := doJSON(t, mux, http.MethodGet, "/api/messages/scheduled", "U1", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("unexpected resolver error", func(t *testing.T) {
		deps, mux := newTestServer(t)
		deps.resolver.err = errors.New("db down")
		rr := doJSON(t, mux, http.MethodGet, "/api/messages/scheduled", "U1", "")
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
	})
}

func TestChannels(t *testing.T) {
	deps, mux := newTestServer(t)
	deps.slack.channels = []client.Channel{{ID: "C1", Name: "general", IsMember: true}}

	rr := doJSON(t, mux, http.MethodGet, "/api/messages/channels", "U1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if deps.slack.gotToken != "tok-1" {
		t.Fatalf("expected resolved token used, got %q", deps.slack.gotToken)
	}
	if !strings.Contains(rr.Body.String(), `"general"`) {
		t.Fatalf("expected channel in body, got %q", rr.Body.String())
	}
}

func TestSendNow(t *testing.T) {
	deps, mux := newTestServer(t)

	rr := doJSON(t, mux, http.MethodPost, "/api/messages/send", "U1", `{"channelId":"C1","message":"hi"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if deps.slack.gotSendArgs[0] != "C1" || deps.slack.gotSendArgs[1] != "hi" {
		t.Fatalf("unexpected send args: %+v", deps.slack.gotSendArgs)
	}

	rr = doJSON(t, mux, http.MethodPost, "/api/messages/send", "U1", `{"channelId":"C1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing message, got %d", rr.Code)
	}

	deps.slack.sendErr = errors.New("slack error: channel_not_found")
	rr = doJSON(t, mux, http.MethodPost, "/api/messages/send", "U1", `{"channelId":"C1","message":"hi"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on send failure, got %d", rr.Code)
	}
}

func TestSchedule_Success(t *testing.T) {
	deps, mux := newTestServer(t)
	deps.messages.insertID = 7

	at := testNow.Add(time.Hour).Format(time.RFC3339)
	rr := doJSON(t, mux, http.MethodPost, "/api/messages/schedule", "U1",
		`{"channelId":"C1","channelName":"general","message":"hi","scheduledTime":"`+at+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if got := decodeJSON(t, rr)["messageId"].(float64); got != 7 {
		t.Fatalf("expected messageId 7, got %v", got)
	}

	if len(deps.messages.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(deps.messages.inserted))
	}
	msg := deps.messages.inserted[0]
	if msg.UserID != "U1" || msg.ChannelID != "C1" || msg.Body != "hi" {
		t.Fatalf("unexpected inserted message: %+v", msg)
	}
	if msg.Status != model.StatusPending {
		t.Fatalf("expected pending status, got %q", msg.Status)
	}
	if !msg.ScheduledTime.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("unexpected scheduled time: %v", msg.ScheduledTime)
	}
}

func TestSchedule_RejectsNonFutureTime(t *testing.T) {
	deps, mux := newTestServer(t)

	for _, at := range []time.Time{testNow, testNow.Add(-time.Minute)} {
		rr := doJSON(t, mux, http.MethodPost, "/api/messages/schedule", "U1",
			`{"channelId":"C1","channelName":"general","message":"hi","scheduledTime":"`+at.Format(time.RFC3339)+`"}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("time %v: expected 400, got %d", at, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "future") {
			t.Fatalf("unexpected body: %q", rr.Body.String())
		}
	}
	if len(deps.messages.inserted) != 0 {
		t.Fatalf("expected no inserts, got %+v", deps.messages.inserted)
	}
}

func TestSchedule_MissingFields(t *testing.T) {
	_, mux := newTestServer(t)

	cases := []string{
		`{}`,
		`{"channelId":"C1","message":"hi"}`,
		`{"channelId":"C1","scheduledTime":"2026-03-01T13:00:00Z"}`,
		`{"message":"hi","scheduledTime":"2026-03-01T13:00:00Z"}`,
		`garbage`,
	}
	for _, body := range cases {
		rr := doJSON(t, mux, http.MethodPost, "/api/messages/schedule", "U1", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestListScheduled(t *testing.T) {
	deps, mux := newTestServer(t)
	deps.messages.items = []model.ScheduledMessage{
		{ID: 1, UserID: "U1", ChannelID: "C1", Body: "hi", Status: model.StatusPending},
	}

	rr := doJSON(t, mux, http.MethodGet, "/api/messages/scheduled", "U1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	items, ok := decodeJSON(t, rr)["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 item, got %q", rr.Body.String())
	}
}

func TestListScheduled_EmptyIsArray(t *testing.T) {
	_, mux := newTestServer(t)

	rr := doJSON(t, mux, http.MethodGet, "/api/messages/scheduled", "U1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %q", rr.Body.String())
	}
}

func TestCancelScheduled(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		deps, mux := newTestServer(t)
		deps.messages.cancelOK = true

		rr := doJSON(t, mux, http.MethodDelete, "/api/messages/scheduled/42", "U1", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
		}
		if deps.messages.gotCancel.id != 42 || deps.messages.gotCancel.userID != "U1" {
			t.Fatalf("unexpected cancel args: %+v", deps.messages.gotCancel)
		}
	})

	t.Run("already claimed or missing", func(t *testing.T) {
		deps, mux := newTestServer(t)
		deps.messages.cancelOK = false

		rr := doJSON(t, mux, http.MethodDelete, "/api/messages/scheduled/42", "U1", "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "not found or already sent") {
			t.Fatalf("unexpected body: %q", rr.Body.String())
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		_, mux := newTestServer(t)

		rr := doJSON(t, mux, http.MethodDelete, "/api/messages/scheduled/abc", "U1", "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})
}

func TestRouterRoot(t *testing.T) {
	_, mux := newTestServer(t)

	rr := doJSON(t, mux, http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "slackconnect" {
		t.Fatalf("expected body %q, got %q", "slackconnect", got)
	}
}
