package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"slackconnect/internal/client"
	"slackconnect/internal/model"
	"slackconnect/internal/repo"
	"slackconnect/internal/scheduler"
	"slackconnect/internal/service"
)

const oauthScopes = "channels:read,chat:write,users:read"

// SlackAPI is the slice of the Slack client the handlers need.
type SlackAPI interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*client.OAuthResponse, error)
	ListChannels(ctx context.Context, accessToken string) ([]client.Channel, error)
	SendMessage(ctx context.Context, accessToken, channelID, text string) error
}

// SlackAuthConfig carries the OAuth parameters the connect URL is built from.
type SlackAuthConfig struct {
	ClientID     string
	RedirectURI  string
	AuthorizeURL string
}

type Handler struct {
	sched    *scheduler.Scheduler
	slack    SlackAPI
	tokens   repo.TokenRepository
	messages repo.MessageRepository
	resolver service.TokenSource
	auth     SlackAuthConfig
	now      func() time.Time
}

func NewHandler(
	sched *scheduler.Scheduler,
	slack SlackAPI,
	tokens repo.TokenRepository,
	messages repo.MessageRepository,
	resolver service.TokenSource,
	auth SlackAuthConfig,
) *Handler {
	return &Handler{
		sched:    sched,
		slack:    slack,
		tokens:   tokens,
		messages: messages,
		resolver: resolver,
		auth:     auth,
		now:      time.Now,
	}
}

// WithClock overrides the schedule-validation clock. Test hook.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// SlackConnect returns the authorization URL the frontend opens in a popup.
func (h *Handler) SlackConnect(w http.ResponseWriter, r *http.Request) {
	q := url.Values{
		"client_id":    {h.auth.ClientID},
		"scope":        {oauthScopes},
		"redirect_uri": {h.auth.RedirectURI},
		"state":        {uuid.NewString()},
	}
	writeJSON(w, http.StatusOK, map[string]any{"authUrl": h.auth.AuthorizeURL + "?" + q.Encode()})
}

// SlackCallbackPost exchanges the authorization code and stores the token.
func (h *Handler) SlackCallbackPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code   string `json:"code"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Code and userId required"})
		return
	}

	resp, err := h.slack.ExchangeCode(r.Context(), req.Code, h.auth.RedirectURI)
	if err != nil || !resp.OK {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Failed to get access token"})
		return
	}

	now := h.now().UTC()
	tok := model.SlackToken{
		UserID:       req.UserID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TeamID:       resp.Team.ID,
		TeamName:     resp.Team.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if resp.ExpiresIn > 0 {
		t := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
		tok.ExpiresAt = &t
	}

	if err := h.tokens.Upsert(r.Context(), tok); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to connect to Slack"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "teamName": resp.Team.Name})
}

// SlackCallbackGet serves the OAuth redirect target: a small page that hands
// the code back to the window that opened the popup.
func (h *Handler) SlackCallbackGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	code := r.URL.Query().Get("code")
	if code == "" {
		_, _ = w.Write([]byte("<script>window.close();</script>"))
		return
	}
	_ = callbackPage.Execute(w, struct{ Code string }{Code: code})
}

// Channels lists the channels visible to the caller's token.
func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.slack.ListChannels(r.Context(), accessTokenFrom(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to fetch channels"})
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

// SendNow delivers a message immediately, bypassing the scheduler.
func (h *Handler) SendNow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelID string `json:"channelId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Channel ID and message required"})
		return
	}

	if err := h.slack.SendMessage(r.Context(), accessTokenFrom(r.Context()), req.ChannelID, req.Message); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to send message"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Schedule creates a pending message for future delivery. The schedule time
// must be strictly in the future; the store never re-checks this.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelID     string    `json:"channelId"`
		ChannelName   string    `json:"channelName"`
		Message       string    `json:"message"`
		ScheduledTime time.Time `json:"scheduledTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelID == "" || req.Message == "" || req.ScheduledTime.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Channel ID, message, and scheduled time required"})
		return
	}

	if !req.ScheduledTime.After(h.now()) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Scheduled time must be in the future"})
		return
	}

	id, err := h.messages.InsertPending(r.Context(), model.ScheduledMessage{
		UserID:        userIDFrom(r.Context()),
		ChannelID:     req.ChannelID,
		ChannelName:   req.ChannelName,
		Body:          req.Message,
		ScheduledTime: req.ScheduledTime,
		Status:        model.StatusPending,
		CreatedAt:     h.now().UTC(),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to schedule message"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": id})
}

// ListScheduled returns the caller's pending messages, soonest first.
func (h *Handler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	items, err := h.messages.ListByUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to fetch scheduled messages"})
		return
	}
	if items == nil {
		items = []model.ScheduledMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// CancelScheduled cancels a still-pending message. Once the scheduler has
// claimed it the cancellation loses and the caller gets a 404.
func (h *Handler) CancelScheduled(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid message id"})
		return
	}

	ok, err := h.messages.Cancel(r.Context(), id, userIDFrom(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to cancel message"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Message not found or already sent"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
