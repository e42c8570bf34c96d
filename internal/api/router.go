package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/auth/slack/connect", h.SlackConnect)
	mux.HandleFunc("POST /api/auth/slack/callback", h.SlackCallbackPost)
	mux.HandleFunc("GET /api/auth/slack/callback", h.SlackCallbackGet)

	mux.HandleFunc("GET /api/messages/channels", h.requireSlackAuth(h.Channels))
	mux.HandleFunc("POST /api/messages/send", h.requireSlackAuth(h.SendNow))
	mux.HandleFunc("POST /api/messages/schedule", h.requireSlackAuth(h.Schedule))
	mux.HandleFunc("GET /api/messages/scheduled", h.requireSlackAuth(h.ListScheduled))
	mux.HandleFunc("DELETE /api/messages/scheduled/{id}", h.requireSlackAuth(h.CancelScheduled))

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("slackconnect"))
	})

	return mux
}
