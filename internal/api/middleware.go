package api

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"slackconnect/internal/service"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyAccessToken
)

func userIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

func accessTokenFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyAccessToken).(string)
	return v
}

// requireSlackAuth authenticates via the user-id header and resolves a usable
// access token, refreshing it transparently. This is the same resolution the
// dispatch cycle performs.
func (h *Handler) requireSlackAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("user-id")
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "User ID required"})
			return
		}

		token, err := h.resolver.Resolve(r.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNoToken):
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "No Slack connection found"})
			case errors.Is(err, service.ErrInvalidToken):
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid token, please reconnect"})
			case errors.Is(err, service.ErrRefreshFailed):
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Token refresh failed"})
			default:
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Authentication failed"})
			}
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyAccessToken, token)
		next(w, r.WithContext(ctx))
	}
}

// callbackPage posts the OAuth code back to the window that opened the popup.
// html/template escapes the code for the script context.
var callbackPage = template.Must(template.New("callback").Parse(`<script>
if (window.opener) {
  window.opener.postMessage({type: 'slack-auth-success', code: {{.Code}}}, '*');
  window.close();
} else {
  window.location.href = '/?code=' + encodeURIComponent({{.Code}});
}
</script>`))
