package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SlackClient is a stateless wrapper over the Slack Web API. Every failure,
// transport or API-level, comes back as an error; nothing escapes uncaught.
type SlackClient struct {
	base         string
	clientID     string
	clientSecret string
	client       *http.Client
}

func NewSlackClient(base, clientID, clientSecret string) *SlackClient {
	return &SlackClient{
		base:         strings.TrimRight(base, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// OAuthResponse is the subset of Slack's oauth.v2.access payload we consume,
// shared by the code exchange and the refresh grant.
type OAuthResponse struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Team         struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
	AuthedUser struct {
		ID string `json:"id"`
	} `json:"authed_user"`
}

type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsMember bool   `json:"is_member"`
}

// ExchangeCode trades an OAuth authorization code for a token pair.
func (c *SlackClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*OAuthResponse, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}
	return c.postOAuth(ctx, form)
}

// RefreshToken obtains a fresh access token using the refresh_token grant.
func (c *SlackClient) RefreshToken(ctx context.Context, refreshToken string) (*OAuthResponse, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.postOAuth(ctx, form)
}

func (c *SlackClient) postOAuth(ctx context.Context, form url.Values) (*OAuthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/oauth.v2.access", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var or OAuthResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	return &or, nil
}

// ValidateToken calls auth.test and reports whether Slack accepts the token.
// A transport failure is returned as an error, not as "invalid".
func (c *SlackClient) ValidateToken(ctx context.Context, accessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/auth.test", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode json: %w", err)
	}
	return out.OK, nil
}

// ListChannels returns the public and private channels visible to the token.
func (c *SlackClient) ListChannels(ctx context.Context, accessToken string) ([]Channel, error) {
	u := c.base + "/conversations.list?" + url.Values{
		"types": {"public_channel,private_channel"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var out struct {
		OK       bool      `json:"ok"`
		Error    string    `json:"error"`
		Channels []Channel `json:"channels"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if !out.OK {
		return nil, fmt.Errorf("slack error: %s", out.Error)
	}
	return out.Channels, nil
}

// SendMessage posts text to a channel via chat.postMessage.
func (c *SlackClient) SendMessage(ctx context.Context, accessToken, channelID, text string) error {
	reqBody, err := json.Marshal(map[string]string{
		"channel": channelID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat.postMessage", bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var out struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if !out.OK {
		return fmt.Errorf("slack error: %s", out.Error)
	}
	return nil
}
