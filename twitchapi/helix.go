// Package twitchapi contains minimal helpers for the Twitch Helix API: user id
// resolution, chatters and moderator listing, and subscription checks.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// ErrUserNotFound is returned when a login does not resolve to a user.
var ErrUserNotFound = errors.New("user not found")

// HelixClient issues Helix requests. AppTokens authorizes public lookups;
// UserTokens (the broadcaster's or a moderator's token) authorizes chatters,
// moderators and subscriptions.
type HelixClient struct {
	AppTokens  TokenProvider
	UserTokens TokenProvider
	ClientID   string
	BaseURL    string
	HTTPClient *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) get(ctx context.Context, tokens TokenProvider, path string, q url.Values, out any) error {
	if tokens == nil {
		return errors.New("no token provider configured")
	}
	tok, err := tokens.Get(ctx)
	if err != nil {
		return err
	}
	base := hc.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("helix %s: %s: %s", path, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, hc.AppTokens, "/users", url.Values{"login": {login}}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", ErrUserNotFound
	}
	return body.Data[0].ID, nil
}

type userPage struct {
	Data []struct {
		UserLogin string `json:"user_login"`
	} `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

// maxPages bounds pagination so a misbehaving cursor cannot loop forever.
const maxPages = 100

func (hc *HelixClient) logins(ctx context.Context, path string, q url.Values) ([]string, error) {
	var out []string
	for page := 0; page < maxPages; page++ {
		var body userPage
		if err := hc.get(ctx, hc.UserTokens, path, q, &body); err != nil {
			return nil, err
		}
		for _, d := range body.Data {
			out = append(out, d.UserLogin)
		}
		if body.Pagination.Cursor == "" {
			return out, nil
		}
		q.Set("after", body.Pagination.Cursor)
	}
	return out, nil
}

// GetChatters lists the logins of everyone currently connected to the
// broadcaster's chat. moderatorID is the user the token belongs to.
func (hc *HelixClient) GetChatters(ctx context.Context, broadcasterID, moderatorID string) ([]string, error) {
	if broadcasterID == "" || moderatorID == "" {
		return nil, fmt.Errorf("broadcasterID/moderatorID empty")
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("moderator_id", moderatorID)
	q.Set("first", strconv.Itoa(1000))
	return hc.logins(ctx, "/chat/chatters", q)
}

// GetModerators lists the logins of the channel's moderators.
func (hc *HelixClient) GetModerators(ctx context.Context, broadcasterID string) ([]string, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcasterID empty")
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("first", strconv.Itoa(100))
	return hc.logins(ctx, "/moderation/moderators", q)
}

// IsSubscribed reports whether userID subscribes to broadcasterID.
func (hc *HelixClient) IsSubscribed(ctx context.Context, broadcasterID, userID string) (bool, error) {
	if broadcasterID == "" || userID == "" {
		return false, fmt.Errorf("broadcasterID/userID empty")
	}
	var body struct {
		Data []struct {
			Tier string `json:"tier"`
		} `json:"data"`
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("user_id", userID)
	if err := hc.get(ctx, hc.UserTokens, "/subscriptions", q, &body); err != nil {
		return false, err
	}
	return len(body.Data) > 0, nil
}
