package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	dbpkg "github.com/onnwee/modkeeper/db"
	"github.com/onnwee/modkeeper/twitchapi"
)

// twitchProvider is the oauth_tokens row holding the bot's user token.
const twitchProvider = "twitch"

// HandleTwitchOAuthStart initiates the Twitch OAuth flow by redirecting to Twitch.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil || h.db == nil {
		writeError(w, http.StatusBadRequest, "oauth not configured (need TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET, TWITCH_REDIRECT_URI and the postgres backend)")
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		writeError(w, http.StatusInternalServerError, "state gen error")
		return
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, time.Now().Add(10*time.Minute)) {
		writeError(w, http.StatusServiceUnavailable, "too many pending authorizations")
		return
	}
	authURL, err := twitchapi.BuildAuthorizeURL(h.oauth, st)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleTwitchOAuthCallback handles the OAuth callback from Twitch and stores tokens.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil || h.db == nil {
		writeError(w, http.StatusBadRequest, "oauth not configured")
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		writeError(w, http.StatusBadRequest, "missing code/state")
		return
	}
	if !h.consumeOAuthState(st) {
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}

	ctx := r.Context()
	tok, err := twitchapi.ExchangeAuthCode(ctx, h.oauth, code)
	if err != nil {
		slog.Error("twitch oauth exchange failed", slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	scope := twitchapi.ScopeOf(tok)
	expiry := twitchapi.ComputeExpiry(tok)
	err = dbpkg.UpsertToken(ctx, h.db, dbpkg.Token{
		Provider:     twitchProvider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiry,
		Scope:        scope,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"scope":      scope,
		"expires_at": expiry,
	})
}
