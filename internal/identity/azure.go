package identity

import (
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const stateCookie = "oauth_state"

// AzureFlow implements the Azure AD authorization-code login. It is
// wired into the router only when client/tenant credentials are
// configured; the callback mints a session token so the rest of the
// system keeps resolving identity through Sessions.
type AzureFlow struct {
	oauth    *oauth2.Config
	sessions *Sessions
}

func NewAzureFlow(clientID, clientSecret, tenantID, redirectURI string, sessions *Sessions) *AzureFlow {
	return &AzureFlow{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     microsoft.AzureADEndpoint(tenantID),
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "profile", "User.Read"},
		},
		sessions: sessions,
	}
}

func (f *AzureFlow) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})
	http.Redirect(w, r, f.oauth.AuthCodeURL(state), http.StatusFound)
}

func (f *AzureFlow) HandleCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || c.Value != r.URL.Query().Get("state") {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := f.oauth.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}
	userID, err := subjectFromIDToken(token)
	if err != nil {
		http.Error(w, "could not resolve identity", http.StatusBadGateway)
		return
	}

	session, err := f.sessions.Issue(userID)
	if err != nil {
		http.Error(w, "could not establish session", http.StatusInternalServerError)
		return
	}
	f.sessions.SetCookie(w, session)
	http.Redirect(w, r, "/", http.StatusFound)
}

// subjectFromIDToken pulls a stable identifier out of the ID token.
// The token arrived over TLS straight from the token endpoint, so
// signature verification is not repeated here.
func subjectFromIDToken(token *oauth2.Token) (string, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return "", fmt.Errorf("token response has no id_token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("parse id_token: %w", err)
	}
	if v, ok := claims["preferred_username"].(string); ok && v != "" {
		return v, nil
	}
	if v, ok := claims["sub"].(string); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("id_token has no usable subject")
}
