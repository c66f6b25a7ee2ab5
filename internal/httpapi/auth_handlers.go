package httpapi

import (
	"errors"
	"net/http"
	"time"

	"tvshelf.org/internal/audit"
	"tvshelf.org/internal/auth"
)

type signupRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signinResponse struct {
	accountView
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

type refreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// failedSignin is the 401 body for a wrong password; accessToken is explicitly null.
type failedSignin struct {
	errorBody
	AccessToken *string `json:"accessToken"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	identity, err := a.auth.Signup(r.Context(), auth.SignupRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventSignup, map[string]any{
		"account_id": identity.ID(),
		"roles":      identity.Authorities(),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "user registered successfully",
		"id":      identity.ID(),
	})
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	session, err := a.auth.Signin(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = audit.LogEvent(r.Context(), audit.EventSignin, map[string]any{
				"login":   req.Username,
				"outcome": "invalid_credentials",
			})
			w.Header().Set("WWW-Authenticate", `Bearer realm="tvshelf"`)
			writeJSON(w, http.StatusUnauthorized, failedSignin{
				errorBody: errorBody{
					Error:     codeInvalidCredentials,
					Message:   "invalid password",
					RequestID: audit.RequestIDFromContext(r.Context()),
				},
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventSignin, map[string]any{
		"account_id": session.Identity.ID(),
		"outcome":    "ok",
	})
	writeJSON(w, http.StatusOK, signinResponse{
		accountView:           newAccountView(session.Identity),
		AccessToken:           session.AccessToken.Value,
		AccessTokenExpiresAt:  session.AccessToken.ExpiresAt,
		RefreshToken:          session.RefreshToken.Value,
		RefreshTokenExpiresAt: session.RefreshToken.ExpiresAt,
	})
}

// handleRefresh takes the refresh token from the Authorization header.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		unauthenticated(w, r, codeUnauthenticated, err.Error())
		return
	}
	token, identity, err := a.auth.Refresh(r.Context(), raw)
	if err != nil {
		if status, code := classify(err); status == http.StatusUnauthorized {
			unauthenticated(w, r, code, err.Error())
			return
		}
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventRefresh, map[string]any{
		"account_id": identity.ID(),
	})
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: token.Value,
		ExpiresAt:   token.ExpiresAt,
	})
}
