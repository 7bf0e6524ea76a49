package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"mymasternode.org/internal/audit"
	"mymasternode.org/internal/auth"
	"mymasternode.org/internal/obs"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID int64 `json:"id"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id, err := a.svc.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrConflict):
			// Duplicate registration is a caller mistake, same as bad input.
			writeError(w, r, http.StatusBadRequest, "username already exists")
		default:
			obs.Error("registration failed", map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"error":      err.Error(),
			})
			writeError(w, r, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.user.registered", map[string]any{
		"user_id": id,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%d", id))
	writeJSON(w, http.StatusCreated, registerResponse{ID: id})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := a.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			obs.ObserveLogin("failure")
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			// One message for unknown user and wrong password alike.
			obs.ObserveLogin("failure")
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
				"username": req.Username,
			})
			writeError(w, r, http.StatusUnauthorized, "invalid username or password")
		default:
			obs.ObserveLogin("error")
			obs.Error("login failed", map[string]any{
				"request_id": RequestIDFromContext(r.Context()),
				"error":      err.Error(),
			})
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	obs.ObserveLogin("success")
	obs.ObserveTokenIssued()
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{
		"username": req.Username,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}
