package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mymasternode.org/internal/audit"
	"mymasternode.org/internal/auth"
	"mymasternode.org/internal/obs"
)

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	RoleID   *int64 `json:"role_id"`
}

type scopeSetRequest struct {
	ScopeIDs []int64 `json:"scope_ids"`
}

type scopeChangeResponse struct {
	Added []int64 `json:"added"`
	NoOp  bool    `json:"no_op"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePolicy(w, r, auth.PolicyUserRead) {
			return
		}
		includeScopes := r.URL.Query().Get("include_scopes") == "true"
		users, err := a.svc.ListUsers(r.Context(), includeScopes)
		if err != nil {
			handleUserError(w, r, err)
			return
		}
		if users == nil {
			users = []*auth.User{}
		}
		writeJSON(w, http.StatusOK, users)

	case http.MethodPost:
		if !a.ensurePolicy(w, r, auth.PolicyUserCreate) {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.svc.CreateUser(r.Context(), req.Username, req.Password, req.RoleID)
		if err != nil {
			handleUserError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.created", map[string]any{
			"user_id": user.ID,
			"role_id": user.RoleID,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%d", user.ID))
		writeJSON(w, http.StatusCreated, user)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case len(parts) == 1:
		a.handleUser(w, r, id)
	case len(parts) == 2 && parts[1] == "scopes":
		a.handleUserScopes(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePolicy(w, r, auth.PolicyUserRead) {
			return
		}
		user, err := a.svc.GetUser(r.Context(), id)
		if err != nil {
			handleUserError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodPatch:
		if !a.ensurePolicy(w, r, auth.PolicyUserWrite) {
			return
		}
		var upd auth.UserUpdate
		if err := decodeJSON(w, r, &upd); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.UpdateUser(r.Context(), id, upd); err != nil {
			handleUserError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{
			"user_id": id,
		})
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if !a.ensurePolicy(w, r, auth.PolicyUserDelete) {
			return
		}
		if err := a.svc.DeleteUser(r.Context(), id); err != nil {
			handleUserError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{
			"user_id": id,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleUserScopes(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}
	if !a.ensurePolicy(w, r, auth.PolicyUserWrite) {
		return
	}

	var req scopeSetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodPost:
		change, err := a.svc.AddScopes(r.Context(), id, req.ScopeIDs)
		if err != nil {
			handleUserError(w, r, err)
			return
		}
		if !change.NoOp {
			_ = audit.LogEvent(r.Context(), "user.scopes.added", map[string]any{
				"user_id":   id,
				"scope_ids": change.Added,
			})
		}
		if change.Added == nil {
			change.Added = []int64{}
		}
		writeJSON(w, http.StatusOK, scopeChangeResponse{Added: change.Added, NoOp: change.NoOp})

	case http.MethodDelete:
		if err := a.svc.RemoveScopes(r.Context(), id, req.ScopeIDs); err != nil {
			handleUserError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.scopes.removed", map[string]any{
			"user_id":   id,
			"scope_ids": req.ScopeIDs,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "forbidden")
	default:
		obs.Error("user operation failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "user operation failed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
