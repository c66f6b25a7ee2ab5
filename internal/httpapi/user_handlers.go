package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"tvshelf.org/internal/audit"
	"tvshelf.org/internal/auth"
	"tvshelf.org/internal/catalog"
	"tvshelf.org/internal/obs"
)

type accountView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	Shows     []string  `json:"shows"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newAccountView(id auth.Identity) accountView {
	shows := id.Account.ShowIDs
	if shows == nil {
		shows = []string{}
	}
	return accountView{
		ID:        id.ID(),
		Username:  id.Account.Username,
		Email:     id.Account.Email,
		Roles:     id.Authorities(),
		Shows:     shows,
		CreatedAt: id.Account.CreatedAt,
		UpdatedAt: id.Account.UpdatedAt,
	}
}

type updateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type syncShowsRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

type userPage struct {
	Items []accountView `json:"items"`
	pageView
}

type showList struct {
	Items []catalog.Show `json:"items"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, err.Error())
		return
	}
	res, err := a.accounts.List(r.Context(), page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(res.Skipped) > 0 {
		obs.Logger().WithFields(map[string]any{
			"request_id":  audit.RequestIDFromContext(r.Context()),
			"account_ids": res.Skipped,
		}).Warn("accounts_unresolvable")
	}
	items := make([]accountView, 0, len(res.Items))
	for _, id := range res.Items {
		items = append(items, newAccountView(id))
	}
	writeJSON(w, http.StatusOK, userPage{Items: items, pageView: newPageView(res.Page, res.Total)})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	identity, err := a.accounts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(identity))
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	identity, err := a.accounts.Update(r.Context(), id, auth.ProfilePatch{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUpdate, map[string]any{
		"account_id":       id,
		"username_changed": req.Username != "",
		"email_changed":    req.Email != "",
		"password_changed": req.Password != "",
	})
	writeJSON(w, http.StatusOK, newAccountView(identity))
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.accounts.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventDelete, map[string]any{"account_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	a.changeRole(w, r, a.accounts.AssignRole, audit.EventRoleAssign)
}

func (a *API) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	a.changeRole(w, r, a.accounts.RevokeRole, audit.EventRoleRevoke)
}

func (a *API) changeRole(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, string) (auth.Identity, error), event string) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	identity, err := apply(r.Context(), id, req.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"account_id": id,
		"role":       req.Role,
	})
	writeJSON(w, http.StatusOK, newAccountView(identity))
}

func (a *API) handleUserShows(w http.ResponseWriter, r *http.Request) {
	shows, err := a.accounts.Shows(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newShowList(shows))
}

func (a *API) handleSyncUserShows(w http.ResponseWriter, r *http.Request) {
	var req syncShowsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	shows, err := a.accounts.SyncShows(r.Context(), id, req.Add, req.Remove)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventShowsChange, map[string]any{
		"account_id": id,
		"added":      req.Add,
		"removed":    req.Remove,
	})
	writeJSON(w, http.StatusOK, newShowList(shows))
}

func (a *API) handleLinkShow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.accounts.LinkShow(r.Context(), vars["id"], vars["tvId"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventShowsChange, map[string]any{
		"account_id": vars["id"],
		"added":      []string{vars["tvId"]},
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUnlinkShow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.accounts.UnlinkShow(r.Context(), vars["id"], vars["tvId"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventShowsChange, map[string]any{
		"account_id": vars["id"],
		"removed":    []string{vars["tvId"]},
	})
	w.WriteHeader(http.StatusNoContent)
}

func newShowList(shows []catalog.Show) showList {
	if shows == nil {
		shows = []catalog.Show{}
	}
	return showList{Items: shows}
}
