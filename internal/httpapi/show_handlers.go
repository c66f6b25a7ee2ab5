package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"tvshelf.org/internal/audit"
	"tvshelf.org/internal/catalog"
)

type showPage struct {
	Items []catalog.Show `json:"items"`
	pageView
}

func (a *API) handleListShows(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, err.Error())
		return
	}
	res, err := a.shows.List(r.Context(), page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items := res.Items
	if items == nil {
		items = []catalog.Show{}
	}
	writeJSON(w, http.StatusOK, showPage{Items: items, pageView: newPageView(res.Page, res.Total)})
}

func (a *API) handleGetShow(w http.ResponseWriter, r *http.Request) {
	show, err := a.shows.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, show)
}

func (a *API) handleGetShowByExternalID(w http.ResponseWriter, r *http.Request) {
	externalID, err := strconv.ParseInt(mux.Vars(r)["externalId"], 10, 64)
	if err != nil || externalID <= 0 {
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, "externalId must be a positive integer")
		return
	}
	show, err := a.shows.GetByExternalID(r.Context(), externalID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, show)
}

func (a *API) handleCreateShow(w http.ResponseWriter, r *http.Request) {
	var req catalog.Show
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	show, err := a.shows.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventShowCreate, map[string]any{
		"show_id":     show.ID,
		"external_id": show.ExternalID,
	})
	w.Header().Set("Location", "/tv/"+show.ID)
	writeJSON(w, http.StatusCreated, show)
}

func (a *API) handleUpdateShow(w http.ResponseWriter, r *http.Request) {
	var upd catalog.ShowUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	show, err := a.shows.Update(r.Context(), id, upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventShowUpdate, map[string]any{"show_id": id})
	writeJSON(w, http.StatusOK, show)
}

func (a *API) handleDeleteShow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.shows.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventShowDelete, map[string]any{"show_id": id})
	w.WriteHeader(http.StatusNoContent)
}
