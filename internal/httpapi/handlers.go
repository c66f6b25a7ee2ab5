package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tvshelf.org/internal/auth"
	"tvshelf.org/internal/catalog"
	"tvshelf.org/internal/config"
	"tvshelf.org/internal/obs"
	"tvshelf.org/internal/paging"
	"tvshelf.org/internal/ratelimit"
)

const serviceName = "tvshelf-api"

// ReadinessChecker reports whether backing stores are reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe adapts a ping function. A nil Ping is always ready (in-memory stores).
type ReadyProbe struct {
	Ping func(ctx context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Ping == nil {
		return nil
	}
	return rp.Ping(ctx)
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Auth     *auth.Service
	Accounts *auth.AccountService
	Shows    *catalog.Service
	Ready    ReadinessChecker
	Limiter  ratelimit.Limiter
	Server   config.ServerConfig
	Version  string
	Commit   string
}

// API is the HTTP layer.
type API struct {
	router   *mux.Router
	auth     *auth.Service
	accounts *auth.AccountService
	shows    *catalog.Service
	ready    ReadinessChecker
	limiter  ratelimit.Limiter
	server   config.ServerConfig
	proxies  []netip.Prefix
	version  string
	commit   string
	now      func() time.Time
}

func New(d Deps) *API {
	ready := d.Ready
	if ready == nil {
		ready = ReadyProbe{}
	}
	a := &API{
		router:   mux.NewRouter(),
		auth:     d.Auth,
		accounts: d.Accounts,
		shows:    d.Shows,
		ready:    ready,
		limiter:  d.Limiter,
		server:   d.Server,
		version:  d.Version,
		commit:   d.Commit,
		now:      time.Now,
	}
	// Load validates the list; anything unparsable here is ignored.
	a.proxies, _ = d.Server.TrustedProxyPrefixes()
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// public
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.HandleFunc("/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/auth/signup", a.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/auth/signin", a.handleSignin).Methods(http.MethodPost)
	r.HandleFunc("/auth/refreshToken", a.handleRefresh).Methods(http.MethodPost)

	// bearer access token required
	p := r.NewRoute().Subrouter()
	p.Use(a.withAuth)

	p.HandleFunc("/users", a.handleListUsers).Methods(http.MethodGet)
	p.HandleFunc("/user/{id}", a.handleGetUser).Methods(http.MethodGet)
	p.HandleFunc("/user/{id}", a.handleUpdateUser).Methods(http.MethodPut)
	p.HandleFunc("/user/{id}", a.handleDeleteUser).Methods(http.MethodDelete)
	p.HandleFunc("/user/{id}/role", a.handleAssignRole).Methods(http.MethodPost)
	p.HandleFunc("/user/{id}/role", a.handleRevokeRole).Methods(http.MethodDelete)
	p.HandleFunc("/user/{id}/tv", a.handleUserShows).Methods(http.MethodGet)
	p.HandleFunc("/user/{id}/tv", a.handleSyncUserShows).Methods(http.MethodPatch)
	p.HandleFunc("/user/{id}/tv/{tvId}", a.handleLinkShow).Methods(http.MethodPost)
	p.HandleFunc("/user/{id}/tv/{tvId}", a.handleUnlinkShow).Methods(http.MethodDelete)

	p.HandleFunc("/tv", a.handleListShows).Methods(http.MethodGet)
	p.HandleFunc("/tv", a.handleCreateShow).Methods(http.MethodPost)
	p.HandleFunc("/tv/external/{externalId}", a.handleGetShowByExternalID).Methods(http.MethodGet)
	p.HandleFunc("/tv/{id}", a.handleGetShow).Methods(http.MethodGet)
	p.HandleFunc("/tv/{id}", a.handleUpdateShow).Methods(http.MethodPatch)
	p.HandleFunc("/tv/{id}", a.handleDeleteShow).Methods(http.MethodDelete)
}

// Handler wraps the router in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = RequestTimeout(h, a.server.RequestTimeout)
	h = MaxBodyBytes(h, a.server.MaxBodyBytes)
	h = RateLimit(h, a.limiter, a.proxies)
	h = CORS(h, a.server.CORSOrigins)
	h = SecurityHeaders(h)
	return RequestID(h)
}

// --- operational handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		obs.Logger().WithError(err).Warn("readiness_failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    a.now().UTC().Format(time.RFC3339),
		"version": a.version,
		"commit":  a.commit,
	})
}

// --- helpers ---

// pageFromQuery reads page and perPage. Absent values take the defaults.
func pageFromQuery(r *http.Request) (paging.Page, error) {
	q := r.URL.Query()
	var p paging.Page
	for _, f := range []struct {
		name string
		dst  *int
	}{{"page", &p.Number}, {"perPage", &p.Size}} {
		raw := strings.TrimSpace(q.Get(f.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return paging.Page{}, fmt.Errorf("%s must be a positive integer", f.name)
		}
		*f.dst = n
	}
	return p.Normalize(), nil
}

type pageView struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalPages int `json:"totalPages"`
}

func newPageView(p paging.Page, total int) pageView {
	return pageView{Total: total, Page: p.Number, PerPage: p.Size, TotalPages: p.TotalPages(total)}
}
