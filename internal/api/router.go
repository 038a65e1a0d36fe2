// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/lineagehub/internal/config"
	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/middleware"
	"github.com/tomtom215/lineagehub/internal/registry"
	"github.com/tomtom215/lineagehub/internal/websocket"
)

// helpListing is the plain-text body of the root route. Clients with
// nothing but curl should be able to discover the whole surface.
const helpListing = `Listings:
---------
/	-- accessing root folder of the server prints this help
/healthz	-- liveness probe, returns OK
/metrics	-- Prometheus scrape endpoint
/events	-- websocket stream of server-wide activity

Dataset management:
-------------------
/add/DATASET	-- adds a new DATASET to this server
            	-- returns either DATASET or ERROR textual response
/addSecret/DATASET	-- creates random (and hard to guess) PREFIX sequence
                  	-- adds a PREFIX-DATASET to this server
                  	-- returns either PREFIX-DATASET or ERROR textual response
/remove/DATASET	-- removes DATASET from this server
               	-- returns either OK or ERROR textual response

Dataset operations:
-------------------
/DATASET	-- lists the files of the DATASET
/DATASET/put	-- POST body is stored under ?name= with ?spots= and ?links= counts
/DATASET/list	-- plain listing of valid snapshot files, one per line
/DATASET/files	-- browsable listing, append a file name to download

Details:
--------
DATASET -- is a text made of characters legal for the URL and file systems
        -- maps into a folder on the server
        -- is the only "key" to read/write access the data
        -- should include long random substring in the name if you want
           to make it hard to guess the name and gain unwanted access consequently
`

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler so it can be used with r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Router wires the management routes, the per-dataset dispatch, and
// the observability endpoints into one chi mux.
type Router struct {
	registry *registry.Registry
	hub      *websocket.Hub
	mw       *ChiMiddleware
}

// NewRouter builds a router over the given registry. hub may be nil
// when the activity feed is not running; /events then answers 404.
func NewRouter(cfg *config.Config, reg *registry.Registry, hub *websocket.Hub) *Router {
	return &Router{
		registry: reg,
		hub:      hub,
		mw: NewChiMiddlewareFromSecurity(
			cfg.Security.CORSOrigins,
			cfg.Security.RateLimitReqs,
			cfg.Security.RateLimitWindow,
			cfg.Security.RateLimitDisabled,
		),
	}
}

// Setup assembles all routes and the global middleware chain.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.mw.CORS())
	r.Use(SecurityHeaders())
	r.Use(chiMiddleware(middleware.PrometheusMetrics))
	r.Use(chiMiddleware(middleware.Compression))

	r.Group(func(r chi.Router) {
		r.Use(rt.mw.RateLimitCustom(RateLimitHealth))
		r.Get("/", rt.handleHelp)
		r.Get("/healthz", rt.handleHealth)
		// The outer middleware already negotiates gzip; the scrape
		// handler must not compress a second time.
		r.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{DisableCompression: true},
		))
		if rt.hub != nil {
			r.Get("/events", websocket.Handler(rt.hub))
		}
	})

	// Dataset creation and removal mutate the storage tree, so they
	// get the strict limiter. Registered method-agnostic: clients call
	// these with GET or POST and parse the literal body either way.
	r.Group(func(r chi.Router) {
		r.Use(rt.mw.RateLimitCustom(RateLimitManage))
		r.HandleFunc("/add/{name}", rt.handleAdd)
		r.HandleFunc("/addSecret/{name}", rt.handleAddSecret)
		r.HandleFunc("/remove/{name}", rt.handleRemove)
	})

	r.Group(func(r chi.Router) {
		r.Use(rt.mw.RateLimit())
		r.HandleFunc("/{dataset}", rt.dispatch)
		r.HandleFunc("/{dataset}/*", rt.dispatch)
	})

	return r
}

func (rt *Router) handleHelp(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, helpListing)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

// Management responses are literal text at status 200: the created
// name, OK, or ERROR. Callers parse bodies, not status codes.
func respondText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

func (rt *Router) handleAdd(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	created, err := rt.registry.Add(name)
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("dataset", name).Msg("Dataset creation refused")
		respondText(w, "ERROR")
		return
	}
	respondText(w, created)
}

func (rt *Router) handleAddSecret(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	created, err := rt.registry.AddSecret(name)
	if err != nil {
		logging.CtxErr(r.Context(), err).Str("dataset", name).Msg("Secret dataset creation refused")
		respondText(w, "ERROR")
		return
	}
	respondText(w, created)
}

func (rt *Router) handleRemove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := rt.registry.Remove(name); err != nil {
		logging.CtxErr(r.Context(), err).Str("dataset", name).Msg("Dataset removal refused")
		respondText(w, "ERROR")
		return
	}
	respondText(w, "OK")
}

// dispatch routes /{dataset}/... to the dataset's own service router,
// the same way chi's Mount forwards into a subrouter.
func (rt *Router) dispatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	svc := rt.registry.Service(name)
	if svc == nil {
		http.NotFound(w, r)
		return
	}

	ctx := logging.ContextWithDataset(r.Context(), name)
	rctx := chi.RouteContext(ctx)
	routePath := "/"
	if tail := chi.URLParam(r, "*"); tail != "" {
		routePath += tail
	}
	rctx.RoutePath = routePath

	svc.Router().ServeHTTP(w, r.WithContext(ctx))
}
