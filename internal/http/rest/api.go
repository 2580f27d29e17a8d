package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bwise1/voteledger/config"
	deps "github.com/bwise1/voteledger/internal/debs"
	"github.com/bwise1/voteledger/util/values"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultIdleTimeout    = time.Minute
	defaultReadTimeout    = 5 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultShutdownPeriod = 30 * time.Second
)

type Handler func(w http.ResponseWriter, r *http.Request) *ServerResponse

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h(w, r)
	respByte, err := json.Marshal(resp)
	if err != nil {
		writeErrorResponse(w, err, values.Error, "unable to marshal server response")
		return
	}
	writeJSONResponse(w, respByte, resp.StatusCode)
}

type API struct {
	Server *http.Server
	Config *config.Config
	Deps   *deps.Dependencies
}

func (api *API) Serve() error {
	api.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", api.Config.Port),
		IdleTimeout:  defaultIdleTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		Handler:      api.Routes(),
	}
	return api.Server.ListenAndServe()
}

// Routes builds the full HTTP handler.
func (api *API) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(api.Metrics)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, []byte(`{"status":"ok"}`), http.StatusOK)
	})
	mux.Handle("/metrics", api.Deps.Metrics.Handler())
	mux.With(api.RequireLoginWS).Get("/ws", api.HandleWebSocket)

	mux.Group(func(r chi.Router) {
		r.Use(RequestTracing)
		r.Mount("/entities", api.EntityRoutes())
		r.Mount("/share-unlocks", api.ShareRoutes())
		r.With(api.RequireLogin).Method(http.MethodGet, "/quota", Handler(api.GetQuota))
	})

	return mux
}

func (api *API) Shutdown() error {
	if api.Server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownPeriod)
	defer cancel()
	return api.Server.Shutdown(ctx)
}
