package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mymasternode.org/internal/auth"
	"mymasternode.org/internal/obs"
)

// ReadyProbe reports whether the backing store can serve traffic.
type ReadyProbe struct {
	Store auth.Store
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Options tune the outer middleware chain.
type Options struct {
	Version       string
	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
}

func (o *Options) defaults() {
	if o.RateBurst <= 0 {
		o.RateBurst = 20
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 10
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
}

// API is the HTTP layer over the auth service.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	issuer     *auth.Issuer
	readyProbe ReadyProbe
	opts       Options
}

func New(svc *auth.Service, issuer *auth.Issuer, rp ReadyProbe, opts Options) *API {
	opts.defaults()
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		issuer:     issuer,
		readyProbe: rp,
		opts:       opts,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// credential flow
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)

	// user management
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the full middleware chain around the instrumented mux.
func (a *API) Handler() http.Handler {
	h := obs.Instrument(a.withAuth(a.mux))
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "mymasternode-auth",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "mymasternode-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
