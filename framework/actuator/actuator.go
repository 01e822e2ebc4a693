// Package actuator exposes a read-only HTTP view of a running container:
// health, the component table, the resolved wiring and property values.
//
//	r := actuator.New(c)
//	http.ListenAndServe(":8081", r)
//
// Routes:
//
//	GET /health             200 {"data":{"status":"UP"}} once Ready, 503 otherwise
//	GET /components         every active component with its state
//	GET /components/{id}    one component, by id or alias
//	GET /bindings           how each dependency slot was resolved
//	GET /env                active profiles and property sources
//	GET /env/{key}          one resolved property; secrets are masked
package actuator

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/km-arc/go-ioc/framework/container"
)

const masked = "******"

// secretMarkers flag property keys whose values are never echoed.
var secretMarkers = []string{"password", "secret", "token", "credential", "private", "apikey", "api.key", "api_key"}

// Router serves the actuator endpoints for one container.
type Router struct {
	mux chi.Router
	c   *container.Container
}

// New builds the router. Extra middleware runs after the defaults
// (RequestID, RealIP, Recoverer).
func New(c *container.Container, mw ...func(http.Handler) http.Handler) *Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(mw...)

	a := &Router{mux: r, c: c}
	r.Get("/health", a.health)
	r.Route("/components", func(r chi.Router) {
		r.Get("/", a.components)
		r.Get("/{id}", a.component)
	})
	r.Get("/bindings", a.bindings)
	r.Route("/env", func(r chi.Router) {
		r.Get("/", a.env)
		r.Get("/{key}", a.property)
	})
	return a
}

// ServeHTTP implements http.Handler.
func (a *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	a.mux.ServeHTTP(w, req)
}

// Handler returns the underlying http.Handler.
func (a *Router) Handler() http.Handler { return a.mux }

// ── Handlers ─────────────────────────────────────────────────────────────────

func (a *Router) health(w http.ResponseWriter, _ *http.Request) {
	phase := a.c.Phase()
	status, code := "UP", http.StatusOK
	if phase != container.PhaseReady {
		status, code = "DOWN", http.StatusServiceUnavailable
	}
	writeJSON(w, code, envelope{"data": envelope{"status": status, "phase": phase}})
}

func (a *Router) components(w http.ResponseWriter, _ *http.Request) {
	success(w, a.c.Components())
}

func (a *Router) component(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	info, ok := a.c.Component(id)
	if !ok {
		notFound(w, "no component named "+id)
		return
	}
	success(w, info)
}

func (a *Router) bindings(w http.ResponseWriter, _ *http.Request) {
	success(w, a.c.Bindings())
}

func (a *Router) env(w http.ResponseWriter, _ *http.Request) {
	success(w, envelope{
		"profiles": a.c.Profiles(),
		"sources":  a.c.Properties().Sources(),
	})
}

func (a *Router) property(w http.ResponseWriter, req *http.Request) {
	key := chi.URLParam(req, "key")
	raw, ok := a.c.Properties().Resolve(key)
	if !ok {
		notFound(w, "property "+key+" is not set")
		return
	}
	success(w, envelope{"key": key, "value": a.reveal(key, raw)})
}

// reveal expands the value of key unless the expansion reads a secret.
// A value that cannot be expanded is shown raw.
func (a *Router) reveal(key, raw string) string {
	if secret(key) {
		return masked
	}
	v, used, err := a.c.Properties().Trace(raw)
	if err != nil {
		return raw
	}
	for _, k := range used {
		if secret(k) {
			return masked
		}
	}
	return v
}

func secret(key string) bool {
	lower := strings.ToLower(key)
	for _, m := range secretMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
