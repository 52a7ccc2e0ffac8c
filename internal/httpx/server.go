package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/plantnet/internal/auth"
	"github.com/ariefcatur/plantnet/internal/metrics"
	"github.com/ariefcatur/plantnet/internal/users"
)

func NewRouter(log *zap.Logger, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(log), middleware.Recoverer, instrument(m))
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	return r
}

// Gate builds the auth middleware chains used by the handlers.
type Gate struct {
	Tokens *auth.Tokens
	Roles  auth.RoleLookup
}

func (g Gate) Authed() chi.Middlewares {
	return chi.Chain(auth.Authenticate(g.Tokens))
}

// Role requires a session and one of roles.
func (g Gate) Role(roles ...users.Role) chi.Middlewares {
	return chi.Chain(auth.Authenticate(g.Tokens), auth.RequireRole(g.Roles, roles...))
}

// Member accepts any saved user.
func (g Gate) Member() chi.Middlewares {
	return g.Role(users.RoleCustomer, users.RoleSeller, users.RoleAdmin)
}
