package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ariefcatur/plantnet/internal/apperr"
	"github.com/ariefcatur/plantnet/internal/logging"
	"github.com/ariefcatur/plantnet/internal/users"
)

var ErrRole = apperr.New(apperr.Forbidden, "forbidden access")

// Identity is the caller. Role is set only behind RequireRole.
type Identity struct {
	Email string
	Role  users.Role
}

type RoleLookup interface {
	RoleOf(ctx context.Context, email string) (users.Role, error)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Authenticate accepts the session cookie or a Bearer header.
func Authenticate(tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFrom(r)
			if raw == "" {
				deny(w, ErrNoToken)
				return
			}
			email, err := tokens.Parse(raw)
			if err != nil {
				deny(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{Email: email})))
		})
	}
}

// RequireRole resolves the caller's current role and rejects anyone outside roles.
// It must run after Authenticate.
func RequireRole(lookup RoleLookup, roles ...users.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				deny(w, ErrNoToken)
				return
			}
			role, err := lookup.RoleOf(r.Context(), id.Email)
			if errors.Is(err, users.ErrNotFound) {
				deny(w, ErrRole)
				return
			}
			if err != nil {
				logging.FromContext(r.Context()).Error("role lookup failed", zap.Error(err))
				deny(w, err)
				return
			}
			if !slices.Contains(roles, role) {
				deny(w, ErrRole)
				return
			}
			id.Role = role
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func tokenFrom(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func deny(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := "internal error"
	if kind != apperr.Internal {
		msg = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
