package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/plantnet/internal/apperr"
	"github.com/ariefcatur/plantnet/internal/auth"
	"github.com/ariefcatur/plantnet/internal/users"
)

var errNotSelf = apperr.New(apperr.Forbidden, "forbidden access")

type UserStore interface {
	Save(ctx context.Context, u users.User) (users.User, bool, error)
	Get(ctx context.Context, email string) (users.User, error)
	RoleOf(ctx context.Context, email string) (users.Role, error)
	ListExcept(ctx context.Context, email string) ([]users.User, error)
	RequestSeller(ctx context.Context, email string) (users.User, error)
	Decide(ctx context.Context, email string, decision users.Role) (users.User, error)
}

type UsersHandler struct {
	Users      UserStore
	Tokens     *auth.Tokens
	Production bool
}

func (h *UsersHandler) Register(r chi.Router, g Gate) {
	r.Post("/jwt", h.issueToken)
	r.Get("/logout", h.logout)
	r.Post("/users/{email}", h.saveUser)
	r.With(g.Authed()...).Get("/users/role/{email}", h.role)
	r.With(g.Authed()...).Patch("/users/{email}", h.requestSeller)
	r.With(g.Role(users.RoleAdmin)...).Get("/manage-users/{email}", h.manageUsers)
	r.With(g.Role(users.RoleAdmin)...).Patch("/user/role/{email}", h.decide)
}

type tokenReq struct {
	Email string `json:"email"`
}

func (h *UsersHandler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.Tokens.Issue(req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	auth.SetCookie(w, token, h.Tokens.TTL, h.Production)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *UsersHandler) logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w, h.Production)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type saveUserReq struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// saveUser stores the user on first sight; later calls return the stored record.
func (h *UsersHandler) saveUser(w http.ResponseWriter, r *http.Request) {
	var req saveUserReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u, created, err := h.Users.Save(ctx, users.User{Email: emailParam(r), Name: req.Name, Image: req.Image})
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, toUserView(u))
}

func (h *UsersHandler) role(w http.ResponseWriter, r *http.Request) {
	role, err := h.Users.RoleOf(r.Context(), emailParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]users.Role{"role": role})
}

func (h *UsersHandler) requestSeller(w http.ResponseWriter, r *http.Request) {
	email := emailParam(r)
	if !isSelf(r, email) {
		writeError(w, r, errNotSelf)
		return
	}
	u, err := h.Users.RequestSeller(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func (h *UsersHandler) manageUsers(w http.ResponseWriter, r *http.Request) {
	email := emailParam(r)
	if !isSelf(r, email) {
		writeError(w, r, errNotSelf)
		return
	}
	us, err := h.Users.ListExcept(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userView, 0, len(us))
	for _, u := range us {
		out = append(out, toUserView(u))
	}
	writeJSON(w, http.StatusOK, out)
}

type decideReq struct {
	Role string `json:"role"`
}

// decide approves (role=seller) or rejects (role=customer) a pending seller request.
func (h *UsersHandler) decide(w http.ResponseWriter, r *http.Request) {
	var req decideReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	role, err := users.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Users.Decide(r.Context(), emailParam(r), role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func isSelf(r *http.Request, email string) bool {
	id, ok := auth.IdentityFrom(r.Context())
	return ok && email == id.Email
}

func emailParam(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(chi.URLParam(r, "email")))
}
