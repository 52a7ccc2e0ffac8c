package httpx

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/plantnet/internal/apperr"
	"github.com/ariefcatur/plantnet/internal/auth"
	"github.com/ariefcatur/plantnet/internal/logging"
	"github.com/ariefcatur/plantnet/internal/orders"
)

var errInvalidJSON = apperr.New(apperr.InvalidArgument, "invalid json")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status. Internal details stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.Internal {
		logging.FromContext(r.Context()).Error("request_failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, apperr.HTTPStatus(kind), map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidJSON
	}
	return nil
}

// actor is the caller as seen by the order workflow. Role is empty on routes without a
// role check.
func actor(r *http.Request) orders.Actor {
	id, _ := auth.IdentityFrom(r.Context())
	return orders.Actor{Email: id.Email, Role: id.Role}
}
