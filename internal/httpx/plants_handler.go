package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/plantnet/internal/journal"
	"github.com/ariefcatur/plantnet/internal/orders"
	"github.com/ariefcatur/plantnet/internal/plants"
	"github.com/ariefcatur/plantnet/internal/users"
)

type PlantStore interface {
	Create(ctx context.Context, l plants.Listing) (plants.Listing, error)
	Get(ctx context.Context, id string) (plants.Listing, error)
	List(ctx context.Context, limit int) ([]plants.Listing, error)
	ListBySeller(ctx context.Context, email string) ([]plants.Listing, error)
	Delete(ctx context.Context, id, sellerEmail string) error
}

type MovementLister interface {
	ListByPlant(ctx context.Context, plantID string, limit int) ([]journal.Movement, error)
}

type StockAdjuster interface {
	AdjustStock(ctx context.Context, plantID string, delta int, actor orders.Actor) (int, error)
}

type PlantsHandler struct {
	Plants    PlantStore
	Users     UserStore
	Movements MovementLister
	Stock     StockAdjuster
}

func (h *PlantsHandler) Register(r chi.Router, g Gate) {
	r.Get("/plants", h.list)
	r.Get("/plants/{id}", h.get)
	r.With(g.Role(users.RoleSeller)...).Post("/plants", h.create)
	r.With(g.Role(users.RoleSeller)...).Get("/seller/plants", h.mine)
	r.With(g.Role(users.RoleSeller)...).Delete("/inventory/{id}", h.delete)
	r.With(g.Role(users.RoleSeller)...).Get("/plants/{id}/movements", h.movements)
	r.With(g.Role(users.RoleSeller, users.RoleAdmin)...).Patch("/plants/quantify/{id}", h.quantify)
}

type createPlantReq struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (h *PlantsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createPlantReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cents, err := plants.ToCents(req.Price)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	seller, err := h.Users.Get(ctx, actor(r).Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.Plants.Create(ctx, plants.Listing{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Image:       req.Image,
		PriceCents:  cents,
		Quantity:    req.Quantity,
		Seller:      plants.Seller{Name: seller.Name, Email: seller.Email, Image: seller.Image},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingView(l))
}

func (h *PlantsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ls, err := h.Plants.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingViews(ls))
}

func (h *PlantsHandler) get(w http.ResponseWriter, r *http.Request) {
	l, err := h.Plants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingView(l))
}

func (h *PlantsHandler) mine(w http.ResponseWriter, r *http.Request) {
	ls, err := h.Plants.ListBySeller(r.Context(), actor(r).Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingViews(ls))
}

func (h *PlantsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Plants.Delete(r.Context(), chi.URLParam(r, "id"), actor(r).Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *PlantsHandler) movements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	l, err := h.Plants.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if l.Seller.Email != actor(r).Email {
		writeError(w, r, plants.ErrNotOwner)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ms, err := h.Movements.ListByPlant(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementViews(ms))
}

type quantifyReq struct {
	Delta int `json:"delta"`
}

// quantify applies a signed stock delta.
func (h *PlantsHandler) quantify(w http.ResponseWriter, r *http.Request) {
	var req quantifyReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	qty, err := h.Stock.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Delta, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"quantity": qty})
}

func listingViews(ls []plants.Listing) []listingView {
	out := make([]listingView, 0, len(ls))
	for _, l := range ls {
		out = append(out, toListingView(l))
	}
	return out
}
