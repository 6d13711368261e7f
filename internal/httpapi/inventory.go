package httpapi

import (
	"net/http"
	"strconv"

	"storecore/internal/inventory"
	"storecore/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type inventoryHandler struct {
	svc InventoryService
}

func (h *inventoryHandler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]stockView, len(records))
	for i, rec := range records {
		out[i] = newStockView(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *inventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	key, ok := stockKey(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStockView(rec))
}

func (h *inventoryHandler) history(w http.ResponseWriter, r *http.Request) {
	key, ok := stockKey(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.svc.History(r.Context(), key, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]stockLogView, len(logs))
	for i, l := range logs {
		out[i] = stockLogView{
			ID:             l.ID,
			Action:         l.Action,
			Quantity:       l.Quantity,
			AvailableAfter: l.AvailableAfter,
			ReservedAfter:  l.ReservedAfter,
			Reason:         l.Reason,
			Actor:          l.Actor,
			Reference:      l.Reference,
			CreatedAt:      l.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *inventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	key, req, ok := h.change(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Adjust(r.Context(), key, req.Delta, meta(r, req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStockView(rec))
}

func (h *inventoryHandler) correct(w http.ResponseWriter, r *http.Request) {
	key, req, ok := h.change(w, r)
	if !ok {
		return
	}
	if req.Reserved == nil {
		badRequest(w, "reserved is required")
		return
	}
	rec, err := h.svc.Correct(r.Context(), key, *req.Reserved, meta(r, req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStockView(rec))
}

func (h *inventoryHandler) change(w http.ResponseWriter, r *http.Request) (inventory.Key, stockChangeRequest, bool) {
	var req stockChangeRequest
	key, ok := stockKey(w, r)
	if !ok || !decode(w, r, &req) {
		return key, req, false
	}
	return key, req, true
}

func meta(r *http.Request, req stockChangeRequest) inventory.Meta {
	actor, _ := middleware.ActorFrom(r.Context())
	return inventory.Meta{Reason: req.Reason, Actor: actor.String(), Reference: req.Reference}
}

func stockKey(w http.ResponseWriter, r *http.Request) (inventory.Key, bool) {
	variant, err := strconv.ParseUint(chi.URLParam(r, "variant"), 10, 32)
	if err != nil || variant == 0 {
		badRequest(w, "variant must be a positive number")
		return inventory.Key{}, false
	}
	return inventory.Key{VariantID: uint(variant), WarehouseID: chi.URLParam(r, "warehouse")}, true
}
