package httpapi

import (
	"net/http"
	"strconv"

	"storecore/internal/middleware"
	"storecore/internal/order"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ordersHandler struct {
	svc OrderService
}

// checkout places an order. Anonymous callers check out as guests and must
// send guest details.
func (h *ordersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decode(w, r, &req) {
		return
	}

	actor, authed := middleware.ActorFrom(r.Context())
	var userID *uint
	switch {
	case !authed:
		if req.Guest == nil {
			badRequest(w, "guest details are required without a login")
			return
		}
		actor = order.Actor{Role: order.RoleCustomer}
	case actor.Role == order.RoleCustomer:
		id, err := strconv.ParseUint(actor.ID, 10, 32)
		if err != nil {
			badRequest(w, "token has no numeric user id")
			return
		}
		uid := uint(id)
		userID = &uid
	}

	o, err := h.svc.PlaceOrder(r.Context(), req.toDomain(actor, userID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderView(o))
}

func (h *ordersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	actor, authed := middleware.ActorFrom(r.Context())
	if !authed || (actor.Role == order.RoleCustomer && !ownedBy(o, actor)) {
		// other customers' orders read as missing
		writeError(w, r, order.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (h *ordersHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f order.ListFilter
	if s := q.Get("status"); s != "" {
		st := order.Status(s)
		if !st.Valid() {
			badRequest(w, "unknown status "+s)
			return
		}
		f.Status = &st
	}
	if s := q.Get("user_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			badRequest(w, "user_id must be a number")
			return
		}
		uid := uint(id)
		f.UserID = &uid
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Page, _ = strconv.Atoi(q.Get("page"))

	orders, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]orderView, len(orders))
	for i := range orders {
		out[i] = newOrderView(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ordersHandler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	target := order.Status(req.Status)
	if !target.Valid() {
		badRequest(w, "unknown status "+req.Status)
		return
	}

	actor, _ := middleware.ActorFrom(r.Context())
	if actor.Role == order.RoleCustomer {
		o, err := h.svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ownedBy(o, actor) {
			writeError(w, r, order.ErrOrderNotFound)
			return
		}
	}

	o, err := h.svc.Transition(r.Context(), order.TransitionRequest{
		OrderID: id,
		Target:  target,
		Actor:   actor,
		Reason:  req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func ownedBy(o *order.Order, a order.Actor) bool {
	return o.Customer.UserID != nil && strconv.FormatUint(uint64(*o.Customer.UserID), 10) == a.ID
}

func parseUUID(w http.ResponseWriter, s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
