package graph

import (
	"context"
	"strconv"
	"time"

	"storecore/internal/apperror"
	"storecore/internal/graph/model"
	"storecore/internal/middleware"
	"storecore/internal/order"

	"github.com/google/uuid"
)

// --- MAPPER HELPERS ---

func toGraphQLOrder(o *order.Order) *model.Order {
	if o == nil {
		return nil
	}

	items := make([]*model.OrderItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = &model.OrderItem{
			ProductID:   int(it.ProductID),
			VariantID:   int(it.VariantID),
			WarehouseID: it.WarehouseID,
			Name:        it.Name,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal(),
		}
	}
	next := []string{}
	for _, s := range order.NextStatuses(o.Status) {
		next = append(next, string(s))
	}

	out := &model.Order{
		ID:            o.ID.String(),
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		Currency:      o.Currency,
		TotalPrice:    o.TotalPrice,
		Items:         items,
		NextStatuses:  next,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.Format(time.RFC3339),
		PaidAt:        timePtr(o.PaidAt),
		ShippedAt:     timePtr(o.ShippedAt),
		DeliveredAt:   timePtr(o.DeliveredAt),
		CancelledAt:   timePtr(o.CancelledAt),
	}
	if o.Customer.UserID != nil {
		uid := int(*o.Customer.UserID)
		out.UserID = &uid
	}
	if o.Customer.Email != "" {
		out.GuestEmail = &o.Customer.Email
	}
	return out
}

func toGraphQLOrders(os []order.Order) []*model.Order {
	list := make([]*model.Order, len(os))
	for i := range os {
		list[i] = toGraphQLOrder(&os[i])
	}
	return list
}

func toPlaceOrderRequest(in model.CheckoutInput, actor order.Actor, userID *uint) (order.PlaceOrderRequest, error) {
	req := order.PlaceOrderRequest{
		Items:      make([]order.Item, len(in.Items)),
		Currency:   deref(in.Currency),
		TotalPrice: in.TotalPrice,
		Actor:      actor,
		Customer:   order.Customer{UserID: userID, Address: deref(in.Address)},
	}
	if in.ID != nil {
		id, err := parseID(*in.ID)
		if err != nil {
			return req, err
		}
		req.ID = id
	}
	if in.PaymentMethod != nil {
		req.PaymentMethod = order.PaymentMethod(*in.PaymentMethod)
	}
	for i, it := range in.Items {
		item := order.Item{
			VariantID:   uint(it.VariantID),
			WarehouseID: deref(it.WarehouseID),
			Name:        it.Name,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
		}
		if it.ProductID != nil {
			item.ProductID = uint(*it.ProductID)
		}
		if it.UnitCost != nil {
			item.UnitCost = *it.UnitCost
		}
		req.Items[i] = item
	}
	if userID == nil && in.Guest != nil {
		req.Customer.Email = in.Guest.Email
		req.Customer.Name = in.Guest.Name
		if a := deref(in.Guest.Address); a != "" {
			req.Customer.Address = a
		}
	}
	return req, nil
}

// --- QUERIES ---

// Order answers not found for another customer's order.
func (r *queryResolver) Order(ctx context.Context, id string) (*model.Order, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	o, err := r.OrderSvc.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	actor, _ := middleware.ActorFrom(ctx)
	if actor.Role == order.RoleCustomer && !ownedBy(o, actor) {
		return nil, apperror.NotFound(order.ErrOrderNotFound.Code, "order %s not found", oid)
	}
	return toGraphQLOrder(o), nil
}

func (r *queryResolver) Orders(ctx context.Context, status *string, userID, page, limit *int) ([]*model.Order, error) {
	var f order.ListFilter
	if status != nil {
		st := order.Status(*status)
		f.Status = &st
	}
	if userID != nil {
		if *userID <= 0 {
			return nil, apperror.Validation("invalid_argument", "userId must be positive")
		}
		uid := uint(*userID)
		f.UserID = &uid
	}
	if page != nil {
		f.Page = *page
	}
	if limit != nil {
		f.Limit = *limit
	}

	orders, err := r.OrderSvc.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return toGraphQLOrders(orders), nil
}

// --- MUTATIONS ---

// Checkout places an order. Anonymous callers check out as guests and must
// send guest details.
func (r *mutationResolver) Checkout(ctx context.Context, input model.CheckoutInput) (*model.Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, apperror.Validation("invalid_argument", "%s", validationMessage(err))
	}

	actor, authed := middleware.ActorFrom(ctx)
	var userID *uint
	switch {
	case !authed:
		if input.Guest == nil {
			return nil, apperror.Validation("invalid_argument", "guest details are required without a login")
		}
		actor = order.Actor{Role: order.RoleCustomer}
	case actor.Role == order.RoleCustomer:
		id, err := strconv.ParseUint(actor.ID, 10, 32)
		if err != nil {
			return nil, apperror.Validation("invalid_argument", "token has no numeric user id")
		}
		uid := uint(id)
		userID = &uid
	}

	req, err := toPlaceOrderRequest(input, actor, userID)
	if err != nil {
		return nil, err
	}
	o, err := r.OrderSvc.PlaceOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	return toGraphQLOrder(o), nil
}

func (r *mutationResolver) TransitionOrder(ctx context.Context, id string, status string, reason *string) (*model.Order, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	actor, _ := middleware.ActorFrom(ctx)
	if actor.Role == order.RoleCustomer {
		o, err := r.OrderSvc.Get(ctx, oid)
		if err != nil {
			return nil, err
		}
		if !ownedBy(o, actor) {
			return nil, apperror.NotFound(order.ErrOrderNotFound.Code, "order %s not found", oid)
		}
	}

	o, err := r.OrderSvc.Transition(ctx, order.TransitionRequest{
		OrderID: oid,
		Target:  order.Status(status),
		Actor:   actor,
		Reason:  deref(reason),
	})
	if err != nil {
		return nil, err
	}
	return toGraphQLOrder(o), nil
}

func ownedBy(o *order.Order, a order.Actor) bool {
	return o.Customer.UserID != nil && strconv.FormatUint(uint64(*o.Customer.UserID), 10) == a.ID
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid_argument", "invalid id %q", s)
	}
	return id, nil
}
