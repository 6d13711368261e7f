package graph

import (
	"context"

	"storecore/internal/graph/model"
	"storecore/internal/middleware"
	"storecore/internal/order"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

var (
	errUnauthorized = &gqlerror.Error{Message: "unauthorized", Extensions: map[string]any{"code": "UNAUTHENTICATED"}}
	errForbidden    = &gqlerror.Error{Message: "forbidden", Extensions: map[string]any{"code": "FORBIDDEN"}}
)

// AuthDirective requires a logged in actor. With a role, only that role
// and admins pass; ADMIN means admin only.
func AuthDirective(ctx context.Context, obj any, next graphql.Resolver, role *model.Role) (any, error) {
	actor, ok := middleware.ActorFrom(ctx)
	if !ok {
		return nil, errUnauthorized
	}
	if role == nil {
		return next(ctx)
	}

	required := toDomainRole(*role)
	if actor.Role != required && actor.Role != order.RoleAdmin {
		return nil, errForbidden
	}
	return next(ctx)
}

func toDomainRole(r model.Role) order.Role {
	switch r {
	case model.RoleAdmin:
		return order.RoleAdmin
	case model.RoleSystem:
		return order.RoleSystem
	default:
		return order.RoleCustomer
	}
}
