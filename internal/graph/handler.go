package graph

import (
	"net/http"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
)

// NewHandler serves the schema over POST. The caller mounts it behind the
// token middleware; @auth reads the actor that middleware attached.
func NewHandler(r *Resolver) http.Handler {
	srv := handler.New(NewSchema(r))
	srv.AddTransport(transport.POST{})
	return srv
}
