package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"storecore/internal/apperror"
	"storecore/internal/graph/model"
	"storecore/internal/logger"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

//go:embed schema.graphqls
var schemaSDL string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSDL})

type Config struct {
	Resolvers  *Resolver
	Directives DirectiveRoot
}

type DirectiveRoot struct {
	Auth func(ctx context.Context, obj any, next graphql.Resolver, role *model.Role) (res any, err error)
}

// NewExecutableSchema serves schema.graphqls from the resolvers in cfg.
// Root fields resolve one after another and results are shaped by the
// operation's selection sets.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	return &executableSchema{resolvers: cfg.Resolvers, directives: cfg.Directives}
}

type executableSchema struct {
	resolvers  *Resolver
	directives DirectiveRoot
}

func (e *executableSchema) Schema() *ast.Schema { return parsedSchema }

func (e *executableSchema) Complexity(ctx context.Context, typeName, field string, childComplexity int, rawArgs map[string]any) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)

	var (
		typeName string
		fields   map[string]fieldFunc
	)
	switch opCtx.Operation.Operation {
	case ast.Query:
		typeName, fields = "Query", queryFields(e.resolvers.Query())
	case ast.Mutation:
		typeName, fields = "Mutation", mutationFields(e.resolvers.Mutation())
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported operation %s", opCtx.Operation.Operation))
	}

	data := &object{}
	var errs gqlerror.List
	for _, f := range graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{typeName}) {
		if f.Name == "__typename" {
			data.set(f.Alias, typeName)
			continue
		}
		res, err := e.resolveField(ctx, f, fields[f.Name], opCtx.Variables)
		if err == nil {
			res, err = complete(opCtx, res, f)
		}
		if err != nil {
			errs = append(errs, presentError(ctx, f, err))
			data.set(f.Alias, nil)
			continue
		}
		data.set(f.Alias, res)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "encode response: %v", err))
	}
	return graphql.OneShot(&graphql.Response{Data: raw, Errors: errs})
}

func (e *executableSchema) resolveField(ctx context.Context, f graphql.CollectedField, fn fieldFunc, vars map[string]any) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", f.Name, r)
		}
	}()
	if fn == nil {
		return nil, gqlerror.Errorf("field %s is not served", f.Name)
	}

	args := f.ArgumentMap(vars)
	next := func(ctx context.Context) (any, error) { return fn(ctx, args) }

	d := f.Definition.Directives.ForName("auth")
	if d == nil || e.directives.Auth == nil {
		return next(ctx)
	}
	role, err := directiveRole(d, vars)
	if err != nil {
		return nil, err
	}
	return e.directives.Auth(ctx, nil, next, role)
}

func directiveRole(d *ast.Directive, vars map[string]any) (*model.Role, error) {
	arg := d.Arguments.ForName("role")
	if arg == nil {
		return nil, nil
	}
	v, err := arg.Value.Value(vars)
	if err != nil {
		return nil, err
	}
	s, ok := v.(string)
	if !ok {
		return nil, nil
	}
	role := model.Role(s)
	if !role.IsValid() {
		return nil, fmt.Errorf("auth directive has unknown role %q", s)
	}
	return &role, nil
}

// complete turns a resolver result into the shape the selection asks for.
func complete(opCtx *graphql.OperationContext, res any, f graphql.CollectedField) (any, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.Name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name, err)
	}
	return project(opCtx, v, f.Definition.Type, f.Selections), nil
}

func project(opCtx *graphql.OperationContext, v any, typ *ast.Type, sel ast.SelectionSet) any {
	if len(sel) == 0 {
		return v
	}
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = project(opCtx, t[i], typ, sel)
		}
		return out
	case map[string]any:
		name := typ.Name()
		obj := &object{}
		for _, f := range graphql.CollectFields(opCtx, sel, []string{name}) {
			if f.Name == "__typename" {
				obj.set(f.Alias, name)
				continue
			}
			obj.set(f.Alias, project(opCtx, t[f.Name], f.Definition.Type, f.Selections))
		}
		return obj
	}
	return v
}

// object keeps response keys in selection order.
type object struct {
	keys []string
	vals map[string]any
}

func (o *object) set(key string, v any) {
	if o.vals == nil {
		o.vals = map[string]any{}
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// presentError keeps domain codes and hides infrastructure failures.
func presentError(ctx context.Context, f graphql.CollectedField, err error) *gqlerror.Error {
	path := ast.Path{ast.PathName(f.Alias)}

	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		cp := *gqlErr
		cp.Path = path
		return &cp
	}
	if e, ok := apperror.As(err); ok {
		msg := e.Message
		if msg == "" {
			msg = e.Error()
		}
		return &gqlerror.Error{
			Message:    msg,
			Path:       path,
			Extensions: map[string]any{"code": e.Code, "kind": string(e.Kind)},
		}
	}

	logger.FromCtx(ctx).Error("graphql field failed",
		zap.String("layer", "graph"),
		zap.String("field", f.Name),
		zap.Error(err),
	)
	return &gqlerror.Error{
		Message:    "internal error",
		Path:       path,
		Extensions: map[string]any{"code": "INTERNAL"},
	}
}
