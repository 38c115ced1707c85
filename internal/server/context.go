// Package server hosts the request dispatcher: per-request context assembly
// through an ordered decorator pipeline, service/action resolution, and the
// single error-to-status mapping site.
package server

import (
	"net/http"

	"github.com/playbase/playbase/internal/query"
	"github.com/playbase/playbase/internal/rules"
	"github.com/playbase/playbase/internal/session"
	"github.com/playbase/playbase/internal/storage"
)

// Context carries per-request state assembled by the decorator pipeline.
// A fresh Context is built for every request; it is never shared.
type Context struct {
	Storage   *storage.Engine
	Protected *storage.Engine
	Auth      *session.Manager
	Rules     *rules.Engine
	Util      *Flags
	User      storage.Record
	Admin     bool
	Params    map[string]string
}

// Request is the parsed form of an inbound HTTP request: the tokens that
// follow the service name, the query-string vocabulary, and the decoded body.
type Request struct {
	Method string
	Tokens []string
	Query  query.Params
	Body   interface{}
}

// Handler is a service action. A nil result with a nil error produces a 204
// response with no body.
type Handler func(ctx *Context, req *Request) (interface{}, error)

// Decorator contributes one concern to the request context. Decorators run
// in the order they are registered; storage must run before auth, and auth
// before rules.
type Decorator interface {
	Name() string
	Decorate(ctx *Context, r *http.Request) error
}

// CanAccess asks the rule engine whether the current actor may perform action
// on the given record. existing is the stored record (nil for create),
// incoming the client payload (nil for read/delete). Both may be redacted in
// place by property rules.
func (c *Context) CanAccess(collection string, action rules.Action, existing, incoming storage.Record) error {
	if c.Rules == nil {
		return nil
	}
	env := &rules.Env{User: c.User, Data: existing, NewData: incoming}
	if c.Storage != nil {
		env.Get = c.Storage.Get
	}
	return c.Rules.Check(action, collection, env, c.Admin)
}

// BodyRecord returns the request body as a record, or false when the body is
// absent or not a JSON object.
func (r *Request) BodyRecord() (storage.Record, bool) {
	body, ok := r.Body.(map[string]interface{})
	return body, ok
}
