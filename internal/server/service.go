package server

import "net/http"

type action struct {
	method  string
	pattern string
	handler Handler
}

// Service is a named group of actions. An action pattern matches against the
// first path token after the service name: an exact string matches itself,
// ":name" matches any token (captured into Context.Params), and "*" matches
// unconditionally. The remaining tokens are handed to the handler.
type Service struct {
	name    string
	actions []action
}

// NewService creates an empty service.
func NewService(name string) *Service {
	return &Service{name: name}
}

// Name returns the service's registration name.
func (s *Service) Name() string {
	return s.name
}

func (s *Service) register(method, pattern string, h Handler) {
	s.actions = append(s.actions, action{method: method, pattern: pattern, handler: h})
}

// Get registers a GET action.
func (s *Service) Get(pattern string, h Handler) { s.register(http.MethodGet, pattern, h) }

// Post registers a POST action.
func (s *Service) Post(pattern string, h Handler) { s.register(http.MethodPost, pattern, h) }

// Put registers a PUT action.
func (s *Service) Put(pattern string, h Handler) { s.register(http.MethodPut, pattern, h) }

// Patch registers a PATCH action.
func (s *Service) Patch(pattern string, h Handler) { s.register(http.MethodPatch, pattern, h) }

// Delete registers a DELETE action.
func (s *Service) Delete(pattern string, h Handler) { s.register(http.MethodDelete, pattern, h) }

// Dispatch runs the first action whose method and pattern match. A request
// that matches no action yields a nil result, which the dispatcher turns
// into an empty 204 response.
func (s *Service) Dispatch(ctx *Context, req *Request) (interface{}, error) {
	var first string
	if len(req.Tokens) > 0 {
		first = req.Tokens[0]
	}

	for _, a := range s.actions {
		if a.method != req.Method || !matchToken(ctx, first, a.pattern) {
			continue
		}
		rest := &Request{Method: req.Method, Query: req.Query, Body: req.Body}
		if len(req.Tokens) > 1 {
			rest.Tokens = req.Tokens[1:]
		}
		return a.handler(ctx, rest)
	}
	return nil, nil
}

func matchToken(ctx *Context, token, pattern string) bool {
	switch {
	case pattern == "*":
		return true
	case len(pattern) > 0 && pattern[0] == ':':
		ctx.Params[pattern[1:]] = token
		return true
	default:
		return token == pattern
	}
}
