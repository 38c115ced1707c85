package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playbase/playbase/internal/errors"
	"github.com/playbase/playbase/internal/logging"
	"github.com/playbase/playbase/internal/query"
)

// ThrottleFlag is the util flag that adds artificial latency to responses.
const ThrottleFlag = "throttle"

// Server routes requests to registered services through the decorator
// pipeline and maps every failure at a single site.
type Server struct {
	log        *logging.Logger
	decorators []Decorator
	services   map[string]*Service
	sleep      func(time.Duration)
}

// New creates a server with the given decorator pipeline. Decorators run in
// the order supplied, for every non-OPTIONS request.
func New(log *logging.Logger, decorators ...Decorator) *Server {
	return &Server{
		log:        log,
		decorators: decorators,
		services:   make(map[string]*Service),
		sleep:      time.Sleep,
	}
}

// Register mounts a service under its name as the first path token.
func (s *Server) Register(svc *Service) {
	s.services[svc.Name()] = svc
}

// Router returns the HTTP handler: Prometheus metrics at /metrics, every
// other path dispatched by service name.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/").HandlerFunc(s.handle)
	return r
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.log.WithFields(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.RequestURI(),
	}).Info("request")

	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "false")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Set("Access-Control-Allow-Headers",
			"X-Requested-With, X-HTTP-Method-Override, Content-Type, Accept, X-Authorization, X-Admin")
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := &Context{Params: make(map[string]string)}
	result, err := s.dispatch(ctx, r)

	status := http.StatusOK
	var body []byte

	switch {
	case err != nil:
		if svcErr := errors.GetServiceError(err); svcErr != nil {
			status = svcErr.HTTPStatus
			body, _ = json.Marshal(svcErr)
		} else {
			s.log.WithError(err).Error("unhandled service error")
			status = http.StatusInternalServerError
			body, _ = json.Marshal(&errors.ServiceError{Code: 500, Message: "Server Error"})
		}
	case result == nil:
		status = http.StatusNoContent
	default:
		body, err = json.Marshal(result)
		if err != nil {
			s.log.WithError(err).Error("response serialization failed")
			status = http.StatusInternalServerError
			body, _ = json.Marshal(&errors.ServiceError{Code: 500, Message: "Server Error"})
		}
	}

	if body != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	if ctx.Util != nil && ctx.Util.Get(ThrottleFlag) {
		s.sleep(time.Duration(500+rand.Intn(500)) * time.Millisecond)
	}
	w.WriteHeader(status)
	w.Write(body)
}

func (s *Server) dispatch(ctx *Context, r *http.Request) (interface{}, error) {
	for _, d := range s.decorators {
		if err := d.Decorate(ctx, r); err != nil {
			return nil, err
		}
	}

	serviceName, req := parseRequest(r)
	svc, ok := s.services[serviceName]
	if !ok {
		s.log.WithFields(map[string]interface{}{"service": serviceName}).Warn("missing service")
		return nil, errors.BadRequest(fmt.Sprintf("Service %q is not supported", serviceName))
	}
	return svc.Dispatch(ctx, req)
}

func parseRequest(r *http.Request) (string, *Request) {
	var tokens []string
	for _, part := range strings.Split(r.URL.Path, "/") {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	var serviceName string
	if len(tokens) > 0 {
		serviceName = tokens[0]
		tokens = tokens[1:]
	}

	params := query.Params{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	return serviceName, &Request{
		Method: r.Method,
		Tokens: tokens,
		Query:  params,
		Body:   parseBody(r.Body),
	}
}

// parseBody decodes the payload as JSON, falling back to the raw text when
// it does not parse. An empty body decodes to nil.
func parseBody(r io.Reader) interface{} {
	raw, err := io.ReadAll(r)
	if err != nil || len(raw) == 0 {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}
