package server

import (
	"net/http"
	"sync"

	"github.com/playbase/playbase/internal/rules"
	"github.com/playbase/playbase/internal/session"
	"github.com/playbase/playbase/internal/storage"
)

// Header names recognized by the pipeline.
const (
	AuthorizationHeader = "X-Authorization"
	AdminHeader         = "X-Admin"
)

// Flags is the runtime-mutable flag set exposed by the util service. The
// zero value is not usable; construct with NewFlags.
type Flags struct {
	mu     sync.RWMutex
	values map[string]bool
}

// NewFlags creates an empty flag set.
func NewFlags() *Flags {
	return &Flags{values: make(map[string]bool)}
}

// Get reports whether the named flag is on. Unknown flags are off.
func (f *Flags) Get(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[name]
}

// Set turns the named flag on or off.
func (f *Flags) Set(name string, value bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

type storageDecorator struct {
	public    *storage.Engine
	protected *storage.Engine
}

// StorageDecorator binds the public and protected storage engines to the
// request context.
func StorageDecorator(public, protected *storage.Engine) Decorator {
	return &storageDecorator{public: public, protected: protected}
}

func (d *storageDecorator) Name() string { return "storage" }

func (d *storageDecorator) Decorate(ctx *Context, _ *http.Request) error {
	ctx.Storage = d.public
	ctx.Protected = d.protected
	return nil
}

type authDecorator struct {
	sessions *session.Manager
}

// AuthDecorator resolves the bearer token into an actor. A header that is
// present but matches no session fails the request; it does not degrade to
// anonymous. The admin override header is honored by presence alone.
func AuthDecorator(sessions *session.Manager) Decorator {
	return &authDecorator{sessions: sessions}
}

func (d *authDecorator) Name() string { return "auth" }

func (d *authDecorator) Decorate(ctx *Context, r *http.Request) error {
	ctx.Auth = d.sessions
	if _, ok := r.Header[http.CanonicalHeaderKey(AdminHeader)]; ok {
		ctx.Admin = true
	}

	token := r.Header.Get(AuthorizationHeader)
	if token == "" {
		return nil
	}
	user, err := d.sessions.ResolveToken(token)
	if err != nil {
		return err
	}
	ctx.User = user
	return nil
}

type utilDecorator struct {
	flags *Flags
}

// UtilDecorator attaches the shared runtime flag set.
func UtilDecorator(flags *Flags) Decorator {
	return &utilDecorator{flags: flags}
}

func (d *utilDecorator) Name() string { return "util" }

func (d *utilDecorator) Decorate(ctx *Context, _ *http.Request) error {
	ctx.Util = d.flags
	return nil
}

type rulesDecorator struct {
	engine *rules.Engine
}

// RulesDecorator attaches the rule engine. Must run after storage so that
// expression rules can cross-reference records.
func RulesDecorator(engine *rules.Engine) Decorator {
	return &rulesDecorator{engine: engine}
}

func (d *rulesDecorator) Name() string { return "rules" }

func (d *rulesDecorator) Decorate(ctx *Context, _ *http.Request) error {
	ctx.Rules = d.engine
	return nil
}
