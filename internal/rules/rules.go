// Package rules evaluates the declarative access-control tree: who may
// perform an action on a collection, a record, or a single property. The tree
// is compiled once at startup and is read-only afterwards.
package rules

import (
	"net/http"

	"github.com/playbase/playbase/internal/errors"
	"github.com/playbase/playbase/internal/storage"
)

// Action is a rule-engine action derived from the HTTP method.
type Action string

const (
	ActionRead   Action = ".read"
	ActionCreate Action = ".create"
	ActionUpdate Action = ".update"
	ActionDelete Action = ".delete"
)

var methodActions = map[string]Action{
	http.MethodGet:    ActionRead,
	http.MethodPost:   ActionCreate,
	http.MethodPut:    ActionUpdate,
	http.MethodPatch:  ActionUpdate,
	http.MethodDelete: ActionDelete,
}

// ActionForMethod maps an HTTP method to its rule action.
func ActionForMethod(method string) Action {
	return methodActions[method]
}

// Value is a single compiled rule: a fixed boolean, a role list, or an
// expression. Exactly one form is set.
type Value struct {
	fixed *bool
	roles []string
	expr  Expr
}

// RoleRule builds a role-list rule value.
func RoleRule(roles ...string) *Value {
	return &Value{roles: roles}
}

// BoolRule builds a fixed boolean rule value.
func BoolRule(allow bool) *Value {
	return &Value{fixed: &allow}
}

// ExprRule compiles source into an expression rule. Sources outside the
// closed grammar compile to a rule that always evaluates false.
func ExprRule(source string) *Value {
	expr, err := Compile(source)
	if err != nil {
		deny := false
		return &Value{fixed: &deny}
	}
	return &Value{expr: expr}
}

// empty reports whether this value should defer to the less specific rule.
func (v *Value) empty() bool {
	return v == nil || (v.fixed == nil && v.expr == nil && len(v.roles) == 0)
}

// PropRules maps property name to its per-action rules.
type PropRules map[string]map[Action]*Value

// Entry is one node of the tree: per-action rules plus optional property
// rules. Collection entries may also carry per-record entries keyed by _id.
type Entry struct {
	Actions map[Action]*Value
	Props   PropRules
	Records map[string]*Entry
}

// Tree is the compiled rule configuration.
type Tree struct {
	defaults    map[Action]*Value
	collections map[string]*Entry
}

// NewTree builds a tree from per-collection entries. The built-in defaults
// (create requires User, update and delete require Owner, read is open) apply
// beneath any supplied top-level "*" entry.
func NewTree(entries map[string]*Entry) *Tree {
	defaults := map[Action]*Value{
		ActionCreate: RoleRule("User"),
		ActionUpdate: RoleRule("Owner"),
		ActionDelete: RoleRule("Owner"),
	}

	collections := make(map[string]*Entry, len(entries))
	for name, entry := range entries {
		if name == "*" {
			for action, value := range entry.Actions {
				if !value.empty() {
					defaults[action] = value
				}
			}
			continue
		}
		collections[name] = entry
	}

	return &Tree{defaults: defaults, collections: collections}
}

// resolved is the outcome of walking default -> collection -> record rules.
type resolved struct {
	rule  *Value
	props PropRules
}

func (t *Tree) resolve(action Action, collection string, data storage.Record) resolved {
	out := resolved{rule: t.defaults[action]}

	entry, ok := t.collections[collection]
	if !ok {
		return out
	}

	if value := entry.Actions[action]; !value.empty() {
		out.rule = value
	}
	if len(entry.Props) > 0 {
		out.props = entry.Props
	}

	if data != nil {
		if id, ok := data[storage.FieldID].(string); ok {
			if recordEntry, ok := entry.Records[id]; ok {
				if value := recordEntry.Actions[action]; !value.empty() {
					out.rule = value
				}
				if len(recordEntry.Props) > 0 {
					out.props = recordEntry.Props
				}
			}
		}
	}

	return out
}

// Engine checks access for one request.
type Engine struct {
	tree *Tree
}

// NewEngine wraps a compiled tree.
func NewEngine(tree *Tree) *Engine {
	return &Engine{tree: tree}
}

// Check validates that the actor may perform action on the collection and
// redacts forbidden properties. data is the existing record (nil on create),
// newData the incoming payload (nil on read/delete). Denial returns
// Authorization for anonymous actors and Forbidden otherwise; an admin
// override suppresses both. Property redaction applies regardless of the
// pass/fail outcome and mutates data/newData in place.
func (e *Engine) Check(action Action, collection string, env *Env, isAdmin bool) error {
	r := e.tree.resolve(action, collection, env.Data)

	allowed, err := e.passes(r.rule, env, isAdmin)
	if err != nil && !isAdmin {
		return err
	}
	if err == nil && !allowed && !isAdmin {
		return errors.Forbidden("")
	}

	for prop, actionRules := range r.props {
		value, ok := actionRules[action]
		if !ok {
			continue
		}
		if propAllowed, err := e.passes(value, env, isAdmin); err != nil || !propAllowed {
			redact(action, prop, env)
		}
	}
	return nil
}

func (e *Engine) passes(rule *Value, env *Env, isAdmin bool) (bool, error) {
	switch {
	case rule.empty():
		return true, nil
	case rule.fixed != nil:
		return *rule.fixed, nil
	case rule.expr != nil:
		return Evaluate(rule.expr, env), nil
	default:
		return e.checkRoles(rule.roles, env, isAdmin)
	}
}

func (e *Engine) checkRoles(roles []string, env *Env, isAdmin bool) (bool, error) {
	if contains(roles, "Guest") {
		return true, nil
	}
	if env.User == nil && !isAdmin {
		return false, errors.Unauthorized("")
	}
	if contains(roles, "User") {
		return true, nil
	}
	if env.User != nil && contains(roles, "Owner") && env.Data != nil {
		return looseEqual(env.User[storage.FieldID], env.Data[storage.FieldOwnerID]), nil
	}
	return false, nil
}

func redact(action Action, prop string, env *Env) {
	switch action {
	case ActionCreate, ActionUpdate:
		if env.NewData != nil {
			delete(env.NewData, prop)
		}
	case ActionRead:
		if env.Data != nil {
			delete(env.Data, prop)
		}
	}
}

func contains(list []string, item string) bool {
	for _, entry := range list {
		if entry == item {
			return true
		}
	}
	return false
}
