package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/playbase/playbase/internal/storage"
)

// Expression rules are a closed grammar, not a scripting language:
//
//	expr    := or
//	or      := and ("||" and)*
//	and     := unary ("&&" unary)*
//	unary   := "!" unary | cmp
//	cmp     := term (("==" | "!=") term)?
//	term    := "true" | "false" | number | string
//	        | ("user" | "data" | "newData") ("." ident)*
//	        | "get" "(" expr "," expr ")"
//	        | "isOwner" "(" expr "," expr ")"
//	        | "(" expr ")"
//
// Anything outside the grammar fails to compile and the rule evaluates false.

// Env is the evaluation scope for one access check.
type Env struct {
	User    storage.Record
	Data    storage.Record
	NewData storage.Record
	Get     func(collection, id string) (storage.Record, error)
}

// Expr is a compiled rule expression.
type Expr interface {
	eval(env *Env) interface{}
}

// Evaluate runs the expression and reduces the result to a boolean the way a
// dynamically typed rule author would expect: nil, false, zero and the empty
// string are false, everything else is true.
func Evaluate(e Expr, env *Env) bool {
	return truthy(e.eval(env))
}

func truthy(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case float64:
		return value != 0
	case string:
		return value != ""
	default:
		return true
	}
}

type literalExpr struct{ value interface{} }

func (e literalExpr) eval(*Env) interface{} { return e.value }

type fieldExpr struct {
	root string
	path []string
}

func (e fieldExpr) eval(env *Env) interface{} {
	var current interface{}
	switch e.root {
	case "user":
		if env.User != nil {
			current = env.User
		}
	case "data":
		if env.Data != nil {
			current = env.Data
		}
	case "newData":
		if env.NewData != nil {
			current = env.NewData
		}
	}
	for _, field := range e.path {
		record, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = record[field]
	}
	return current
}

type callExpr struct {
	name string
	args []Expr
}

func (e callExpr) eval(env *Env) interface{} {
	switch e.name {
	case "get":
		collection, _ := e.args[0].eval(env).(string)
		id, _ := e.args[1].eval(env).(string)
		if env.Get == nil {
			return nil
		}
		record, err := env.Get(collection, id)
		if err != nil {
			return nil
		}
		return map[string]interface{}(record)
	case "isOwner":
		actor, _ := e.args[0].eval(env).(map[string]interface{})
		record, _ := e.args[1].eval(env).(map[string]interface{})
		if actor == nil || record == nil {
			return false
		}
		return looseEqual(actor["_id"], record["_ownerId"])
	}
	return nil
}

type binaryExpr struct {
	op          string
	left, right Expr
}

func (e binaryExpr) eval(env *Env) interface{} {
	switch e.op {
	case "||":
		if truthy(e.left.eval(env)) {
			return true
		}
		return truthy(e.right.eval(env))
	case "&&":
		if !truthy(e.left.eval(env)) {
			return false
		}
		return truthy(e.right.eval(env))
	case "==":
		return looseEqual(e.left.eval(env), e.right.eval(env))
	case "!=":
		return !looseEqual(e.left.eval(env), e.right.eval(env))
	}
	return nil
}

type notExpr struct{ inner Expr }

func (e notExpr) eval(env *Env) interface{} { return !truthy(e.inner.eval(env)) }

func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Compile parses source into an expression tree.
func Compile(source string) (Expr, error) {
	p := &parser{input: source}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("unexpected input at offset %d in %q", p.pos, source)
	}
	return expr, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *parser) accept(token string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.input[p.pos:], token) {
		p.pos += len(token)
		return true
	}
	return false
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept("&&") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.accept("!") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for _, op := range []string{"==", "!="} {
		if p.accept(op) {
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			return binaryExpr{op: op, left: left, right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of expression %q", p.input)
	}

	switch c := p.input[p.pos]; {
	case c == '(':
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(")") {
			return nil, fmt.Errorf("missing closing parenthesis in %q", p.input)
		}
		return inner, nil
	case c == '\'' || c == '"':
		return p.parseString(c)
	case c >= '0' && c <= '9':
		return p.parseNumber()
	default:
		return p.parseIdent()
	}
}

func (p *parser) parseString(quote byte) (Expr, error) {
	end := strings.IndexByte(p.input[p.pos+1:], quote)
	if end < 0 {
		return nil, fmt.Errorf("unterminated string in %q", p.input)
	}
	value := p.input[p.pos+1 : p.pos+1+end]
	p.pos += end + 2
	return literalExpr{value: value}, nil
}

func (p *parser) parseNumber() (Expr, error) {
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] == '.' || (p.input[p.pos] >= '0' && p.input[p.pos] <= '9')) {
		p.pos++
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed number in %q", p.input)
	}
	return literalExpr{value: value}, nil
}

func (p *parser) parseIdent() (Expr, error) {
	start := p.pos
	for p.pos < len(p.input) && (isIdentChar(p.input[p.pos])) {
		p.pos++
	}
	ident := p.input[start:p.pos]

	switch ident {
	case "true":
		return literalExpr{value: true}, nil
	case "false":
		return literalExpr{value: false}, nil
	case "user", "data", "newData":
		return fieldExpr{root: ident, path: p.parsePath()}, nil
	case "get", "isOwner":
		return p.parseCall(ident)
	case "":
		if p.pos < len(p.input) {
			return nil, fmt.Errorf("unexpected character %q in %q", p.input[p.pos], p.input)
		}
		return nil, fmt.Errorf("unexpected end of expression %q", p.input)
	default:
		return nil, fmt.Errorf("unknown identifier %q in %q", ident, p.input)
	}
}

func (p *parser) parsePath() []string {
	var path []string
	for p.pos < len(p.input) && p.input[p.pos] == '.' {
		p.pos++
		start := p.pos
		for p.pos < len(p.input) && isIdentChar(p.input[p.pos]) {
			p.pos++
		}
		path = append(path, p.input[start:p.pos])
	}
	return path
}

func (p *parser) parseCall(name string) (Expr, error) {
	if !p.accept("(") {
		return nil, fmt.Errorf("%s needs arguments in %q", name, p.input)
	}
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.accept(",") {
		return nil, fmt.Errorf("%s needs two arguments in %q", name, p.input)
	}
	second, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.accept(")") {
		return nil, fmt.Errorf("missing closing parenthesis in %q", p.input)
	}
	return callExpr{name: name, args: []Expr{first, second}}, nil
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
