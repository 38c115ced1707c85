// Package query applies the collection query vocabulary (where, sortBy,
// offset, pageSize, distinct, count, select, load) to raw storage listings.
// The stages run in that fixed order; count short-circuits the rest.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/playbase/playbase/internal/errors"
	"github.com/playbase/playbase/internal/storage"
)

// Params holds the decoded query-string parameters of a request.
type Params map[string]string

// Source resolves records for load joins.
type Source interface {
	Get(collection, id string) (storage.Record, error)
}

// Apply runs the query pipeline over records. The result is either a filtered
// slice of records or, when count is requested, the bare result length.
// Joins against the users collection read from protected and have the
// password hash stripped.
func Apply(records []storage.Record, params Params, public, protected Source) (interface{}, error) {
	var err error

	if where, ok := params["where"]; ok {
		records, err = applyWhere(records, where)
		if err != nil {
			return nil, err
		}
	}

	if sortBy, ok := params["sortBy"]; ok {
		applySort(records, sortBy)
	}

	if offset, ok := params["offset"]; ok {
		n, _ := strconv.Atoi(offset)
		if n < 0 {
			n = 0
		}
		if n > len(records) {
			n = len(records)
		}
		records = records[n:]
	}
	if pageSize, ok := params["pageSize"]; ok {
		n, err := strconv.Atoi(pageSize)
		if err != nil || n <= 0 {
			n = 10
		}
		if n < len(records) {
			records = records[:n]
		}
	}

	if distinct, ok := params["distinct"]; ok {
		records = applyDistinct(records, distinct)
	}

	if _, ok := params["count"]; ok {
		return len(records), nil
	}

	if sel, ok := params["select"]; ok {
		records = applySelect(records, sel)
	}

	if load, ok := params["load"]; ok {
		records, err = applyLoad(records, load, public, protected)
		if err != nil {
			return nil, err
		}
	}

	return records, nil
}

// Where clause support -------------------------------------------------------

// Operators are matched longest-first so "<=" wins over "<". The word
// operators keep their surrounding spaces to avoid matching inside values.
var whereOperators = []string{"<=", ">=", "<", ">", "=", " like ", " in "}

var clausePattern = regexp.MustCompile(`(?i)^(.+?)(<=|>=|<|>|=| like | in )(.+)$`)

var (
	andSplitter = regexp.MustCompile(`(?i) and `)
	orSplitter  = regexp.MustCompile(`(?i) or `)
)

type checker func(storage.Record) bool

func applyWhere(records []storage.Record, clause string) ([]storage.Record, error) {
	predicate, err := parseWhere(clause)
	if err != nil {
		return nil, err
	}

	result := make([]storage.Record, 0, len(records))
	for _, record := range records {
		if predicate(record) {
			result = append(result, record)
		}
	}
	return result, nil
}

// parseWhere compiles a textual clause into a predicate. The whole clause is
// either an all-AND or all-OR chain; mixing the two is not supported.
func parseWhere(clause string) (checker, error) {
	parts := []string{strings.TrimSpace(clause)}
	all := true
	if andSplitter.MatchString(clause) {
		parts = andSplitter.Split(clause, -1)
	} else if orSplitter.MatchString(clause) {
		parts = orSplitter.Split(clause, -1)
		all = false
	}

	checkers := make([]checker, len(parts))
	for i, part := range parts {
		c, err := compileClause(part)
		if err != nil {
			return nil, errors.BadRequest("Could not parse WHERE clause, check your syntax.")
		}
		checkers[i] = c
	}

	return func(record storage.Record) bool {
		for _, c := range checkers {
			if c(record) != all {
				return !all
			}
		}
		return all
	}, nil
}

func compileClause(clause string) (checker, error) {
	match := clausePattern.FindStringSubmatch(clause)
	if match == nil {
		return nil, fmt.Errorf("malformed clause %q", clause)
	}
	prop := strings.TrimSpace(match[1])
	operator := strings.ToLower(strings.TrimSpace(match[2]))
	rawValue := strings.TrimSpace(match[3])

	switch operator {
	case "in":
		return compileIn(prop, rawValue)
	case "like":
		if !gjson.Valid(rawValue) {
			return nil, fmt.Errorf("malformed literal %q", rawValue)
		}
		literal := gjson.Parse(rawValue)
		if literal.Type != gjson.String {
			return nil, fmt.Errorf("like needs a string literal, got %q", rawValue)
		}
		needle := strings.ToLower(literal.String())
		return func(record storage.Record) bool {
			value, ok := record[prop]
			if !ok {
				return false
			}
			return strings.Contains(strings.ToLower(fmt.Sprint(value)), needle)
		}, nil
	default:
		if !gjson.Valid(rawValue) {
			return nil, fmt.Errorf("malformed literal %q", rawValue)
		}
		literal := gjson.Parse(rawValue)
		return func(record storage.Record) bool {
			value, ok := record[prop]
			if !ok {
				return false
			}
			return compareValues(value, literal, operator)
		}, nil
	}
}

var inListPattern = regexp.MustCompile(`\((.+?)\)`)

func compileIn(prop, rawValue string) (checker, error) {
	group := inListPattern.FindStringSubmatch(rawValue)
	if group == nil {
		return nil, fmt.Errorf("in needs a parenthesized list, got %q", rawValue)
	}
	if !gjson.Valid("[" + group[1] + "]") {
		return nil, fmt.Errorf("malformed in list %q", rawValue)
	}
	list := gjson.Parse("[" + group[1] + "]")
	items := list.Array()

	return func(record storage.Record) bool {
		value, ok := record[prop]
		if !ok {
			return false
		}
		for _, item := range items {
			if compareValues(value, item, "=") {
				return true
			}
		}
		return false
	}, nil
}

func compareValues(value interface{}, literal gjson.Result, operator string) bool {
	if literal.Type == gjson.Number {
		if number, ok := numericValue(value); ok {
			return compareFloats(number, literal.Float(), operator)
		}
	}
	return compareStrings(fmt.Sprint(value), literal.String(), operator)
}

// numericValue coerces a record value for comparison against a numeric
// literal. Seeded datasets frequently store numbers as strings, so numeric
// strings parse rather than falling back to lexicographic comparison.
func numericValue(v interface{}) (float64, bool) {
	if number, ok := valueAsFloat(v); ok {
		return number, true
	}
	if s, ok := v.(string); ok {
		if number, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return number, true
		}
	}
	return 0, false
}

func compareFloats(a, b float64, operator string) bool {
	switch operator {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	default:
		return a == b
	}
}

func compareStrings(a, b, operator string) bool {
	switch operator {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	default:
		return a == b
	}
}

// Sorting --------------------------------------------------------------------

// applySort sorts by a comma-separated "field [desc]" list. Lower-priority
// keys are applied first so the first listed field dominates; the sort is
// stable on every pass.
func applySort(records []storage.Record, sortBy string) {
	type sortKey struct {
		prop string
		desc bool
	}

	var keys []sortKey
	for _, part := range strings.Split(sortBy, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		keys = append(keys, sortKey{prop: fields[0], desc: len(fields) > 1 && strings.EqualFold(fields[1], "desc")})
	}

	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		sort.SliceStable(records, func(a, b int) bool {
			less := lessValues(records[a][key.prop], records[b][key.prop])
			if key.desc {
				return lessValues(records[b][key.prop], records[a][key.prop])
			}
			return less
		})
	}
}

func lessValues(a, b interface{}) bool {
	if fa, ok := valueAsFloat(a); ok {
		if fb, ok := valueAsFloat(b); ok {
			return fa < fb
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func valueAsFloat(v interface{}) (float64, bool) {
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

// Projection and joins -------------------------------------------------------

func applyDistinct(records []storage.Record, distinct string) []storage.Record {
	props := splitFields(distinct)
	seen := make(map[string]bool)
	result := make([]storage.Record, 0, len(records))
	for _, record := range records {
		parts := make([]string, len(props))
		for i, prop := range props {
			parts[i] = fmt.Sprint(record[prop])
		}
		key := strings.Join(parts, "::")
		if !seen[key] {
			seen[key] = true
			result = append(result, record)
		}
	}
	return result
}

func applySelect(records []storage.Record, sel string) []storage.Record {
	props := splitFields(sel)
	result := make([]storage.Record, len(records))
	for i, record := range records {
		projected := make(storage.Record, len(props))
		for _, prop := range props {
			if value, ok := record[prop]; ok {
				projected[prop] = value
			}
		}
		result[i] = projected
	}
	return result
}

// Load applies a load directive to a single record. By-ID fetches skip the
// filtering stages of the pipeline but still honor joins.
func Load(record storage.Record, load string, public, protected Source) (storage.Record, error) {
	loaded, err := applyLoad([]storage.Record{record}, load, public, protected)
	if err != nil {
		return nil, err
	}
	return loaded[0], nil
}

// applyLoad resolves "targetProp=sourceField:collection" directives. A failed
// lookup fails the whole query; rows are never partially joined.
func applyLoad(records []storage.Record, load string, public, protected Source) ([]storage.Record, error) {
	for _, directive := range splitFields(load) {
		targetProp, relation, ok := strings.Cut(directive, "=")
		if !ok {
			return nil, errors.BadRequest(fmt.Sprintf("Malformed load directive: %s", directive))
		}
		sourceField, collection, ok := strings.Cut(relation, ":")
		if !ok {
			return nil, errors.BadRequest(fmt.Sprintf("Malformed load directive: %s", directive))
		}

		source := public
		if collection == "users" {
			source = protected
		}

		for _, record := range records {
			seekID, _ := record[sourceField].(string)
			related, err := source.Get(collection, seekID)
			if err != nil {
				return nil, errors.BadRequest(fmt.Sprintf("Failed to load related record from %q", collection))
			}
			delete(related, "hashedPassword")
			record[targetProp] = related
		}
	}
	return records, nil
}

func splitFields(list string) []string {
	var fields []string
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field != "" {
			fields = append(fields, field)
		}
	}
	return fields
}
