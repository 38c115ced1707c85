package rules

import "strings"

// FromConfig compiles a raw rule-tree structure (as decoded from YAML or
// JSON) into a Tree. Per collection, keys starting with "." are action rules,
// "*" holds property rules, and any other key is a per-record override.
//
// Rule values may be booleans, role lists, or expression strings.
func FromConfig(raw map[string]interface{}) *Tree {
	entries := make(map[string]*Entry, len(raw))
	for collection, node := range raw {
		if m, ok := node.(map[string]interface{}); ok {
			entries[collection] = compileEntry(m, true)
		}
	}
	return NewTree(entries)
}

func compileEntry(raw map[string]interface{}, topLevel bool) *Entry {
	entry := &Entry{Actions: make(map[Action]*Value)}

	for key, node := range raw {
		switch {
		case strings.HasPrefix(key, "."):
			entry.Actions[Action(key)] = compileValue(node)
		case key == "*":
			if props, ok := node.(map[string]interface{}); ok {
				entry.Props = compileProps(props)
			}
		case topLevel:
			// Record-ID override inside a collection entry. Record entries
			// may carry their own property rules as non-dotted keys.
			if m, ok := node.(map[string]interface{}); ok {
				if entry.Records == nil {
					entry.Records = make(map[string]*Entry)
				}
				record := compileEntry(m, false)
				if props := compileRecordProps(m); props != nil {
					record.Props = props
				}
				entry.Records[key] = record
			}
		}
	}

	return entry
}

func compileProps(raw map[string]interface{}) PropRules {
	props := make(PropRules, len(raw))
	for prop, node := range raw {
		if actions, ok := node.(map[string]interface{}); ok {
			props[prop] = compileActionValues(actions)
		}
	}
	return props
}

// compileRecordProps extracts property rules declared directly on a record
// entry: every non-dotted key whose value maps actions to rules.
func compileRecordProps(raw map[string]interface{}) PropRules {
	props := PropRules{}
	for key, node := range raw {
		if strings.HasPrefix(key, ".") || key == "*" {
			continue
		}
		if actions, ok := node.(map[string]interface{}); ok {
			compiled := compileActionValues(actions)
			if len(compiled) > 0 {
				props[key] = compiled
			}
		}
	}
	if len(props) == 0 {
		return nil
	}
	return props
}

func compileActionValues(raw map[string]interface{}) map[Action]*Value {
	values := make(map[Action]*Value, len(raw))
	for action, node := range raw {
		if strings.HasPrefix(action, ".") {
			values[Action(action)] = compileValue(node)
		}
	}
	return values
}

func compileValue(node interface{}) *Value {
	switch value := node.(type) {
	case bool:
		return BoolRule(value)
	case string:
		return ExprRule(value)
	case []interface{}:
		roles := make([]string, 0, len(value))
		for _, role := range value {
			if name, ok := role.(string); ok {
				roles = append(roles, name)
			}
		}
		return RoleRule(roles...)
	default:
		return &Value{}
	}
}
