package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbase/playbase/internal/errors"
	"github.com/playbase/playbase/internal/storage"
)

func ownerEnv() *Env {
	return &Env{
		User: storage.Record{"_id": "u1"},
		Data: storage.Record{"_id": "r1", "_ownerId": "u1", "title": "mine"},
	}
}

func strangerEnv() *Env {
	return &Env{
		User: storage.Record{"_id": "u2"},
		Data: storage.Record{"_id": "r1", "_ownerId": "u1", "title": "theirs"},
	}
}

func TestActionForMethod(t *testing.T) {
	assert.Equal(t, ActionRead, ActionForMethod("GET"))
	assert.Equal(t, ActionCreate, ActionForMethod("POST"))
	assert.Equal(t, ActionUpdate, ActionForMethod("PUT"))
	assert.Equal(t, ActionUpdate, ActionForMethod("PATCH"))
	assert.Equal(t, ActionDelete, ActionForMethod("DELETE"))
}

func TestDefaultRulesRequireOwnerForUpdate(t *testing.T) {
	engine := NewEngine(NewTree(nil))

	require.NoError(t, engine.Check(ActionUpdate, "items", ownerEnv(), false))

	err := engine.Check(ActionUpdate, "items", strangerEnv(), false)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, 403, svcErr.HTTPStatus)
}

func TestDefaultCreateRequiresActor(t *testing.T) {
	engine := NewEngine(NewTree(nil))

	env := &Env{NewData: storage.Record{"title": "new"}}
	err := engine.Check(ActionCreate, "items", env, false)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, 401, svcErr.HTTPStatus)
}

func TestDefaultReadIsOpen(t *testing.T) {
	engine := NewEngine(NewTree(nil))
	assert.NoError(t, engine.Check(ActionRead, "items", &Env{}, false))
}

func TestAdminOverrideBypassesDenial(t *testing.T) {
	engine := NewEngine(NewTree(nil))

	assert.NoError(t, engine.Check(ActionUpdate, "items", strangerEnv(), true))
	assert.NoError(t, engine.Check(ActionCreate, "items", &Env{}, true))
}

func TestCollectionRuleOverridesDefault(t *testing.T) {
	tree := FromConfig(map[string]interface{}{
		"items": map[string]interface{}{
			".update": []interface{}{"User"},
		},
	})
	engine := NewEngine(tree)

	assert.NoError(t, engine.Check(ActionUpdate, "items", strangerEnv(), false))
}

func TestRecordRuleOverridesCollection(t *testing.T) {
	tree := FromConfig(map[string]interface{}{
		"items": map[string]interface{}{
			".read": []interface{}{"Guest"},
			"r1": map[string]interface{}{
				".read": []interface{}{"Owner"},
			},
		},
	})
	engine := NewEngine(tree)

	assert.NoError(t, engine.Check(ActionRead, "items", ownerEnv(), false))

	err := engine.Check(ActionRead, "items", strangerEnv(), false)
	require.Error(t, err)
}

func TestBooleanRuleDenies(t *testing.T) {
	tree := FromConfig(map[string]interface{}{
		"users": map[string]interface{}{
			".create": false,
		},
	})
	engine := NewEngine(tree)

	env := &Env{User: storage.Record{"_id": "u1"}, NewData: storage.Record{}}
	err := engine.Check(ActionCreate, "users", env, false)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, 403, svcErr.HTTPStatus)
}

func TestExpressionRuleWithCrossReference(t *testing.T) {
	teams := map[string]storage.Record{
		"t1": {"_id": "t1", "_ownerId": "u1"},
	}
	env := &Env{
		User: storage.Record{"_id": "u1"},
		Data: storage.Record{"_id": "m1", "_ownerId": "u9", "teamId": "t1"},
		Get: func(collection, id string) (storage.Record, error) {
			if record, ok := teams[id]; ok && collection == "teams" {
				return record, nil
			}
			return nil, errors.NotFound("")
		},
	}

	tree := FromConfig(map[string]interface{}{
		"members": map[string]interface{}{
			".update": "isOwner(user, get('teams', data.teamId))",
			".delete": "isOwner(user, get('teams', data.teamId)) || isOwner(user, data)",
		},
	})
	engine := NewEngine(tree)

	assert.NoError(t, engine.Check(ActionUpdate, "members", env, false))

	// A different actor is neither team owner nor record owner.
	env.User = storage.Record{"_id": "u2"}
	require.Error(t, engine.Check(ActionDelete, "members", env, false))

	// The record owner may delete through the second disjunct.
	env.User = storage.Record{"_id": "u9"}
	assert.NoError(t, engine.Check(ActionDelete, "members", env, false))
}

func TestExpressionOutsideGrammarDenies(t *testing.T) {
	tree := FromConfig(map[string]interface{}{
		"items": map[string]interface{}{
			".update": "newData.teamId = data.teamId",
		},
	})
	engine := NewEngine(tree)

	require.Error(t, engine.Check(ActionUpdate, "items", ownerEnv(), false))
}

func TestPropertyRedactionOnRead(t *testing.T) {
	tree := FromConfig(map[string]interface{}{
		"items": map[string]interface{}{
			"*": map[string]interface{}{
				"secret": map[string]interface{}{
					".read": "isOwner(user, data)",
				},
			},
		},
	})
	engine := NewEngine(tree)

	env := strangerEnv()
	env.Data["secret"] = "hidden"
	require.NoError(t, engine.Check(ActionRead, "items", env, false))
	assert.NotContains(t, env.Data, "secret")

	env = ownerEnv()
	env.Data["secret"] = "hidden"
	require.NoError(t, engine.Check(ActionRead, "items", env, false))
	assert.Equal(t, "hidden", env.Data["secret"])
}

func TestPropertyRedactionOnWrite(t *testing.T) {
	tree := FromConfig(map[string]interface{}{
		"items": map[string]interface{}{
			"*": map[string]interface{}{
				"status": map[string]interface{}{
					".create": false,
				},
			},
		},
	})
	engine := NewEngine(tree)

	env := &Env{
		User:    storage.Record{"_id": "u1"},
		NewData: storage.Record{"title": "x", "status": "approved"},
	}
	require.NoError(t, engine.Check(ActionCreate, "items", env, false))
	assert.NotContains(t, env.NewData, "status")
	assert.Contains(t, env.NewData, "title")
}

func TestCompileRejectsGeneralCode(t *testing.T) {
	for _, source := range []string{
		"process.exit(1)",
		"user._id; data._id",
		"get('a','b','c')",
		"newData.x = 1",
		"while(true)",
	} {
		_, err := Compile(source)
		assert.Error(t, err, "expected %q to be rejected", source)
	}
}

func TestExpressionEquality(t *testing.T) {
	expr, err := Compile("user._id == data._ownerId && data.status != 'locked'")
	require.NoError(t, err)

	env := &Env{
		User: storage.Record{"_id": "u1"},
		Data: storage.Record{"_ownerId": "u1", "status": "open"},
	}
	assert.True(t, Evaluate(expr, env))

	env.Data["status"] = "locked"
	assert.False(t, Evaluate(expr, env))
}
