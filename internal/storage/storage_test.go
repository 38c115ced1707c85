package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbase/playbase/internal/errors"
)

func seedEngine() *Engine {
	return NewEngine(map[string]map[string]Record{
		"items": {
			"a1": {"title": "Abbey Road", "price": 25.0, FieldOwnerID: "owner-1", FieldCreatedOn: int64(1000)},
			"b2": {"title": "Revolver", "price": 18.0, FieldOwnerID: "owner-2", FieldCreatedOn: int64(2000)},
		},
	})
}

func TestListAttachesIDs(t *testing.T) {
	e := seedEngine()

	records, err := e.List("items")
	require.NoError(t, err)
	require.Len(t, records, 2)

	ids := map[string]bool{}
	for _, r := range records {
		ids[r[FieldID].(string)] = true
	}
	assert.True(t, ids["a1"])
	assert.True(t, ids["b2"])
}

func TestListUnknownCollection(t *testing.T) {
	e := seedEngine()

	_, err := e.List("missing")
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, 404, svcErr.HTTPStatus)
}

func TestAddStampsSystemProperties(t *testing.T) {
	e := seedEngine()

	created, err := e.Add("items", "owner-3", Record{
		"title": "Rubber Soul",
		// Client-supplied system properties must be ignored.
		FieldID:        "forged",
		FieldOwnerID:   "someone-else",
		FieldCreatedOn: int64(1),
	})
	require.NoError(t, err)

	assert.NotEqual(t, "forged", created[FieldID])
	assert.Equal(t, "owner-3", created[FieldOwnerID])
	assert.NotEqual(t, int64(1), created[FieldCreatedOn])

	fetched, err := e.Get("items", created[FieldID].(string))
	require.NoError(t, err)
	assert.Equal(t, "Rubber Soul", fetched["title"])
}

func TestAddCreatesCollectionLazily(t *testing.T) {
	e := NewEngine(nil)

	_, err := e.Add("fresh", "owner-1", Record{"x": 1.0})
	require.NoError(t, err)

	records, err := e.List("fresh")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSetPreservesSystemProperties(t *testing.T) {
	e := seedEngine()

	updated, err := e.Set("items", "a1", Record{
		"title":        "Abbey Road (Remastered)",
		FieldOwnerID:   "hijacker",
		FieldCreatedOn: int64(99),
	})
	require.NoError(t, err)

	assert.Equal(t, "owner-1", updated[FieldOwnerID])
	assert.Equal(t, int64(1000), updated[FieldCreatedOn])
	assert.NotNil(t, updated[FieldUpdatedOn])
	assert.Equal(t, "Abbey Road (Remastered)", updated["title"])
	// Full replace: price is gone.
	_, hasPrice := updated["price"]
	assert.False(t, hasPrice)
}

func TestMergeKeepsUntouchedProperties(t *testing.T) {
	e := seedEngine()

	updated, err := e.Merge("items", "a1", Record{
		"price":      30.0,
		FieldOwnerID: "hijacker",
	})
	require.NoError(t, err)

	assert.Equal(t, "Abbey Road", updated["title"])
	assert.Equal(t, 30.0, updated["price"])
	assert.Equal(t, "owner-1", updated[FieldOwnerID])
	assert.NotNil(t, updated[FieldUpdatedOn])
}

func TestDeleteReturnsTimestampMarker(t *testing.T) {
	e := seedEngine()

	marker, err := e.Delete("items", "a1")
	require.NoError(t, err)
	assert.Contains(t, marker, FieldDeletedOn)

	_, err = e.Get("items", "a1")
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, 404, svcErr.HTTPStatus)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	e := seedEngine()

	first, err := e.Get("items", "a1")
	require.NoError(t, err)
	first["title"] = "mutated"

	second, err := e.Get("items", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Abbey Road", second["title"])
}

func TestQueryStringMatchIsCaseInsensitive(t *testing.T) {
	e := seedEngine()

	matches, err := e.Query("items", Record{"title": "abbey road"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a1", matches[0][FieldID])
}

func TestQueryNumericMatchIsLoose(t *testing.T) {
	e := seedEngine()

	matches, err := e.Query("items", Record{"price": 18})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b2", matches[0][FieldID])
}

func TestRoundTripAddGet(t *testing.T) {
	e := NewEngine(nil)

	payload := Record{
		"title": "Let It Be",
		"tags":  []interface{}{"rock", "classic"},
		"meta":  map[string]interface{}{"year": 1970.0},
	}
	created, err := e.Add("items", "owner-1", payload)
	require.NoError(t, err)

	fetched, err := e.Get("items", created[FieldID].(string))
	require.NoError(t, err)

	assert.Equal(t, "Let It Be", fetched["title"])
	assert.Equal(t, []interface{}{"rock", "classic"}, fetched["tags"])
	assert.Equal(t, map[string]interface{}{"year": 1970.0}, fetched["meta"])
	for _, field := range []string{FieldID, FieldOwnerID, FieldCreatedOn} {
		assert.Contains(t, fetched, field)
	}
}

func TestIDsUniquePerCollection(t *testing.T) {
	e := NewEngine(nil)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		created, err := e.Add("items", "owner-1", Record{"n": float64(i)})
		require.NoError(t, err)
		id := created[FieldID].(string)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
