package server

import (
	"github.com/playbase/playbase/internal/errors"
	"github.com/playbase/playbase/internal/query"
	"github.com/playbase/playbase/internal/rules"
	"github.com/playbase/playbase/internal/storage"
)

// DataService exposes rule-guarded collection CRUD with the full query
// vocabulary under /data/:collection[/:id].
func DataService() *Service {
	s := NewService("data")
	s.Get(":collection", dataGet)
	s.Post(":collection", dataPost)
	s.Put(":collection", dataPut)
	s.Patch(":collection", dataPatch)
	s.Delete(":collection", dataDelete)
	return s
}

func dataGet(ctx *Context, req *Request) (interface{}, error) {
	if len(req.Tokens) > 1 {
		return nil, errors.BadRequest("")
	}
	collection := ctx.Params["collection"]
	if collection == "" {
		return ctx.Storage.Collections(), nil
	}

	// a where clause takes precedence over an ID token
	_, filtered := req.Query["where"]

	if len(req.Tokens) == 1 && !filtered {
		record, err := ctx.Storage.Get(collection, req.Tokens[0])
		if err != nil {
			return nil, err
		}
		if load, ok := req.Query["load"]; ok {
			record, err = query.Load(record, load, ctx.Storage, ctx.Protected)
			if err != nil {
				return nil, err
			}
		}
		if err := ctx.CanAccess(collection, rules.ActionRead, record, nil); err != nil {
			return nil, err
		}
		return record, nil
	}

	records, err := ctx.Storage.List(collection)
	if err != nil {
		return nil, err
	}
	result, err := query.Apply(records, req.Query, ctx.Storage, ctx.Protected)
	if err != nil {
		return nil, err
	}

	// Read rules filter the listing: denied records are omitted, not errors.
	if listed, ok := result.([]storage.Record); ok {
		visible := make([]storage.Record, 0, len(listed))
		for _, record := range listed {
			if err := ctx.CanAccess(collection, rules.ActionRead, record, nil); err != nil {
				continue
			}
			visible = append(visible, record)
		}
		return visible, nil
	}

	if err := ctx.CanAccess(collection, rules.ActionRead, nil, nil); err != nil {
		return nil, err
	}
	return result, nil
}

func dataPost(ctx *Context, req *Request) (interface{}, error) {
	if len(req.Tokens) > 0 {
		return nil, errors.BadRequest("Use PUT to update records")
	}
	body, ok := req.BodyRecord()
	if !ok {
		return nil, errors.BadRequest("")
	}
	collection := ctx.Params["collection"]

	if err := ctx.CanAccess(collection, rules.ActionCreate, nil, body); err != nil {
		return nil, err
	}

	var ownerID string
	if ctx.User != nil {
		ownerID, _ = ctx.User[storage.FieldID].(string)
	}
	created, err := ctx.Storage.Add(collection, ownerID, body)
	if err != nil {
		return nil, errors.BadRequest("")
	}
	return created, nil
}

func dataPut(ctx *Context, req *Request) (interface{}, error) {
	existing, body, err := lockTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.CanAccess(ctx.Params["collection"], rules.ActionUpdate, existing, body); err != nil {
		return nil, err
	}
	updated, err := ctx.Storage.Set(ctx.Params["collection"], req.Tokens[0], body)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func dataPatch(ctx *Context, req *Request) (interface{}, error) {
	existing, body, err := lockTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.CanAccess(ctx.Params["collection"], rules.ActionUpdate, existing, body); err != nil {
		return nil, err
	}
	merged, err := ctx.Storage.Merge(ctx.Params["collection"], req.Tokens[0], body)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func dataDelete(ctx *Context, req *Request) (interface{}, error) {
	if len(req.Tokens) != 1 {
		return nil, errors.BadRequest("Missing entry ID")
	}
	collection := ctx.Params["collection"]

	existing, err := ctx.Storage.Get(collection, req.Tokens[0])
	if err != nil {
		return nil, errors.NotFound("")
	}
	if err := ctx.CanAccess(collection, rules.ActionDelete, existing, nil); err != nil {
		return nil, err
	}
	marker, err := ctx.Storage.Delete(collection, req.Tokens[0])
	if err != nil {
		return nil, err
	}
	return marker, nil
}

// lockTarget validates an update request and fetches its target record.
func lockTarget(ctx *Context, req *Request) (storage.Record, storage.Record, error) {
	if len(req.Tokens) != 1 {
		return nil, nil, errors.BadRequest("Missing entry ID")
	}
	body, ok := req.BodyRecord()
	if !ok {
		return nil, nil, errors.BadRequest("")
	}
	existing, err := ctx.Storage.Get(ctx.Params["collection"], req.Tokens[0])
	if err != nil {
		return nil, nil, errors.NotFound("")
	}
	return existing, body, nil
}
