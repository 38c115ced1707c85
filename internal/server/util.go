package server

// UtilService exposes the runtime flag set: GET /util/:flag reads a flag,
// POST /util sets every boolean key of the body.
func UtilService() *Service {
	s := NewService("util")
	s.Post("*", utilSet)
	s.Get(":flag", utilGet)
	return s
}

func utilGet(ctx *Context, _ *Request) (interface{}, error) {
	return ctx.Util.Get(ctx.Params["flag"]), nil
}

func utilSet(ctx *Context, req *Request) (interface{}, error) {
	body, ok := req.BodyRecord()
	if !ok {
		return nil, nil
	}
	for name, value := range body {
		if flag, ok := value.(bool); ok {
			ctx.Util.Set(name, flag)
		}
	}
	return nil, nil
}
