package server

import (
	"github.com/playbase/playbase/internal/errors"
	"github.com/playbase/playbase/internal/storage"
)

// UserService exposes the identity operations: register, login, logout, and
// the current actor under /users/me.
func UserService() *Service {
	s := NewService("users")
	s.Get("me", userSelf)
	s.Post("register", userRegister)
	s.Post("login", userLogin)
	s.Get("logout", userLogout)
	return s
}

func userSelf(ctx *Context, _ *Request) (interface{}, error) {
	if ctx.User == nil {
		return nil, errors.Unauthorized("")
	}
	self := storage.Record{}
	for key, value := range ctx.User {
		if key == "hashedPassword" {
			continue
		}
		self[key] = value
	}
	return self, nil
}

func userRegister(ctx *Context, req *Request) (interface{}, error) {
	body, ok := req.BodyRecord()
	if !ok {
		return nil, errors.BadRequest("Missing fields")
	}
	return ctx.Auth.Register(body)
}

func userLogin(ctx *Context, req *Request) (interface{}, error) {
	body, ok := req.BodyRecord()
	if !ok {
		return nil, errors.Forbidden("Login or password don't match")
	}
	return ctx.Auth.Login(body)
}

func userLogout(ctx *Context, _ *Request) (interface{}, error) {
	return nil, ctx.Auth.Logout(ctx.User)
}
