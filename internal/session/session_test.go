package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbase/playbase/internal/errors"
	"github.com/playbase/playbase/internal/storage"
)

func newManager(t *testing.T) (*Manager, *storage.Engine) {
	t.Helper()
	protected := storage.NewEngine(nil)
	mgr, err := NewManager(protected, "email", "test secret")
	require.NoError(t, err)
	return mgr, protected
}

func TestRegisterReturnsTokenAndStripsPassword(t *testing.T) {
	mgr, protected := newManager(t)

	user, err := mgr.Register(storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)

	assert.Equal(t, "peter@abv.bg", user["email"])
	assert.NotEmpty(t, user["accessToken"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "hashedPassword")

	stored, err := protected.Get("users", user[storage.FieldID].(string))
	require.NoError(t, err)
	assert.NotContains(t, stored, "password")
	assert.NotEqual(t, "123456", stored["hashedPassword"])
}

func TestRegisterMissingFields(t *testing.T) {
	mgr, _ := newManager(t)

	for _, body := range []storage.Record{
		{},
		{"email": "peter@abv.bg"},
		{"password": "123456"},
		{"email": "", "password": "123456"},
	} {
		_, err := mgr.Register(body)
		require.Error(t, err)
		svcErr := errors.GetServiceError(err)
		require.NotNil(t, svcErr)
		assert.Equal(t, 400, svcErr.HTTPStatus)
		assert.Equal(t, "Missing fields", svcErr.Message)
	}
}

func TestRegisterDuplicateIdentity(t *testing.T) {
	mgr, _ := newManager(t)

	_, err := mgr.Register(storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)

	_, err = mgr.Register(storage.Record{"email": "Peter@abv.bg", "password": "other"})
	require.Error(t, err)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, 409, svcErr.HTTPStatus)
	assert.Equal(t, "A user with the same email already exists", svcErr.Message)
}

func TestLoginRoundTrip(t *testing.T) {
	mgr, _ := newManager(t)

	registered, err := mgr.Register(storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)

	logged, err := mgr.Login(storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)
	assert.Equal(t, registered[storage.FieldID], logged[storage.FieldID])
	assert.NotEmpty(t, logged["accessToken"])
	assert.NotContains(t, logged, "hashedPassword")

	// each login opens a fresh session
	assert.NotEqual(t, registered["accessToken"], logged["accessToken"])
}

func TestLoginGenericError(t *testing.T) {
	mgr, _ := newManager(t)

	_, err := mgr.Register(storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)

	for _, body := range []storage.Record{
		{"email": "peter@abv.bg", "password": "wrong"},
		{"email": "nobody@abv.bg", "password": "123456"},
	} {
		_, err := mgr.Login(body)
		require.Error(t, err)
		svcErr := errors.GetServiceError(err)
		require.NotNil(t, svcErr)
		assert.Equal(t, 403, svcErr.HTTPStatus)
		assert.Equal(t, "Login or password don't match", svcErr.Message)
	}
}

func TestResolveToken(t *testing.T) {
	mgr, _ := newManager(t)

	registered, err := mgr.Register(storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)

	user, err := mgr.ResolveToken(registered["accessToken"].(string))
	require.NoError(t, err)
	assert.Equal(t, registered[storage.FieldID], user[storage.FieldID])

	_, err = mgr.ResolveToken("forged token")
	require.Error(t, err)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, 403, svcErr.HTTPStatus)
	assert.Equal(t, "Invalid access token", svcErr.Message)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	mgr, _ := newManager(t)

	registered, err := mgr.Register(storage.Record{"email": "peter@abv.bg", "password": "123456"})
	require.NoError(t, err)
	token := registered["accessToken"].(string)

	user, err := mgr.ResolveToken(token)
	require.NoError(t, err)
	require.NoError(t, mgr.Logout(user))

	_, err = mgr.ResolveToken(token)
	require.Error(t, err)
}

func TestLogoutWithoutSession(t *testing.T) {
	mgr, _ := newManager(t)

	err := mgr.Logout(nil)
	require.Error(t, err)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, 403, svcErr.HTTPStatus)
	assert.Equal(t, "User session does not exist", svcErr.Message)
}
