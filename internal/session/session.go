// Package session implements registration, login, logout, and opaque bearer
// token verification on top of the protected storage instance.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/playbase/playbase/internal/errors"
	"github.com/playbase/playbase/internal/storage"
)

// Manager owns the users and sessions collections in protected storage.
// Password and token hashes are keyed HMAC-SHA256 over the plaintext; the key
// is derived from the configured server secret. No per-user salt is used; a
// known weakness of the scheme this service reproduces, not a baseline to
// copy into real systems.
type Manager struct {
	protected *storage.Engine
	identity  string
	key       []byte
}

// NewManager derives the HMAC key from secret and binds the manager to the
// protected storage instance. identity names the unique login field
// (typically "email").
func NewManager(protected *storage.Engine, identity, secret string) (*Manager, error) {
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte("playbase-credentials"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	return &Manager{protected: protected, identity: identity, key: key}, nil
}

// Identity returns the configured identity field name.
func (m *Manager) Identity() string {
	return m.identity
}

// Register creates a new user, opens a session and returns the user record
// (password hash stripped) with an accessToken attached.
func (m *Manager) Register(body storage.Record) (storage.Record, error) {
	identityValue, _ := body[m.identity].(string)
	password, _ := body["password"].(string)
	if identityValue == "" || password == "" {
		return nil, errors.BadRequest("Missing fields")
	}

	existing, err := m.protected.Query("users", storage.Record{m.identity: identityValue})
	if err == nil && len(existing) != 0 {
		return nil, errors.Conflict(fmt.Sprintf("A user with the same %s already exists", m.identity))
	}

	user := storage.Record{}
	for key, value := range body {
		if key == "password" {
			continue
		}
		user[key] = value
	}
	user["hashedPassword"] = m.hash(password)

	created, err := m.protected.Add("users", "", user)
	if err != nil {
		return nil, err
	}
	delete(created, "hashedPassword")

	token, err := m.openSession(created[storage.FieldID].(string))
	if err != nil {
		return nil, err
	}
	created["accessToken"] = token
	return created, nil
}

// Login verifies credentials and opens a fresh session. The error never
// reveals whether the identity or the password was wrong.
func (m *Manager) Login(body storage.Record) (storage.Record, error) {
	identityValue, _ := body[m.identity].(string)
	password, _ := body["password"].(string)

	matches, err := m.protected.Query("users", storage.Record{m.identity: identityValue})
	if err != nil || len(matches) != 1 {
		return nil, errors.Forbidden("Login or password don't match")
	}

	user := matches[0]
	hashed, _ := user["hashedPassword"].(string)
	if !hmac.Equal([]byte(hashed), []byte(m.hash(password))) {
		return nil, errors.Forbidden("Login or password don't match")
	}
	delete(user, "hashedPassword")

	token, err := m.openSession(user[storage.FieldID].(string))
	if err != nil {
		return nil, err
	}
	user["accessToken"] = token
	return user, nil
}

// Logout deletes one session belonging to the actor. Sessions are looked up
// by user ID, not by the presented token, so with several concurrent
// sessions an arbitrary one is invalidated.
func (m *Manager) Logout(user storage.Record) error {
	if user == nil {
		return errors.Forbidden("User session does not exist")
	}

	sessions, err := m.protected.Query("sessions", storage.Record{"userId": user[storage.FieldID]})
	if err != nil || len(sessions) == 0 {
		return nil
	}
	_, err = m.protected.Delete("sessions", sessions[0][storage.FieldID].(string))
	return err
}

// ResolveToken maps a bearer token to its user record. A presented token that
// matches no session fails the request outright rather than degrading to
// anonymous.
func (m *Manager) ResolveToken(token string) (storage.Record, error) {
	sessions, err := m.protected.Query("sessions", storage.Record{"accessToken": token})
	if err != nil || len(sessions) == 0 {
		return nil, errors.Forbidden("Invalid access token")
	}

	userID, _ := sessions[0]["userId"].(string)
	user, err := m.protected.Get("users", userID)
	if err != nil {
		return nil, errors.Forbidden("Invalid access token")
	}
	return user, nil
}

// openSession stores a session record and returns its access token, which is
// a deterministic hash of the session's own ID.
func (m *Manager) openSession(userID string) (string, error) {
	created, err := m.protected.Add("sessions", "", storage.Record{"userId": userID})
	if err != nil {
		return "", err
	}

	sessionID := created[storage.FieldID].(string)
	token := m.hash(sessionID)
	if _, err := m.protected.Merge("sessions", sessionID, storage.Record{"accessToken": token}); err != nil {
		return "", err
	}
	return token, nil
}

func (m *Manager) hash(plaintext string) string {
	mac := hmac.New(sha256.New, m.key)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}
