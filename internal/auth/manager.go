package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"photo-gallery/internal/models"
	"photo-gallery/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrMissingFields      = errors.New("email and password are required")
)

// Manager owns the current-user session. Every mutation is written to the
// store before the in-memory copy changes, so the two never diverge.
type Manager struct {
	collections *storage.Collections
	hasher      Hasher
	user        *models.User
	lastErr     string
}

// NewManager restores the session persisted in collections.
func NewManager(collections *storage.Collections, hasher Hasher) (*Manager, error) {
	if hasher == nil {
		hasher = PlainText{}
	}
	u, err := collections.CurrentUser()
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return &Manager{collections: collections, hasher: hasher, user: u}, nil
}

// User returns a copy of the session user, or nil.
func (m *Manager) User() *models.User {
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// IsAuthenticated reports whether a session is active.
func (m *Manager) IsAuthenticated() bool {
	return m.user != nil
}

// LastError is the message of the most recent failed operation, or "".
func (m *Manager) LastError() string {
	return m.lastErr
}

// Login starts a session for the user matching both email and password.
func (m *Manager) Login(creds models.LoginCredentials) error {
	return m.record(m.login(creds))
}

func (m *Manager) login(creds models.LoginCredentials) error {
	email := storage.NormalizeEmail(creds.Email)
	var newUser models.User
	err := m.collections.UpdateUsers(func(users []models.User) ([]models.User, error) {
		for _, u := range users {
			if u.Email == email {
				return nil, ErrDuplicateEmail
			}
		}

		password, err := m.hasher.Hash(creds.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		newUser = models.User{
			ID:       uuid.NewString(),
			Email:    email,
			Name:     creds.Name,
			Password: password,
		}
		return append(users, newUser), nil
	})
	if err != nil {
		return err
	}
	return m.setUser(&newUser)
}

// Logout ends the session.
func (m *Manager) Logout() error {
	return m.record(m.setUser(nil))
}

func (m *Manager) setUser(u *models.User) error {
	if u == nil {
		if err := m.collections.ClearCurrentUser(); err != nil {
			return err
		}
		m.user = nil
		return nil
	}

	if err := m.collections.SetCurrentUser(*u); err != nil {
		return err
	}
	// Read back so memory holds exactly what was persisted.
	stored, err := m.collections.CurrentUser()
	if err != nil {
		return err
	}
	m.user = stored
	return nil
}

func (m *Manager) record(err error) error {
	if err != nil {
		m.lastErr = err.Error()
		return err
	}
	m.lastErr = ""
	return nil
}
